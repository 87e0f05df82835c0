package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/config-items-v1.json
var configItemsSchemaJSON string

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("config-items-v1.json",
		strings.NewReader(configItemsSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("config-items-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

func (v *Validator) ValidateCatalog(data []byte) error {
	var catalog interface{}
	if err := json.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(catalog); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}
