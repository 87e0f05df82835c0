package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed configitems.json
var defaultCatalogJSON []byte

// PropertyRule is a single-property mapping directive. ID is always the
// device-native property name; NewID, when set, is the declaration-facing
// name. The same rule shape is reused inside transforms and reference
// rule-sets.
type PropertyRule struct {
	ID                 string         `json:"id"`
	NewID              string         `json:"newId,omitempty"`
	Truth              any            `json:"truth,omitempty"`
	Falsehood          any            `json:"falsehood,omitempty"`
	Transform          []PropertyRule `json:"transform,omitempty"`
	TransformAsArray   bool           `json:"transformAsArray,omitempty"`
	Capture            string         `json:"capture,omitempty"`
	CaptureProperty    string         `json:"captureProperty,omitempty"`
	Extract            string         `json:"extract,omitempty"`
	RemoveKeys         []string       `json:"removeKeys,omitempty"`
	StringToInt        bool           `json:"stringToInt,omitempty"`
	MinVersion         string         `json:"minVersion,omitempty"`
	DefaultWhenOmitted any            `json:"defaultWhenOmitted,omitempty"`
	RetainCommon       bool           `json:"retainCommon,omitempty"`
	SkipWhenOmitted    bool           `json:"skipWhenOmitted,omitempty"`
	Required           bool           `json:"required,omitempty"`
	DereferenceID      string         `json:"dereferenceId,omitempty"`
	UpLevel            int            `json:"upLevel,omitempty"`
}

// HasTruth reports whether the rule carries a truth/falsehood token pair.
func (r *PropertyRule) HasTruth() bool {
	return r.Truth != nil
}

// SpecificTo gates a config item's rules to declaration objects whose
// discriminator property equals the given value. Used when one schema class
// has multiple shape variants.
type SpecificTo struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

// SchemaMerge describes how a config item's mapped object is merged into a
// sub-path of its parent class instead of replacing a whole key.
type SchemaMerge struct {
	Path            []string    `json:"path,omitempty"`
	Action          string      `json:"action,omitempty"`
	SkipWhenOmitted bool        `json:"skipWhenOmitted,omitempty"`
	SpecificTo      *SpecificTo `json:"specificTo,omitempty"`
}

// RequiredModule gates a config item on a provisioned device module,
// optionally only up to a maximum device version.
type RequiredModule struct {
	Module     string `json:"module"`
	MaxVersion string `json:"maxVersion,omitempty"`
}

// IgnoreRule maps a property name to a regex; array entries whose property
// value matches are dropped from retrieval results.
type IgnoreRule map[string]string

// ConfigItem describes how to fetch and map one class of device object.
type ConfigItem struct {
	Path            string                    `json:"path"`
	SchemaClass     string                    `json:"schemaClass,omitempty"`
	Properties      []PropertyRule            `json:"properties"`
	References      map[string][]PropertyRule `json:"references,omitempty"`
	SingleValue     bool                      `json:"singleValue,omitempty"`
	Nameless        bool                      `json:"nameless,omitempty"`
	EnforceArray    bool                      `json:"enforceArray,omitempty"`
	Silent          bool                      `json:"silent,omitempty"`
	Ignore          []IgnoreRule              `json:"ignore,omitempty"`
	SchemaMerge     *SchemaMerge              `json:"schemaMerge,omitempty"`
	Partitions      []string                  `json:"partitions,omitempty"`
	RequiredModules []RequiredModule          `json:"requiredModules,omitempty"`
}

// Shape is the container shape a schema class uses in the normalized model.
// Both the declaration normalizer and the current-config retriever must
// produce the same shape for a class.
type Shape int

const (
	// ShapeNamedObjects maps user-chosen instance names to objects.
	ShapeNamedObjects Shape = iota
	// ShapeSingleObject is one object stored directly under the class key.
	ShapeSingleObject
	// ShapeScalar is a single value (Provision levels, for example).
	ShapeScalar
)

// Catalog is the loaded-once, immutable config item table. It is passed
// explicitly into every component that needs it; there is no package-level
// instance.
type Catalog struct {
	items []ConfigItem
}

// Load parses and validates the embedded default catalog.
func Load() (*Catalog, error) {
	return parse(defaultCatalogJSON)
}

// LoadFile parses and validates a catalog from a file. Used by tests and by
// deployments that override the built-in table.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return parse(data)
}

// New builds a catalog directly from items. Intended for tests.
func New(items []ConfigItem) *Catalog {
	return &Catalog{items: items}
}

func parse(data []byte) (*Catalog, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog validator: %w", err)
	}
	if err := validator.ValidateCatalog(data); err != nil {
		return nil, fmt.Errorf("catalog validation failed: %w", err)
	}

	var items []ConfigItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}

	return &Catalog{items: items}, nil
}

// Items returns the config items in catalog order. Callers must not modify
// the returned slice.
func (c *Catalog) Items() []ConfigItem {
	return c.items
}

// ItemsForClass returns every config item contributing to a schema class, in
// catalog order. Multiple items may share a class (sub-objects merged into
// one logical class).
func (c *Catalog) ItemsForClass(schemaClass string) []ConfigItem {
	var items []ConfigItem
	for _, item := range c.items {
		if item.SchemaClass == schemaClass {
			items = append(items, item)
		}
	}
	return items
}

// ItemForPath returns the config item with the given device path.
func (c *Catalog) ItemForPath(path string) (ConfigItem, bool) {
	for _, item := range c.items {
		if item.Path == path {
			return item, true
		}
	}
	return ConfigItem{}, false
}

// ShapeForClass resolves the container shape for a schema class from the
// catalog flags.
func (c *Catalog) ShapeForClass(schemaClass string) Shape {
	for _, item := range c.items {
		if item.SchemaClass != schemaClass {
			continue
		}
		if item.SingleValue {
			return ShapeScalar
		}
		if item.Nameless {
			return ShapeSingleObject
		}
		return ShapeNamedObjects
	}
	if IsNamelessClass(schemaClass) {
		return ShapeSingleObject
	}
	return ShapeNamedObjects
}
