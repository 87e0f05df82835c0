// Package declaration normalizes a nested tenant/class declaration into
// the flat-by-class model shared with the current-config retriever.
package declaration

import (
	"sort"

	"go.uber.org/zap"

	"github.com/opendevice/onboard/internal/catalog"
	"github.com/opendevice/onboard/internal/mapping"
)

// Result is a parsed declaration: the tenant names in stable sorted order
// and the per-tenant normalized model.
type Result struct {
	Tenants []string
	Parsed  map[string]any
}

// Parser normalizes declarations against a config item catalog.
type Parser struct {
	catalog *catalog.Catalog
	logger  *zap.Logger
}

// NewParser creates a declaration parser.
func NewParser(cat *catalog.Catalog, logger *zap.Logger) *Parser {
	return &Parser{
		catalog: cat,
		logger:  logger,
	}
}

// Parse splits a declaration into sub-components by class. Instance names
// move inside their objects, internal pointers are resolved, declaration
// facing property names are translated back to device-native ids, and
// per-class defaults the schema cannot express are filled in. modules is
// the provisionable module list of the target device; when nil the known
// module set is used.
func (p *Parser) Parse(declaration map[string]any, modules []string) (*Result, error) {
	if modules == nil {
		modules = catalog.KnownModules
	}

	tenants := tenantNames(declaration)
	parsed := map[string]any{}

	for _, tenantName := range tenants {
		tenant, _ := declaration[tenantName].(map[string]any)
		parsedTenant := map[string]any{}
		parsed[tenantName] = parsedTenant

		for _, propertyName := range keysOfInterest(tenant) {
			property := tenant[propertyName]

			obj, isObject := property.(map[string]any)
			if !isObject {
				// pass-through scalar settings such as hostname
				parsedTenant[propertyName] = property
				continue
			}

			propertyClass, _ := obj[catalog.ClassKey].(string)
			if propertyClass == "" {
				p.logger.Error("declaration object has no class",
					zap.String("tenant", tenantName),
					zap.String("property", propertyName))
				return nil, &ValidationError{
					Tenant:   tenantName,
					Property: propertyName,
					Reason:   "object has no class",
				}
			}

			item := mapping.CopyMap(obj)
			delete(item, catalog.ClassKey)

			dereferenced, err := dereference(declaration, item, 0)
			if err != nil {
				p.logger.Error("failed to dereference declaration",
					zap.String("tenant", tenantName),
					zap.String("property", propertyName),
					zap.Error(err))
				return nil, &ValidationError{
					Tenant:   tenantName,
					Property: propertyName,
					Reason:   err.Error(),
				}
			}
			item = dereferenced.(map[string]any)

			classValue, ok := parsedTenant[propertyClass].(map[string]any)
			if !ok {
				classValue = map[string]any{}
				parsedTenant[propertyClass] = classValue
			}

			if catalog.IsNamelessClass(propertyClass) {
				assignDefaults(propertyClass, item, modules, "")
				item = mapping.UpdateIDs(p.catalog.Items(), propertyClass, item, "")
				for k, v := range item {
					classValue[k] = v
				}
			} else {
				assignDefaults(propertyClass, item, modules, propertyName)
				item = mapping.UpdateIDs(p.catalog.Items(), propertyClass, item, propertyName)
				classValue[propertyName] = item
			}
		}
	}

	parsed["parsed"] = true
	return &Result{
		Tenants: tenants,
		Parsed:  parsed,
	}, nil
}

func tenantNames(declaration map[string]any) []string {
	var tenants []string
	for _, key := range sortedKeys(declaration) {
		if !keyOfInterest(key) {
			continue
		}
		obj, ok := declaration[key].(map[string]any)
		if !ok {
			continue
		}
		if class, _ := obj[catalog.ClassKey].(string); class == catalog.TenantClass {
			tenants = append(tenants, key)
		}
	}
	return tenants
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func keyOfInterest(key string) bool {
	return key != "schemaVersion" && key != catalog.ClassKey
}

func keysOfInterest(obj map[string]any) []string {
	var keys []string
	for _, key := range sortedKeys(obj) {
		if keyOfInterest(key) {
			keys = append(keys, key)
		}
	}
	return keys
}

// assignDefaults fills in values the declaration schema cannot express.
// Provisioning levels default to none for every module not mentioned, so
// downstream diffing sees a complete key set. VLAN interfaces default
// their tagged flag from the presence of a VLAN tag. Objects that take a
// user-chosen name get it injected unless the declaration set one.
func assignDefaults(propertyClass string, property map[string]any, modules []string, propertyName string) {
	switch propertyClass {
	case "Provision":
		for _, module := range modules {
			if _, ok := property[module]; !ok {
				property[module] = "none"
			}
		}
	case "VLAN":
		_, hasTag := property["tag"]
		if interfaces, ok := property["interfaces"].([]any); ok {
			for _, iface := range interfaces {
				obj, ok := iface.(map[string]any)
				if !ok {
					continue
				}
				if _, ok := obj["tagged"]; !ok {
					obj["tagged"] = hasTag
				}
			}
		}
	}

	if propertyName != "" {
		if _, ok := property["name"]; !ok {
			property["name"] = propertyName
		}
	}
}
