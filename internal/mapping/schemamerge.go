package mapping

import (
	"github.com/opendevice/onboard/internal/catalog"
)

// MapSchemaMerge folds a sub-object fetched from its own device path into
// the parent class object at the merge path. The default action replaces
// the value at the path; "add" assigns key by key and refuses to clobber
// anything already there.
func MapSchemaMerge(obj, value map[string]any, opts *catalog.SchemaMerge) (map[string]any, error) {
	omitted := len(value) == 0
	if opts.SkipWhenOmitted && omitted {
		return obj, nil
	}

	path := opts.Path
	var key string
	var parents []string
	if len(path) > 0 {
		key = path[len(path)-1]
		parents = path[:len(path)-1]
	}

	pointer := obj
	for _, part := range parents {
		next, ok := pointer[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			pointer[part] = next
		}
		pointer = next
	}

	if opts.Action == "add" {
		if key == "" {
			for assignKey, assignValue := range value {
				if _, exists := pointer[assignKey]; exists {
					return nil, newError(assignKey, "cannot overwrite property in a schema merge")
				}
				pointer[assignKey] = assignValue
			}
			return obj, nil
		}
		target, ok := pointer[key].(map[string]any)
		if !ok {
			target = map[string]any{}
			pointer[key] = target
		}
		for assignKey, assignValue := range value {
			target[assignKey] = assignValue
		}
		return obj, nil
	}

	if key == "" {
		return value, nil
	}
	pointer[key] = value
	return obj, nil
}
