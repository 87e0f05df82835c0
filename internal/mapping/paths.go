package mapping

import (
	"sort"
	"strings"
)

// GetDeep walks a dotted path through nested maps and returns the value at
// the end, or nil and false when any segment is missing.
func GetDeep(obj map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := obj
	for i, part := range parts {
		value, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return value, true
		}
		next, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// SetDeep writes a value at a dotted path, creating intermediate maps as
// needed.
func SetDeep(obj map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := obj
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// DeleteDeep removes the value at a dotted path. Empty intermediate maps
// left behind by the removal are pruned as well.
func DeleteDeep(obj map[string]any, path string) {
	parts := strings.Split(path, ".")
	deleteDeep(obj, parts)
}

func deleteDeep(obj map[string]any, parts []string) {
	if len(parts) == 1 {
		delete(obj, parts[0])
		return
	}
	next, ok := obj[parts[0]].(map[string]any)
	if !ok {
		return
	}
	deleteDeep(next, parts[1:])
	if len(next) == 0 {
		delete(obj, parts[0])
	}
}

// DeleteKeys removes each dotted path from the value. Arrays are walked
// element by element so a path applies to every member.
func DeleteKeys(value any, paths []string) {
	for _, path := range paths {
		deleteKey(value, path)
	}
}

func deleteKey(value any, path string) {
	switch v := value.(type) {
	case map[string]any:
		deleteDeep(v, strings.Split(path, "."))
	case []any:
		for _, elem := range v {
			deleteKey(elem, path)
		}
	}
}

// SortByStringKey orders an array of objects by the string value under key,
// case-insensitively. Elements without a string value keep their relative
// position at the front.
func SortByStringKey(items []any, key string) {
	sort.SliceStable(items, func(i, j int) bool {
		a := stringAt(items[i], key)
		b := stringAt(items[j], key)
		return strings.ToUpper(a) < strings.ToUpper(b)
	})
}

func stringAt(item any, key string) string {
	obj, ok := item.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := obj[key].(string)
	return s
}

// CopyMap returns a deep copy of a JSON-shaped map. Nested maps and arrays
// are copied; scalars are shared.
func CopyMap(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return CopyMap(v)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = copyValue(elem)
		}
		return out
	default:
		return value
	}
}
