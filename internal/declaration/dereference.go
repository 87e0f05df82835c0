package declaration

import (
	"fmt"
	"strings"
)

// maxPointerDepth bounds recursive dereferencing so a pathological
// declaration cannot blow the stack.
const maxPointerDepth = 64

// ResolvePointer walks a /-separated pointer through the document and
// returns whatever it lands on, or nil when any segment is missing.
func ResolvePointer(document map[string]any, pointer string) any {
	parts := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	var current any = document
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = obj[part]
		if !ok {
			return nil
		}
	}
	return current
}

// dereference returns a copy of value with every string of pointer form
// resolved against the full declaration document. Replacement only happens
// when the resolved value is itself a string; a pointer naming a whole
// object stands for that object's name, not its contents.
func dereference(document map[string]any, value any, depth int) (any, error) {
	if depth > maxPointerDepth {
		return nil, fmt.Errorf("declaration nesting exceeds %d levels", maxPointerDepth)
	}

	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, elem := range v {
			resolved, err := dereferenceElement(document, elem, depth)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			resolved, err := dereferenceElement(document, elem, depth)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

func dereferenceElement(document map[string]any, elem any, depth int) (any, error) {
	if s, ok := elem.(string); ok && strings.HasPrefix(s, "/") {
		if resolved, ok := ResolvePointer(document, s).(string); ok {
			return resolved, nil
		}
		return s, nil
	}
	if _, ok := elem.(map[string]any); ok {
		return dereference(document, elem, depth+1)
	}
	if _, ok := elem.([]any); ok {
		return dereference(document, elem, depth+1)
	}
	return elem, nil
}
