package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetDeep(t *testing.T) {
	obj := map[string]any{
		"outer": map[string]any{
			"inner": "value",
		},
	}

	value, ok := GetDeep(obj, "outer.inner")
	assert.True(t, ok)
	assert.Equal(t, "value", value)

	_, ok = GetDeep(obj, "outer.missing")
	assert.False(t, ok)

	_, ok = GetDeep(obj, "outer.inner.tooDeep")
	assert.False(t, ok)
}

func TestSetDeep(t *testing.T) {
	obj := map[string]any{}
	SetDeep(obj, "a.b.c", 42)
	SetDeep(obj, "a.b.d", "x")
	assert.Equal(t, map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": 42,
				"d": "x",
			},
		},
	}, obj)
}

func TestDeleteDeepPrunesEmptyParents(t *testing.T) {
	obj := map[string]any{
		"a": map[string]any{
			"b":    map[string]any{"c": 1},
			"keep": true,
		},
	}
	DeleteDeep(obj, "a.b.c")
	assert.Equal(t, map[string]any{
		"a": map[string]any{"keep": true},
	}, obj)

	DeleteDeep(obj, "a.keep")
	assert.Empty(t, obj)
}

func TestDeleteKeysWalksArrays(t *testing.T) {
	value := []any{
		map[string]any{"keep": 1, "drop": 2, "nested": map[string]any{"drop": 3}},
		map[string]any{"keep": 4, "drop": 5},
	}
	DeleteKeys(value, []string{"drop", "nested.drop"})
	assert.Equal(t, []any{
		map[string]any{"keep": 1},
		map[string]any{"keep": 4},
	}, value)
}

func TestSortByStringKey(t *testing.T) {
	items := []any{
		map[string]any{"name": "zebra"},
		map[string]any{"name": "Apple"},
		map[string]any{"name": "mango"},
	}
	SortByStringKey(items, "name")
	assert.Equal(t, []any{
		map[string]any{"name": "Apple"},
		map[string]any{"name": "mango"},
		map[string]any{"name": "zebra"},
	}, items)
}

func TestCopyMapIsDeep(t *testing.T) {
	original := map[string]any{
		"nested": map[string]any{"k": "v"},
		"list":   []any{map[string]any{"e": 1}},
	}
	copied := CopyMap(original)
	copied["nested"].(map[string]any)["k"] = "changed"
	copied["list"].([]any)[0].(map[string]any)["e"] = 2

	assert.Equal(t, "v", original["nested"].(map[string]any)["k"])
	assert.Equal(t, 1, original["list"].([]any)[0].(map[string]any)["e"])
}
