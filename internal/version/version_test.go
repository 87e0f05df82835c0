package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		a        string
		b        string
		expected int
	}{
		{"14.0", "14.0", 0},
		{"14.1", "14.1.0", 0},
		{"14.1.0.5", "14.1", 1},
		{"13.1.1", "14.0", -1},
		{"15.0", "14.1.2", 1},
		{"14.10", "14.9", 1},
		{"14.0-hf1", "14.0-hf2", -1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Compare(tt.a, tt.b), "Compare(%q, %q)", tt.a, tt.b)
	}
}

func TestAtLeast(t *testing.T) {
	assert.True(t, AtLeast("14.1.0", "14.0"))
	assert.True(t, AtLeast("14.0", "14.0"))
	assert.False(t, AtLeast("13.1", "14.0"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "14.1", Truncate("14.1.0.5", 2))
	assert.Equal(t, "14.1", Truncate("14.1", 2))
	assert.Equal(t, "14", Truncate("14", 2))
}
