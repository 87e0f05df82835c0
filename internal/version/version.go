// Package version compares dotted device version strings.
package version

import (
	"strconv"
	"strings"
)

// Compare returns -1, 0 or 1 as a sorts before, equal to or after b.
// Segments are compared numerically when both sides parse as integers and
// lexically otherwise. A missing segment counts as zero, so "14.1" and
// "14.1.0" are equal.
func Compare(a, b string) int {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")

	n := len(aParts)
	if len(bParts) > n {
		n = len(bParts)
	}

	for i := 0; i < n; i++ {
		aSeg := "0"
		if i < len(aParts) && aParts[i] != "" {
			aSeg = aParts[i]
		}
		bSeg := "0"
		if i < len(bParts) && bParts[i] != "" {
			bSeg = bParts[i]
		}

		aNum, aErr := strconv.Atoi(aSeg)
		bNum, bErr := strconv.Atoi(bSeg)
		if aErr == nil && bErr == nil {
			if aNum != bNum {
				if aNum < bNum {
					return -1
				}
				return 1
			}
			continue
		}

		if cmp := strings.Compare(aSeg, bSeg); cmp != 0 {
			return cmp
		}
	}
	return 0
}

// AtLeast reports whether have satisfies the want minimum.
func AtLeast(have, want string) bool {
	return Compare(have, want) >= 0
}

// Truncate reduces a dotted version to at most n segments. Used when a
// gate only cares about major.minor.
func Truncate(v string, n int) string {
	parts := strings.Split(v, ".")
	if len(parts) <= n {
		return v
	}
	return strings.Join(parts[:n], ".")
}
