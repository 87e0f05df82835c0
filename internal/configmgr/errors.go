package configmgr

import "fmt"

// IdentityAmbiguityError means the device's cluster membership list did
// not contain exactly one record matching its own hostname. Retrieval
// cannot safely continue because path tokens would resolve against the
// wrong device.
type IdentityAmbiguityError struct {
	Hostname string
	Matches  int
}

func (e *IdentityAmbiguityError) Error() string {
	return fmt.Sprintf("%d cluster device records match hostname %s, expected exactly 1", e.Matches, e.Hostname)
}
