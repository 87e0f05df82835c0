package declaration

import "fmt"

// ValidationError reports a declaration that could not be normalized. It
// carries the tenant and property where normalization stopped.
type ValidationError struct {
	Tenant   string
	Property string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("invalid declaration: tenant %s, property %s: %s", e.Tenant, e.Property, e.Reason)
	}
	return fmt.Sprintf("invalid declaration: tenant %s: %s", e.Tenant, e.Reason)
}
