package mapping

import "fmt"

// Error reports a property rule that could not be applied to a value, for
// example a stringToInt coercion of non-numeric input or a malformed
// capture regex. It always indicates a catalog or data defect and is never
// retried.
type Error struct {
	Property string
	Reason   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot map property %s: %s", e.Property, e.Reason)
}

func newError(property, format string, args ...any) *Error {
	return &Error{
		Property: property,
		Reason:   fmt.Sprintf(format, args...),
	}
}
