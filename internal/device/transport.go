// Package device talks to the management API of a network device. The
// Transport interface is the seam the retriever and onboard pipeline use;
// Client is the production implementation.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds how often a failed request is reissued before the
// error is surfaced.
type RetryPolicy struct {
	Tries    int
	Interval time.Duration
}

// Retry policies assigned per operation. Listing during retrieval uses
// ShortRetry; onboarding writes use MediumRetry.
var (
	NoRetry     = RetryPolicy{Tries: 1}
	ShortRetry  = RetryPolicy{Tries: 3, Interval: 2 * time.Second}
	MediumRetry = RetryPolicy{Tries: 5, Interval: 5 * time.Second}
)

// RequestOptions tune a single request.
type RequestOptions struct {
	Retry RetryPolicy
	// Silent suppresses per-request debug logging for noisy classes
	// (DB variables and the like).
	Silent bool
}

// Operation is one step of a transaction.
type Operation struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Body   any    `json:"body,omitempty"`
}

// Transport is the device management API contract. List returns either a
// single object or a collection depending on the path; callers shape the
// result. All methods honor context cancellation.
type Transport interface {
	List(ctx context.Context, path string, opts *RequestOptions) (any, error)
	Create(ctx context.Context, path string, body any) (map[string]any, error)
	Modify(ctx context.Context, path string, body any) (map[string]any, error)
	Delete(ctx context.Context, path string) error
	Transaction(ctx context.Context, ops []Operation) ([]map[string]any, error)
}

// NotFoundError distinguishes a missing object from a query failure, so
// existence checks can treat 404 as a plain answer.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no object at %s", e.Path)
}

// IsNotFound reports whether err is a missing-object condition.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// QueryError is a transport-level failure: network trouble or an error
// status from the device. StatusCode is zero when the request never got a
// response.
type QueryError struct {
	Path       string
	StatusCode int
	Err        error
}

func (e *QueryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("device query %s failed with status %d: %v", e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("device query %s failed: %v", e.Path, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
