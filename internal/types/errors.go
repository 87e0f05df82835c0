// Package types holds wire-level types shared across API handlers.
package types

// ErrorBody carries a stable machine-readable code alongside the
// human-readable message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse is the envelope every failing endpoint returns.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds the error payload. details may be a string, a
// map, or any marshalable value; nil omits it.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
