//nolint:revive // Package name intentionally shadows stdlib errors for convenience.
package errors

// UsageError represents a malformed ToolId, empty version, or other
// caller-supplied value tpm rejects before touching the filesystem or
// network.
type UsageError struct {
	Base Error `json:"error"`

	// Input is the offending value, echoed back for the CLI message.
	Input string `json:"input,omitempty"`
}

// NewUsageError creates a UsageError.
func NewUsageError(code Code, message, input string) *UsageError {
	return &UsageError{
		Base: Error{
			Category: CategoryUsage,
			Code:     code,
			Message:  message,
		},
		Input: input,
	}
}

func (e *UsageError) Error() string { return e.Base.Error() }
func (e *UsageError) Unwrap() error { return e.Base.Cause }
func (e *UsageError) Is(target error) bool {
	t, ok := target.(*UsageError)
	if !ok {
		return false
	}
	return e.Base.Code == t.Base.Code
}
