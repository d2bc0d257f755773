//nolint:revive // Package name intentionally shadows stdlib errors for convenience.
package errors

import "fmt"

// UnsupportedError represents an unsupported host architecture or archive
// format.
type UnsupportedError struct {
	Base Error `json:"error"`

	// Kind identifies what is unsupported, e.g. "arch" or "archive".
	Kind string `json:"kind"`

	// Value is the offending value.
	Value string `json:"value"`
}

// NewUnsupportedArchError creates an UnsupportedError for an arch tag
// outside {arm64, arm, i686, x86_64}.
func NewUnsupportedArchError(value string) *UnsupportedError {
	return &UnsupportedError{
		Base: Error{
			Category: CategoryUnsupported,
			Code:     CodeUnsupportedArch,
			Message:  fmt.Sprintf("unsupported architecture %q", value),
			Hint:     "tpm supports arm64, arm, i686, and x86_64. Set TERMUX_ARCH to override detection.",
		},
		Kind:  "arch",
		Value: value,
	}
}

// NewUnsupportedArchiveError creates an UnsupportedError for an archive
// format the extractor cannot dispatch on.
func NewUnsupportedArchiveError(value string) *UnsupportedError {
	return &UnsupportedError{
		Base: Error{
			Category: CategoryUnsupported,
			Code:     CodeUnsupportedArchive,
			Message:  fmt.Sprintf("unsupported archive format %q", value),
		},
		Kind:  "archive",
		Value: value,
	}
}

func (e *UnsupportedError) Error() string { return e.Base.Error() }
func (e *UnsupportedError) Unwrap() error { return e.Base.Cause }
func (e *UnsupportedError) Is(target error) bool {
	t, ok := target.(*UnsupportedError)
	if !ok {
		return false
	}
	return e.Base.Code == t.Base.Code
}
