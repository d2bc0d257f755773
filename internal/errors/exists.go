//nolint:revive // Package name intentionally shadows stdlib errors for convenience.
package errors

import "fmt"

// AlreadyExistsError represents an install attempted for a tool the
// manifest already records, without --force.
type AlreadyExistsError struct {
	Base Error `json:"error"`

	Resource string `json:"resource,omitempty"`
	Version  string `json:"version,omitempty"`
}

// NewAlreadyInstalledError creates an AlreadyExistsError.
func NewAlreadyInstalledError(toolID, version string) *AlreadyExistsError {
	return &AlreadyExistsError{
		Base: Error{
			Category: CategoryExists,
			Code:     CodeAlreadyInstalled,
			Message:  fmt.Sprintf("%s is already installed at %s", toolID, version),
			Hint:     "Pass --force to reinstall, or use 'tpm update' to upgrade.",
		},
		Resource: toolID,
		Version:  version,
	}
}

func (e *AlreadyExistsError) Error() string { return e.Base.Error() }
func (e *AlreadyExistsError) Unwrap() error { return e.Base.Cause }
func (e *AlreadyExistsError) Is(target error) bool {
	t, ok := target.(*AlreadyExistsError)
	if !ok {
		return false
	}
	return e.Base.Code == t.Base.Code
}
