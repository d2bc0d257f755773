//nolint:revive // Package name intentionally shadows stdlib errors for convenience.
package errors

import "fmt"

// NotFoundError represents a missing repo, release, asset, or an
// uninstalled tool referenced by the caller.
type NotFoundError struct {
	Base Error `json:"error"`

	// Resource identifies what was not found (owner/repo, a tag, etc).
	Resource string `json:"resource,omitempty"`
}

// NewRepoNotFoundError creates a NotFoundError for a missing repository.
func NewRepoNotFoundError(toolID string) *NotFoundError {
	return &NotFoundError{
		Base: Error{
			Category: CategoryNotFound,
			Code:     CodeRepoNotFound,
			Message:  fmt.Sprintf("repository %s not found", toolID),
		},
		Resource: toolID,
	}
}

// NewReleaseNotFoundError creates a NotFoundError for a missing release.
func NewReleaseNotFoundError(toolID string) *NotFoundError {
	return &NotFoundError{
		Base: Error{
			Category: CategoryNotFound,
			Code:     CodeReleaseNotFound,
			Message:  fmt.Sprintf("no release found for %s", toolID),
		},
		Resource: toolID,
	}
}

// NewAssetNotFoundError creates a NotFoundError for a release with no
// usable asset, listing every candidate asset name for diagnosis.
func NewAssetNotFoundError(toolID string, assetNames []string) *NotFoundError {
	return &NotFoundError{
		Base: Error{
			Category: CategoryNotFound,
			Code:     CodeAssetNotFound,
			Message:  fmt.Sprintf("no suitable asset for %s among %v", toolID, assetNames),
		},
		Resource: toolID,
	}
}

// NewBinaryNotFoundError creates a NotFoundError for an extracted
// archive with no file scoring high enough to be the principal binary.
func NewBinaryNotFoundError(toolID string) *NotFoundError {
	return &NotFoundError{
		Base: Error{
			Category: CategoryNotFound,
			Code:     CodeBinaryNotFound,
			Message:  fmt.Sprintf("no executable binary found in release archive for %s", toolID),
		},
		Resource: toolID,
	}
}

// NewToolNotInstalledError creates a NotFoundError for an operation on a
// tool the manifest has no record of.
func NewToolNotInstalledError(toolID string) *NotFoundError {
	return &NotFoundError{
		Base: Error{
			Category: CategoryNotFound,
			Code:     CodeToolNotInstalled,
			Message:  fmt.Sprintf("%s is not installed", toolID),
		},
		Resource: toolID,
	}
}

func (e *NotFoundError) Error() string { return e.Base.Error() }
func (e *NotFoundError) Unwrap() error { return e.Base.Cause }
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return e.Base.Code == t.Base.Code
}
