package manifest

import (
	"strings"

	"github.com/x49dev/tpm/internal/errors"
)

// ParseToolID validates and splits a "owner/repo" string. Both parts
// must be non-empty and contain no whitespace or further slashes.
func ParseToolID(raw string) (ToolId, string, string, error) {
	owner, repo, ok := strings.Cut(raw, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", "", errors.NewUsageError(errors.CodeBadToolID, "tool id must be in owner/repo form", raw)
	}
	if strings.ContainsAny(raw, " \t\n") {
		return "", "", "", errors.NewUsageError(errors.CodeBadToolID, "tool id must not contain whitespace", raw)
	}
	return ToolId(raw), owner, repo, nil
}
