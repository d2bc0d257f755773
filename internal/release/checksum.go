package release

import (
	"fmt"
	"regexp"
	"strings"
)

// checksumLinePattern matches the labeled release-notes convention
// "<algo>  <assetname>  <hexdigest>", one per line. The sha256sum-style
// "<hexdigest>  <assetname>" form is matched separately in
// ChecksumForAsset.
var checksumLinePattern = regexp.MustCompile(`(?m)^(sha256|sha1|md5)\s+(\S+)\s+([0-9a-fA-F]+)\s*$`)

// ChecksumForAsset scans a release body for a line naming assetName
// alongside a digest, returning "<algo>:<hex>", or "" if none found.
//
// Checksum-by-sibling-file (e.g. a SHA256SUMS asset) is not handled:
// only the release body text is scanned.
func ChecksumForAsset(body, assetName string) string {
	for _, match := range checksumLinePattern.FindAllStringSubmatch(body, -1) {
		algo, name, hex := match[1], match[2], match[3]
		if strings.TrimPrefix(name, "*") == assetName {
			return fmt.Sprintf("%s:%s", strings.ToLower(algo), strings.ToLower(hex))
		}
	}

	// sha256sum(1)-style output: "<hexdigest>  <assetname>" with no
	// algo label, digest length implies the algorithm.
	for _, line := range strings.Split(body, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		digest, name := fields[0], strings.TrimPrefix(fields[1], "*")
		if name != assetName {
			continue
		}
		if algo := algoForDigestLength(len(digest)); algo != "" && isHexDigest(digest) {
			return fmt.Sprintf("%s:%s", algo, strings.ToLower(digest))
		}
	}
	return ""
}

func isHexDigest(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F') {
			return false
		}
	}
	return len(s) > 0
}

func algoForDigestLength(n int) string {
	switch n {
	case 64:
		return "sha256"
	case 40:
		return "sha1"
	case 32:
		return "md5"
	default:
		return ""
	}
}
