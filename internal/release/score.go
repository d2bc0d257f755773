package release

import (
	"strings"

	"github.com/x49dev/tpm/internal/config"
	"github.com/x49dev/tpm/internal/errors"
)

const (
	scoreArchMatch     = 50
	scoreLinux         = 30
	scoreGnu           = 5
	scoreMusl          = -10
	scoreDarwin        = -100
	scoreWindows       = -100
	scoreBSD           = -50
	scoreSource        = -200
	scoreDebug         = -150
	scoreStatic        = 10
	scoreMinimal       = 5
	scoreTarGz         = 20
	scoreTarXzOrBz2    = 15
	scoreZipExt        = 10
)

var bsdNames = []string{"freebsd", "openbsd", "netbsd"}

// archTokens lists the name fragments that identify a match for arch,
// and the fragments that must NOT also be present (to disambiguate,
// e.g., "arm" matching inside "arm64").
func archTokens(arch config.Arch) (match []string, exclude []string) {
	switch arch {
	case config.ArchARM64:
		return []string{"arm64", "aarch64"}, nil
	case config.ArchARM:
		return []string{"arm", "armv7", "armhf", "armv8"}, []string{"arm64", "aarch64"}
	case config.ArchI686:
		return []string{"386", "i686", "x86"}, []string{"x86_64"}
	case config.ArchX86_64:
		return []string{"x86_64", "amd64"}, nil
	default:
		return nil, nil
	}
}

// ScoreAsset scores a single asset name against arch per the release
// selection heuristic.
func ScoreAsset(name string, arch config.Arch) int {
	lower := strings.ToLower(name)
	score := 0

	matchTokens, excludeTokens := archTokens(arch)
	matched := false
	for _, tok := range matchTokens {
		if strings.Contains(lower, tok) {
			matched = true
			break
		}
	}
	excluded := false
	for _, tok := range excludeTokens {
		if strings.Contains(lower, tok) {
			excluded = true
			break
		}
	}
	if matched && !excluded {
		score += scoreArchMatch
	}

	if strings.Contains(lower, "linux") {
		score += scoreLinux
	}
	if strings.Contains(lower, "gnu") {
		score += scoreGnu
	}
	if strings.Contains(lower, "musl") {
		score += scoreMusl
	}
	if strings.Contains(lower, "darwin") || strings.Contains(lower, "macos") {
		score += scoreDarwin
	}
	if strings.Contains(lower, "windows") || strings.Contains(lower, "win") {
		score += scoreWindows
	}
	for _, bsd := range bsdNames {
		if strings.Contains(lower, bsd) {
			score += scoreBSD
			break
		}
	}
	if strings.Contains(lower, "source") || strings.Contains(lower, "src") {
		score += scoreSource
	}
	if strings.Contains(lower, "debug") || strings.Contains(lower, "dbg") {
		score += scoreDebug
	}
	if strings.Contains(lower, "static") {
		score += scoreStatic
	}
	if strings.Contains(lower, "minimal") || strings.Contains(lower, "standalone") {
		score += scoreMinimal
	}

	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		score += scoreTarGz
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".tar.bz2"):
		score += scoreTarXzOrBz2
	case strings.HasSuffix(lower, ".zip"):
		score += scoreZipExt
	}

	return score
}

// minSelectableScore is the floor a candidate's score must clear to be
// chosen. An asset for the wrong OS (darwin, windows) scores deeply
// negative even when nothing else disqualifies it, and should fail
// resolution rather than be installed as a last resort.
const minSelectableScore = 0

// SelectAsset picks the highest-scoring asset for arch. Returns an
// error listing every candidate name if none are usable or every
// usable candidate scores below minSelectableScore.
func SelectAsset(toolID string, assets []Asset, arch config.Arch) (*Asset, error) {
	if len(assets) == 0 {
		return nil, errors.NewAssetNotFoundError(toolID, nil)
	}

	best := -1
	bestScore := 0
	names := make([]string, 0, len(assets))
	for i, a := range assets {
		names = append(names, a.Name)
		if a.Name == "" || a.URL == "" {
			continue
		}
		score := ScoreAsset(a.Name, arch)
		if best == -1 || score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best == -1 || bestScore < minSelectableScore {
		return nil, errors.NewAssetNotFoundError(toolID, names)
	}
	return &assets[best], nil
}
