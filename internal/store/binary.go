package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/x49dev/tpm/internal/errors"
)

const (
	scoreExactName        = 100
	scoreLowercaseOnly     = 20
	scoreNoDot             = 15
	scoreAlphanumericOnly  = 10
	scoreNativeExecutable  = 50
	scoreScript            = -30
	scoreBinPath           = 25
	scoreSbinPath          = 20
	scoreUsrPath           = -10
	scoreSizeInRange       = 15
)

const (
	minBinarySize = 10 * 1024
	maxBinarySize = 50 * 1024 * 1024
)

var excludedSuffixes = []string{".so", ".dylib", ".dll", ".a", ".la"}

var excludedPrefixes = []string{"README", "LICENSE"}

var excludedExactSuffixes = []string{".md", ".txt"}

// isExcluded reports whether name matches a filename pattern that can
// never be the principal binary: shared libraries, docs, hidden files.
func isExcluded(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return true
	}
	lower := strings.ToLower(base)
	for _, p := range excludedPrefixes {
		if strings.HasPrefix(lower, strings.ToLower(p)) {
			return true
		}
	}
	for _, s := range excludedExactSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	for _, s := range excludedSuffixes {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// candidate is a scored file found while walking an extraction tree.
type candidate struct {
	path  string
	score int
}

// selectBinary scores every eligible file under root and returns the
// path of the best candidate. When requireExecutable is true, files
// without the executable bit are skipped; the Store retries this
// function with requireExecutable=false if no candidate is found.
func selectBinary(root, expectedBasename, toolID string, requireExecutable bool) (string, error) {
	var candidates []candidate

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if isExcluded(path) {
			return nil
		}
		if requireExecutable && info.Mode()&0o111 == 0 {
			return nil
		}

		score := scoreCandidate(path, info, expectedBasename)
		candidates = append(candidates, candidate{path: path, score: score})
		return nil
	})
	if err != nil {
		return "", err
	}

	best := -1
	bestScore := 0
	for i, c := range candidates {
		if best == -1 || c.score > bestScore {
			best = i
			bestScore = c.score
		}
	}
	if best == -1 {
		return "", errors.NewBinaryNotFoundError(toolID)
	}
	return candidates[best].path, nil
}

func scoreCandidate(path string, info os.FileInfo, expectedBasename string) int {
	name := filepath.Base(path)
	score := 0

	if expectedBasename != "" && name == expectedBasename {
		score += scoreExactName
	}

	if name == strings.ToLower(name) {
		score += scoreLowercaseOnly
	}
	if !strings.Contains(name, ".") {
		score += scoreNoDot
	}
	if isAlphanumeric(name) {
		score += scoreAlphanumericOnly
	}

	if isNativeExecutable(path) {
		score += scoreNativeExecutable
	} else if isScript(path) {
		score += scoreScript
	}

	dir := filepath.Dir(path)
	if strings.Contains(dir, string(filepath.Separator)+"bin"+string(filepath.Separator)) || strings.HasSuffix(dir, string(filepath.Separator)+"bin") {
		score += scoreBinPath
	}
	if strings.Contains(dir, string(filepath.Separator)+"sbin"+string(filepath.Separator)) || strings.HasSuffix(dir, string(filepath.Separator)+"sbin") {
		score += scoreSbinPath
	}
	if strings.Contains(dir, string(filepath.Separator)+"usr"+string(filepath.Separator)) {
		score += scoreUsrPath
	}

	size := info.Size()
	if size >= minBinarySize && size <= maxBinarySize {
		score += scoreSizeInRange
	}

	if expectedBasename != "" && strings.Contains(strings.ToLower(name), strings.ToLower(expectedBasename)) {
		score++ // implicit tiebreak for case-insensitive containment
	}

	return score
}

func isAlphanumeric(name string) bool {
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return len(name) > 0
}

// isNativeExecutable sniffs for ELF or Mach-O magic bytes.
func isNativeExecutable(path string) bool {
	magic, ok := peekMagic(path, 4)
	if !ok {
		return false
	}
	if len(magic) >= 4 && magic[0] == 0x7f && magic[1] == 'E' && magic[2] == 'L' && magic[3] == 'F' {
		return true
	}
	// Mach-O 32/64-bit and fat binary magics.
	machoMagics := [][4]byte{
		{0xfe, 0xed, 0xfa, 0xce}, {0xce, 0xfa, 0xed, 0xfe},
		{0xfe, 0xed, 0xfa, 0xcf}, {0xcf, 0xfa, 0xed, 0xfe},
		{0xca, 0xfe, 0xba, 0xbe}, {0xbe, 0xba, 0xfe, 0xca},
	}
	if len(magic) >= 4 {
		var m [4]byte
		copy(m[:], magic[:4])
		for _, mm := range machoMagics {
			if m == mm {
				return true
			}
		}
	}
	return false
}

// isScript reports whether path starts with a "#!" shebang.
func isScript(path string) bool {
	magic, ok := peekMagic(path, 2)
	return ok && len(magic) >= 2 && magic[0] == '#' && magic[1] == '!'
}

func peekMagic(path string, n int) ([]byte, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := f.Read(buf)
	if err != nil || read < n {
		return nil, false
	}
	return buf, true
}
