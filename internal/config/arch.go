package config

import "github.com/x49dev/tpm/internal/errors"

// Arch is one of the four architecture tags tpm knows how to install for.
type Arch string

const (
	ArchARM64  Arch = "arm64"
	ArchARM    Arch = "arm"
	ArchI686   Arch = "i686"
	ArchX86_64 Arch = "x86_64" //nolint:revive // matches the spec's literal tag
)

// normalizeArch maps a raw hint or uname machine string onto one of the
// four supported Arch tags. Returns ("", false) when unrecognized.
func normalizeArch(raw string) (Arch, bool) {
	switch raw {
	case "aarch64", "arm64":
		return ArchARM64, true
	case "armv7l", "arm", "armhf", "armv8":
		return ArchARM, true
	case "i686", "x86", "i386":
		return ArchI686, true
	case "x86_64", "amd64":
		return ArchX86_64, true
	default:
		return "", false
	}
}

// DetectArch resolves the host arch tag. It first consults hint (the
// TERMUX_ARCH environment variable, when set), then falls back to
// unameMachine (the kernel-reported machine string). Any other value
// fails with an UnsupportedError, per §4.1.
func DetectArch(hint, unameMachine string) (Arch, error) {
	if hint != "" {
		if a, ok := normalizeArch(hint); ok {
			return a, nil
		}
		return "", errors.NewUnsupportedArchError(hint)
	}
	if a, ok := normalizeArch(unameMachine); ok {
		return a, nil
	}
	return "", errors.NewUnsupportedArchError(unameMachine)
}
