// Package config resolves tpm's runtime configuration from the
// environment: store/bin/lib directory layout, network policy, color
// policy, and the host architecture tag.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"
)

const defaultPrefix = "/data/data/com.termux/files/usr"

// ColorPolicy controls whether CLI output is colorized.
type ColorPolicy string

const (
	ColorAuto   ColorPolicy = "auto"
	ColorAlways ColorPolicy = "always"
	ColorNever  ColorPolicy = "never"
)

// Config is tpm's immutable runtime configuration, resolved once at
// startup from the environment.
type Config struct {
	Prefix string
	BinDir string
	LibDir string

	StoreRoot    string
	TmpDir       string
	ManifestFile string

	Arch Arch

	NetworkTimeout time.Duration
	MaxRetries     int
	Color          ColorPolicy
}

// Load resolves Config from the process environment.
func Load() (*Config, error) {
	arch, err := DetectArch(os.Getenv("TERMUX_ARCH"), unameMachine())
	if err != nil {
		return nil, err
	}

	prefix := os.Getenv("PREFIX")
	if prefix == "" {
		prefix = defaultPrefix
	}

	home := os.Getenv("HOME")
	if home == "" {
		home = prefix
	}

	maxRetries := 3
	if v := os.Getenv("TPM_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			maxRetries = n
		}
	}

	timeout := 30 * time.Second
	if v := os.Getenv("TPM_NETWORK_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}

	return &Config{
		Prefix:         prefix,
		BinDir:         filepath.Join(prefix, "bin"),
		LibDir:         filepath.Join(prefix, "lib", "tpm"),
		StoreRoot:      filepath.Join(prefix, "tpm", "store"),
		TmpDir:         filepath.Join(prefix, "tpm", "tmp"),
		ManifestFile:   filepath.Join(home, ".tpm", "manifest"),
		Arch:           arch,
		NetworkTimeout: timeout,
		MaxRetries:     maxRetries,
		Color:          resolveColorPolicy(),
	}, nil
}

// resolveColorPolicy honors NO_COLOR (https://no-color.org/) over
// TTY auto-detection, matching the rest of the pack's color handling.
func resolveColorPolicy() ColorPolicy {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}
	switch os.Getenv("TPM_COLOR") {
	case "always":
		return ColorAlways
	case "never":
		return ColorNever
	}
	return ColorAuto
}

// ShouldColorize applies the resolved color policy against whether fd
// is a terminal.
func (c *Config) ShouldColorize(fd uintptr) bool {
	switch c.Color {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
}

// unameMachine returns runtime.GOARCH mapped to uname(1)-style machine
// names, used as the fallback arch hint when TERMUX_ARCH is unset.
func unameMachine() string {
	switch runtime.GOARCH {
	case "arm64":
		return "aarch64"
	case "arm":
		return "armv7l"
	case "386":
		return "i686"
	case "amd64":
		return "x86_64"
	default:
		return runtime.GOARCH
	}
}
