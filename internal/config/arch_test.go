package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectArchFromHint(t *testing.T) {
	a, err := DetectArch("arm64", "x86_64")
	require.NoError(t, err)
	assert.Equal(t, ArchARM64, a)
}

func TestDetectArchFallsBackToUname(t *testing.T) {
	a, err := DetectArch("", "aarch64")
	require.NoError(t, err)
	assert.Equal(t, ArchARM64, a)
}

func TestDetectArchMapsAllKnownAliases(t *testing.T) {
	cases := map[string]Arch{
		"aarch64": ArchARM64,
		"arm64":   ArchARM64,
		"armv7l":  ArchARM,
		"arm":     ArchARM,
		"armhf":   ArchARM,
		"armv8":   ArchARM,
		"i686":    ArchI686,
		"x86":     ArchI686,
		"i386":    ArchI686,
		"x86_64":  ArchX86_64,
		"amd64":   ArchX86_64,
	}
	for raw, want := range cases {
		a, err := DetectArch("", raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, a, raw)
	}
}

func TestDetectArchUnsupportedHint(t *testing.T) {
	_, err := DetectArch("riscv64", "x86_64")
	require.Error(t, err)
}

func TestDetectArchUnsupportedUname(t *testing.T) {
	_, err := DetectArch("", "sparc64")
	require.Error(t, err)
}
