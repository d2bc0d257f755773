package checksum

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name          string
		value         string
		wantAlgorithm Algorithm
		wantHash      string
		wantErr       bool
	}{
		{
			name:          "sha256",
			value:         "sha256:abc123",
			wantAlgorithm: AlgorithmSHA256,
			wantHash:      "abc123",
			wantErr:       false,
		},
		{
			name:          "sha1",
			value:         "sha1:def456",
			wantAlgorithm: AlgorithmSHA1,
			wantHash:      "def456",
			wantErr:       false,
		},
		{
			name:          "md5",
			value:         "md5:789abc",
			wantAlgorithm: AlgorithmMD5,
			wantHash:      "789abc",
			wantErr:       false,
		},
		{
			name:    "missing algorithm",
			value:   "abc123",
			wantErr: true,
		},
		{
			name:    "unsupported algorithm",
			value:   "sha512:abc123",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alg, hash, err := Parse(tt.value)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantAlgorithm, alg)
			assert.Equal(t, tt.wantHash, hash)
		})
	}
}

func TestCalculate(t *testing.T) {
	content := []byte("hello world")
	expectedSHA256 := fmt.Sprintf("%x", sha256.Sum256(content))
	expectedSHA1 := fmt.Sprintf("%x", sha1.Sum(content))   //nolint:gosec
	expectedMD5 := fmt.Sprintf("%x", md5.Sum(content)) //nolint:gosec

	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "testfile")
	err := os.WriteFile(filePath, content, 0644)
	require.NoError(t, err)

	tests := []struct {
		name      string
		algorithm Algorithm
		want      string
		wantErr   bool
	}{
		{
			name:      "sha256",
			algorithm: AlgorithmSHA256,
			want:      expectedSHA256,
			wantErr:   false,
		},
		{
			name:      "sha1",
			algorithm: AlgorithmSHA1,
			want:      expectedSHA1,
			wantErr:   false,
		},
		{
			name:      "md5",
			algorithm: AlgorithmMD5,
			want:      expectedMD5,
			wantErr:   false,
		},
		{
			name:      "unsupported algorithm",
			algorithm: "sha512",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(filePath, tt.algorithm)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateFromReader(t *testing.T) {
	content := []byte("hello world")
	expectedSHA256 := fmt.Sprintf("%x", sha256.Sum256(content))

	hash, err := CalculateFromReader(bytes.NewReader(content), AlgorithmSHA256)
	require.NoError(t, err)
	assert.Equal(t, expectedSHA256, hash)
}

func TestVerify(t *testing.T) {
	content := []byte("hello world")
	expectedSHA256 := fmt.Sprintf("%x", sha256.Sum256(content))

	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "testfile")
	err := os.WriteFile(filePath, content, 0644)
	require.NoError(t, err)

	tests := []struct {
		name      string
		hash      string
		algorithm Algorithm
		wantErr   bool
	}{
		{
			name:      "valid checksum",
			hash:      expectedSHA256,
			algorithm: AlgorithmSHA256,
			wantErr:   false,
		},
		{
			name:      "valid checksum, different case",
			hash:      strings.ToUpper(expectedSHA256),
			algorithm: AlgorithmSHA256,
			wantErr:   false,
		},
		{
			name:      "invalid checksum",
			hash:      "0000000000000000000000000000000000000000000000000000000000000000",
			algorithm: AlgorithmSHA256,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(filePath, tt.algorithm, tt.hash)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
		})
	}
}

func TestDetectAlgorithm(t *testing.T) {
	tests := []struct {
		name string
		hash string
		want Algorithm
	}{
		{
			name: "sha256 length",
			hash: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			want: AlgorithmSHA256,
		},
		{
			name: "sha1 length",
			hash: "da39a3ee5e6b4b0d3255bfef95601890afd80709",
			want: AlgorithmSHA1,
		},
		{
			name: "md5 length",
			hash: "d41d8cd98f00b204e9800998ecf8427e",
			want: AlgorithmMD5,
		},
		{
			name: "unknown length",
			hash: "abc123",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectAlgorithm(tt.hash)
			assert.Equal(t, tt.want, got)
		})
	}
}
