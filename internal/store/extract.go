package store

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"

	"github.com/x49dev/tpm/internal/errors"
)

// archiveKind is the dispatch tag derived from an asset's filename.
type archiveKind string

const (
	kindTarGz  archiveKind = "tar.gz"
	kindTarBz2 archiveKind = "tar.bz2"
	kindTarXz  archiveKind = "tar.xz"
	kindTar    archiveKind = "tar"
	kindZip    archiveKind = "zip"
	kindRaw    archiveKind = "raw"
)

// detectArchiveKind dispatches on filename suffix.
func detectArchiveKind(name string) archiveKind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return kindTarGz
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		return kindTarBz2
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return kindTarXz
	case strings.HasSuffix(lower, ".tar"):
		return kindTar
	case strings.HasSuffix(lower, ".zip"):
		return kindZip
	default:
		return kindRaw
	}
}

// extractArchive extracts archivePath into destDir. It first tries
// stripping a single wrapping top-level directory, and on failure
// retries without stripping — release archives routinely wrap content
// in one top-level directory, but not always.
func extractArchive(archivePath, destDir string) error {
	kind := detectArchiveKind(archivePath)

	if kind == kindRaw {
		return extractRaw(archivePath, destDir)
	}

	tryDir := filepath.Join(destDir, ".strip-attempt")
	if err := extractTo(archivePath, kind, tryDir, true); err == nil {
		if err := promoteStripped(tryDir, destDir); err == nil {
			return nil
		}
	}
	_ = os.RemoveAll(tryDir)

	return extractTo(archivePath, kind, destDir, false)
}

// promoteStripped moves the contents of a successful strip-attempt
// directory up into destDir.
func promoteStripped(tryDir, destDir string) error {
	entries, err := os.ReadDir(tryDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.Rename(filepath.Join(tryDir, e.Name()), filepath.Join(destDir, e.Name())); err != nil {
			return err
		}
	}
	return os.RemoveAll(tryDir)
}

func extractTo(archivePath string, kind archiveKind, destDir string, strip bool) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errors.NewCorruptArchiveError(archivePath, err)
	}
	defer f.Close()

	switch kind {
	case kindTarGz:
		gr, err := pgzip.NewReader(f)
		if err != nil {
			return errors.NewCorruptArchiveError(archivePath, err)
		}
		defer gr.Close()
		return extractTar(gr, destDir, strip)
	case kindTarBz2:
		return extractTar(bzip2.NewReader(f), destDir, strip)
	case kindTarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			return errors.NewCorruptArchiveError(archivePath, err)
		}
		return extractTar(xr, destDir, strip)
	case kindTar:
		return extractTar(f, destDir, strip)
	case kindZip:
		return extractZip(f, destDir, strip)
	default:
		return errors.NewUnsupportedArchiveError(archivePath)
	}
}

func extractRaw(archivePath, destDir string) error {
	if err := os.MkdirAll(filepath.Join(destDir, "bin"), 0o755); err != nil {
		return errors.NewFilesystemError(destDir, err)
	}
	binName := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
	target := filepath.Join(destDir, "bin", binName)

	in, err := os.Open(archivePath)
	if err != nil {
		return errors.NewFilesystemError(archivePath, err)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return errors.NewFilesystemError(target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.NewFilesystemError(target, err)
	}
	return nil
}

func extractTar(r io.Reader, destDir string, strip bool) error {
	tr := tar.NewReader(r)

	type entry struct {
		name string
		hdr  *tar.Header
		data []byte
	}
	var entries []entry

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.NewCorruptArchiveError(destDir, err)
		}

		name := hdr.Name

		var data []byte
		if hdr.Typeflag == tar.TypeReg {
			data, err = io.ReadAll(tr)
			if err != nil {
				return errors.NewCorruptArchiveError(destDir, err)
			}
		}
		entries = append(entries, entry{name: name, hdr: hdr, data: data})
	}

	if strip {
		wrapper := ""
		for _, e := range entries {
			top, _, _ := strings.Cut(e.name, "/")
			if wrapper == "" {
				wrapper = top
			} else if top != wrapper {
				return fmt.Errorf("cannot strip top-level directory: entries under both %q and %q", wrapper, top)
			}
		}
	}

	for _, e := range entries {
		name := e.name
		if strip {
			top, rest, found := strings.Cut(name, "/")
			if !found || top == "" {
				return fmt.Errorf("cannot strip top-level directory: entry %q has no parent", name)
			}
			name = rest
			if name == "" {
				continue
			}
		}

		target := filepath.Join(destDir, name)
		if !isInsideDir(destDir, target) {
			return fmt.Errorf("invalid file path: %s", e.name)
		}

		switch e.hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(e.hdr.Mode)); err != nil {
				return errors.NewFilesystemError(target, err)
			}
		case tar.TypeReg:
			if err := writeExtractedFile(target, e.data, os.FileMode(e.hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			linkTarget := filepath.Join(filepath.Dir(target), e.hdr.Linkname)
			if !isInsideDir(destDir, linkTarget) {
				return fmt.Errorf("invalid symlink target: %s -> %s", e.name, e.hdr.Linkname)
			}
			_ = os.MkdirAll(filepath.Dir(target), 0o755)
			_ = os.Symlink(e.hdr.Linkname, target)
		}
	}

	return nil
}

// extractZip extracts a zip archive. Zip has no native strip support;
// when strip is requested, emulate it by detecting whether extraction
// produced exactly one top-level directory entry and, if so, hoisting
// its contents up and removing it.
func extractZip(f *os.File, destDir string, strip bool) error {
	info, err := f.Stat()
	if err != nil {
		return errors.NewFilesystemError(f.Name(), err)
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return errors.NewCorruptArchiveError(f.Name(), err)
	}

	for _, zf := range zr.File {
		if isOSMetadataPath(zf.Name) {
			continue
		}
		target := filepath.Join(destDir, zf.Name)
		if !isInsideDir(destDir, target) {
			return fmt.Errorf("invalid file path: %s", zf.Name)
		}

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, zf.Mode()); err != nil {
				return errors.NewFilesystemError(target, err)
			}
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return errors.NewCorruptArchiveError(f.Name(), err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return errors.NewCorruptArchiveError(f.Name(), err)
		}
		if err := writeExtractedFile(target, data, zf.Mode()); err != nil {
			return err
		}
	}

	if strip {
		return emulateZipStrip(destDir)
	}
	return nil
}

// emulateZipStrip hoists the contents of a lone top-level directory up
// one level, when extraction produced exactly one top-level entry and
// it is a directory.
func emulateZipStrip(destDir string) error {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return fmt.Errorf("zip did not produce a single wrapping directory")
	}
	wrapped := filepath.Join(destDir, entries[0].Name())
	inner, err := os.ReadDir(wrapped)
	if err != nil {
		return err
	}
	for _, e := range inner {
		if err := os.Rename(filepath.Join(wrapped, e.Name()), filepath.Join(destDir, e.Name())); err != nil {
			return err
		}
	}
	return os.Remove(wrapped)
}

func writeExtractedFile(target string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.NewFilesystemError(target, err)
	}
	if err := os.WriteFile(target, data, mode); err != nil {
		return errors.NewFilesystemError(target, err)
	}
	return nil
}

// isInsideDir reports whether target resolves inside baseDir, guarding
// against path-traversal entries in archives.
func isInsideDir(baseDir, target string) bool {
	rel, err := filepath.Rel(baseDir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func isOSMetadataPath(name string) bool {
	return name == "__MACOSX" || name == "__MACOSX/" || strings.HasPrefix(name, "__MACOSX/")
}
