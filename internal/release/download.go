package release

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/x49dev/tpm/internal/checksum"
	"github.com/x49dev/tpm/internal/errors"
)

// retryDelay is the pause between download attempts. The retry budget
// itself (how many attempts) comes from config.MaxRetries.
const retryDelay = time.Second

// DownloadAsset fetches url into a temp file under tmpDir, verifying
// expectedChecksum ("algo:hex") if non-empty, then returns the temp
// file's path for the caller to move into place. progress, if
// non-nil, is driven with the asset's size and bytes transferred; pass
// nil for non-TTY output.
//
// A digest whose algorithm tpm does not support is a warn-and-accept:
// a warning is logged and the download is kept, not failed.
func DownloadAsset(ctx context.Context, client *http.Client, progress *mpb.Progress, assetName, url, tmpDir, expectedChecksum string, timeout time.Duration, retries int) (string, error) {
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", errors.NewFilesystemError(tmpDir, err)
	}
	destPath := filepath.Join(tmpDir, assetName)

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		if err := downloadOnce(ctx, client, progress, assetName, url, destPath, timeout); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return "", lastErr
	}

	if expectedChecksum != "" {
		algo, hex, err := checksum.Parse(expectedChecksum)
		if err != nil {
			slog.Warn("checksum not verified: unsupported digest", "asset", assetName, "error", err)
			return destPath, nil
		}
		if _, hashErr := checksum.NewHash(algo); hashErr != nil {
			slog.Warn("checksum not verified: unsupported digest", "asset", assetName, "error", hashErr)
			return destPath, nil
		}
		if err := checksum.Verify(destPath, algo, hex); err != nil {
			got, _ := checksum.Calculate(destPath, algo)
			os.Remove(destPath)
			return "", errors.NewChecksumMismatchError(assetName, hex, got)
		}
	}

	return destPath, nil
}

func downloadOnce(ctx context.Context, client *http.Client, progress *mpb.Progress, assetName, url, destPath string, timeout time.Duration) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout*3)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return errors.NewNetworkError(url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.NewNetworkError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.NewHTTPError(url, resp.StatusCode)
	}

	tmpPath := destPath + ".part"
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.NewFilesystemError(tmpPath, err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	var w io.Writer = f
	if progress != nil {
		bar := progress.AddBar(resp.ContentLength,
			mpb.PrependDecorators(decor.Name(assetName, decor.WC{W: len(assetName) + 1, C: decor.DindentRight})),
			mpb.AppendDecorators(decor.CountersKibiByte("% .1f / % .1f")),
		)
		proxy := bar.ProxyReader(resp.Body)
		defer proxy.Close()
		if _, err := io.Copy(f, proxy); err != nil {
			return errors.NewNetworkError(url, err)
		}
	} else {
		if _, err := io.Copy(w, resp.Body); err != nil {
			return errors.NewNetworkError(url, err)
		}
	}

	if err := f.Close(); err != nil {
		return errors.NewFilesystemError(destPath, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return errors.NewFilesystemError(destPath, fmt.Errorf("rename: %w", err))
	}
	return nil
}
