// Package osv downloads the OSV vulnerability feeds and loads them into the
// graph: one vulnerability document per advisory, one package document per
// affected package, and vuln2package edges carrying the affected versions.
package osv

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// feedURLBase is the public OSV bucket. Each ecosystem publishes an all.zip
// of its advisories.
const feedURLBase = "https://osv-vulnerabilities.storage.googleapis.com"

// maxAdvisorySize caps a single extracted advisory file. The largest real
// advisories are well under a megabyte; anything bigger is a malformed feed.
const maxAdvisorySize = 64 << 20

// Downloader fetches per-ecosystem feed archives into a local data
// directory, one subdirectory per ecosystem.
type Downloader struct {
	DataDir string
	HTTP    *http.Client
	Logger  *zap.Logger
}

func NewDownloader(dataDir string, logger *zap.Logger) *Downloader {
	return &Downloader{
		DataDir: dataDir,
		HTTP:    &http.Client{Timeout: 10 * time.Minute},
		Logger:  logger,
	}
}

// DownloadAll fetches the feeds for every ecosystem, up to four at a time.
// One failed ecosystem does not stop the others; the error aggregates the
// failures.
func (d *Downloader) DownloadAll(ctx context.Context, ecosystems []string) error {
	sem := semaphore.NewWeighted(4)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs error

	for _, eco := range ecosystems {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}

		wg.Add(1)
		go func(eco string) {
			defer wg.Done()
			defer sem.Release(1)

			if err := d.Download(ctx, eco); err != nil {
				d.Logger.Sugar().Errorf("download %s feed: %v", eco, err)
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", eco, err))
				mu.Unlock()
			}
		}(eco)
	}

	wg.Wait()
	return errs
}

// Download fetches and extracts one ecosystem's feed. Extraction goes to a
// temp directory first and is renamed into place, so a killed run never
// leaves a half-written feed for the loader to trip over.
func (d *Downloader) Download(ctx context.Context, ecosystem string) error {
	// Ecosystem names can contain spaces ("Rocky Linux")
	feedURL := fmt.Sprintf("%s/%s/all.zip", feedURLBase, strings.ReplaceAll(ecosystem, " ", "%20"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return err
	}

	resp, err := d.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", feedURL, resp.StatusCode)
	}

	if err := os.MkdirAll(d.DataDir, 0o750); err != nil {
		return err
	}

	zipPath := filepath.Join(d.DataDir, ecosystem+".zip")
	if err := writeStream(zipPath, resp.Body); err != nil {
		return fmt.Errorf("save %s: %w", zipPath, err)
	}
	defer os.Remove(zipPath)

	tmpDir, err := os.MkdirTemp(d.DataDir, "."+ecosystem+"-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	count, err := extractZip(zipPath, tmpDir)
	if err != nil {
		return fmt.Errorf("extract %s: %w", zipPath, err)
	}

	finalDir := filepath.Join(d.DataDir, ecosystem)
	if err := os.RemoveAll(finalDir); err != nil {
		return err
	}
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return err
	}

	d.Logger.Sugar().Infof("downloaded %d advisories for %s", count, ecosystem)
	return nil
}

func writeStream(path string, r io.Reader) error {
	f, err := os.Create(path) // #nosec G304
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func extractZip(zipPath, destDir string) (int, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	count := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".json") {
			continue
		}

		// Feed archives are flat; drop any path component to stay inside
		// destDir.
		name := filepath.Base(f.Name)
		dest := filepath.Join(destDir, name)

		rc, err := f.Open()
		if err != nil {
			return count, err
		}
		err = writeStream(dest, io.LimitReader(rc, maxAdvisorySize))
		rc.Close()
		if err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}
