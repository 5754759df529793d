// Package source makes lexicon source directories available, downloading and
// unpacking a .tar.gz archive when the directory is missing.
package source

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"k8s.io/klog/v2"
)

const userAgent = "dictbuild"

// Options tune the download.
type Options struct {
	Retries int
	Timeout time.Duration
	// MaxBytes bounds the unpacked size of the archive. Zero selects 2 GiB.
	MaxBytes int64
}

// Ensure returns nil when dir already exists with content. Otherwise it downloads the
// archive at url and unpacks it into dir. A leading directory shared by every archive
// member is stripped, so "mecab-ipadic-2.7.0/Noun.csv" lands at dir/Noun.csv.
func Ensure(ctx context.Context, dir, url string, opts Options) error {
	if ok, err := populated(dir); err != nil {
		return err
	} else if ok {
		return nil
	}
	if url == "" {
		return fmt.Errorf("source directory %s is missing and no download url is configured", dir)
	}

	klog.InfoS("source directory missing, downloading", "dir", dir, "url", url)
	parent := filepath.Dir(filepath.Clean(dir))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(parent, ".source-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	if err := download(ctx, url, tmp, opts); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.Rename(tmp, dir)
}

func populated(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// NewClient returns a retrying HTTP client that logs through klog.
func NewClient(opts Options) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = opts.Retries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 10 * time.Second
	client.Logger = klogAdapter{}
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}
	return client
}

func download(ctx context.Context, url, dest string, opts Options) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := NewClient(opts).Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}
	return Extract(resp.Body, dest, opts.MaxBytes)
}

// Extract unpacks a gzip compressed tar stream into dest. Members escaping dest are
// rejected.
func Extract(r io.Reader, dest string, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = 2 << 30
	}
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	var files []string
	tarReader := tar.NewReader(gzReader)
	var written int64
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading tar archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		name := path.Clean(strings.TrimPrefix(header.Name, "./"))
		if name == "." || path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return fmt.Errorf("archive member %q escapes the destination", header.Name)
		}
		if written += header.Size; written > maxBytes {
			return fmt.Errorf("archive exceeds %d bytes", maxBytes)
		}
		target := filepath.Join(dest, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := writeMember(target, tarReader, header.Size); err != nil {
			return err
		}
		files = append(files, name)
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found in downloaded archive")
	}
	return stripCommonDir(dest, files)
}

func writeMember(target string, r io.Reader, size int64) error {
	outFile, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer outFile.Close()
	if _, err := io.CopyN(outFile, r, size); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return outFile.Close()
}

// stripCommonDir hoists the contents of a single top-level directory into dest.
func stripCommonDir(dest string, files []string) error {
	top, _, ok := strings.Cut(files[0], "/")
	if !ok {
		return nil
	}
	for _, f := range files[1:] {
		if !strings.HasPrefix(f, top+"/") {
			return nil
		}
	}
	inner := filepath.Join(dest, top)
	entries, err := os.ReadDir(inner)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.Rename(filepath.Join(inner, e.Name()), filepath.Join(dest, e.Name())); err != nil {
			return err
		}
	}
	return os.Remove(inner)
}

// klogAdapter satisfies retryablehttp.LeveledLogger.
type klogAdapter struct{}

func (klogAdapter) Error(msg string, keysAndValues ...interface{}) {
	klog.ErrorS(nil, msg, keysAndValues...)
}

func (klogAdapter) Info(msg string, keysAndValues ...interface{}) {
	klog.V(2).InfoS(msg, keysAndValues...)
}

func (klogAdapter) Debug(msg string, keysAndValues ...interface{}) {
	klog.V(4).InfoS(msg, keysAndValues...)
}

func (klogAdapter) Warn(msg string, keysAndValues ...interface{}) {
	klog.InfoS(msg, keysAndValues...)
}
