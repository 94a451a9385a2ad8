package dictionary

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// maxTermsFileSize caps how much a remote terms file may expand to.
const maxTermsFileSize = 64 * 1024 * 1024

// EnsureTerms checks if the terms file exists at path.
// If not and url is set, it downloads the file (plain or gzip-compressed JSON) and writes it to path.
func EnsureTerms(ctx context.Context, path, url string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if url == "" {
		return fmt.Errorf("terms file %s missing and no download url configured", path)
	}

	slog.InfoContext(ctx, "terms file not found, downloading", "path", path, "url", url)
	return download(ctx, url, path)
}

func download(ctx context.Context, url, destPath string) error {
	client := &http.Client{Timeout: 30 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "glossary-cli")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	// Sniff the gzip magic bytes rather than trusting headers or file names.
	br := bufio.NewReader(resp.Body)
	var body io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	// Write to a temp file first so a failed download never leaves a truncated terms file behind.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".terms-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(body, maxTermsFileSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write terms file: %w", err)
	}
	if n > maxTermsFileSize {
		return fmt.Errorf("terms file exceeds %d bytes", maxTermsFileSize)
	}
	return os.Rename(tmp.Name(), destPath)
}
