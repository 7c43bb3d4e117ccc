package helper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

var httpClient = &http.Client{}

// DownloadFile saves the body of url into a new file in dir and returns its
// path. The file keeps filename's extension. Bodies larger than maxBytes are
// rejected when maxBytes > 0.
func DownloadFile(ctx context.Context, url, dir, filename string, maxBytes int64) (string, error) {
	slog.Debug("Downloading file", "url", url, "filename", filename)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("received non-200 response code: %d", resp.StatusCode)
	}
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return "", fmt.Errorf("file is larger than %d bytes", maxBytes)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}
	file, err := os.CreateTemp(dir, "upload-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	path := file.Name()

	body := io.Reader(resp.Body)
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	n, err := io.Copy(file, body)
	closeErr := file.Close()
	switch {
	case err != nil:
		err = fmt.Errorf("failed to save file: %w", err)
	case closeErr != nil:
		err = fmt.Errorf("failed to save file: %w", closeErr)
	case maxBytes > 0 && n > maxBytes:
		err = fmt.Errorf("file is larger than %d bytes", maxBytes)
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}

	slog.Debug("File downloaded successfully", "path", path, "bytes", n)
	return path, nil
}

// Remove deletes downloaded files, logging failures.
func Remove(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove downloaded file", "path", p, "error", err)
		}
	}
}
