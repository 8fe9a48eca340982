package mediastore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const downloadTimeout = 90 * time.Second

// Browser-like headers; the CDN refuses anonymous fetches for some assets.
var downloadHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	"Referer":    "https://www.facebook.com/",
	"Accept":     "image/*, video/*, */*",
}

// downloadToTempFile fetches url into a temp file and returns its path. The
// file suffix comes from sniffing the downloaded content, not the URL. The
// caller owns removal of the file.
func downloadToTempFile(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	for key, value := range downloadHeaders {
		req.Header.Set(key, value)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading media: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading media: %s", resp.Status)
	}

	tmp, err := os.CreateTemp("", "adlibra-media-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}

	mtype, err := mimetype.DetectFile(tmp.Name())
	if err != nil || mtype.Extension() == "" {
		return tmp.Name(), nil
	}

	named := tmp.Name() + mtype.Extension()
	if err := os.Rename(tmp.Name(), named); err != nil {
		return tmp.Name(), nil
	}
	return named, nil
}
