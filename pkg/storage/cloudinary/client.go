package cloudinary

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adlibra/adlibra-backend/pkg/config"
	"github.com/adlibra/adlibra-backend/pkg/logger"
)

const (
	apiBase       = "https://api.cloudinary.com/v1_1"
	uploadTimeout = 2 * time.Minute
	pingTimeout   = 5 * time.Second
)

// ResourceType selects the Cloudinary upload pipeline.
type ResourceType string

const (
	ResourceImage ResourceType = "image"
	ResourceVideo ResourceType = "video"
)

var (
	errNotConfigured   = errors.New("cloudinary client not configured")
	errPublicIDMissing = errors.New("public id is required")
	errSourceMissing   = errors.New("upload source is required")
)

// UploadResult is the subset of the Cloudinary upload response the pipeline uses.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Format    string `json:"format"`
	Bytes     int64  `json:"bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Client is a minimal signed REST client for the Cloudinary upload API.
type Client struct {
	httpClient *http.Client
	cfg        config.CloudinaryConfig
	now        func() time.Time
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func closeBody(ctx context.Context, logg *logger.Logger, body io.Closer, msg string) {
	if body == nil {
		return
	}
	if err := body.Close(); err != nil && logg != nil {
		logg.Warn(ctx, msg)
	}
}

// NewClient validates credentials and returns a client. It does not call the
// API; use Ping for a connectivity check.
func NewClient(ctx context.Context, cfg config.CloudinaryConfig, logg *logger.Logger) (*Client, error) {
	if !cfg.Configured() {
		return nil, errNotConfigured
	}

	client := &Client{
		httpClient: &http.Client{Timeout: uploadTimeout},
		cfg:        cfg,
		now:        time.Now,
	}

	if logg != nil {
		logg.Info(ctx, "cloudinary client initialized")
	}

	return client, nil
}

// UploadRemote asks Cloudinary to fetch the asset directly from remoteURL.
func (c *Client) UploadRemote(ctx context.Context, remoteURL, publicID string, resourceType ResourceType, folder string) (*UploadResult, error) {
	if c == nil {
		return nil, errNotConfigured
	}
	if strings.TrimSpace(remoteURL) == "" {
		return nil, errSourceMissing
	}
	if strings.TrimSpace(publicID) == "" {
		return nil, errPublicIDMissing
	}

	params := c.signedParams(publicID, folder)
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("file", remoteURL)

	endpoint := c.uploadEndpoint(resourceType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(ctx, req)
}

// UploadFile uploads a local file via multipart form data.
func (c *Client) UploadFile(ctx context.Context, path, publicID string, resourceType ResourceType, folder string) (*UploadResult, error) {
	if c == nil {
		return nil, errNotConfigured
	}
	if strings.TrimSpace(path) == "" {
		return nil, errSourceMissing
	}
	if strings.TrimSpace(publicID) == "" {
		return nil, errPublicIDMissing
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening upload source: %w", err)
	}
	defer func() { _ = file.Close() }()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		var werr error
		defer func() { _ = pw.CloseWithError(werr) }()

		for k, v := range c.signedParams(publicID, folder) {
			if werr = writer.WriteField(k, v); werr != nil {
				return
			}
		}

		part, err := writer.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			werr = err
			return
		}
		if _, werr = io.Copy(part, file); werr != nil {
			return
		}
		werr = writer.Close()
	}()

	endpoint := c.uploadEndpoint(resourceType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(ctx, req)
}

// Destroy removes an uploaded asset by public id.
func (c *Client) Destroy(ctx context.Context, publicID string, resourceType ResourceType) error {
	if c == nil {
		return errNotConfigured
	}
	if strings.TrimSpace(publicID) == "" {
		return errPublicIDMissing
	}

	timestamp := strconv.FormatInt(c.now().UTC().Unix(), 10)
	params := map[string]string{
		"public_id": publicID,
		"timestamp": timestamp,
	}
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("api_key", c.cfg.APIKey)
	form.Set("signature", c.sign(params))

	endpoint := fmt.Sprintf("%s/%s/%s/destroy", apiBase, url.PathEscape(c.cfg.CloudName), string(resourceType))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { closeBody(ctx, nil, resp.Body, "cloudinary: closing response body failed") }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cloudinary destroy returned %s", resp.Status)
	}
	return nil
}

// Ping verifies credentials against the admin ping endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s/ping", apiBase, url.PathEscape(c.cfg.CloudName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { closeBody(ctx, nil, resp.Body, "cloudinary: closing response body failed") }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cloudinary ping returned %s", resp.Status)
	}
	return nil
}

// Folder returns the configured folder for the resource type.
func (c *Client) Folder(resourceType ResourceType) string {
	if resourceType == ResourceVideo {
		return c.cfg.VideoFolder
	}
	return c.cfg.ImageFolder
}

func (c *Client) uploadEndpoint(resourceType ResourceType) string {
	rt := string(resourceType)
	if rt == "" {
		rt = string(ResourceImage)
	}
	return fmt.Sprintf("%s/%s/%s/upload", apiBase, url.PathEscape(c.cfg.CloudName), rt)
}

func (c *Client) signedParams(publicID, folder string) map[string]string {
	params := map[string]string{
		"public_id": publicID,
		"timestamp": strconv.FormatInt(c.now().UTC().Unix(), 10),
		"overwrite": "true",
	}
	if strings.TrimSpace(folder) != "" {
		params["folder"] = folder
	}
	signature := c.sign(params)
	params["api_key"] = c.cfg.APIKey
	params["signature"] = signature
	return params
}

// sign produces the Cloudinary request signature: the SHA-1 hex digest of the
// sorted params serialized as k=v pairs joined by '&', with the API secret
// appended. api_key, file and signature never participate.
func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	payload := strings.Join(pairs, "&") + c.cfg.APISecret
	sum := sha1.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func (c *Client) do(ctx context.Context, req *http.Request) (*UploadResult, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { closeBody(ctx, nil, resp.Body, "cloudinary: closing response body failed") }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if len(b) > 0 {
			return nil, fmt.Errorf("cloudinary upload failed: %s: %s", resp.Status, strings.TrimSpace(string(b)))
		}
		return nil, fmt.Errorf("cloudinary upload failed: %s", resp.Status)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	if result.SecureURL == "" {
		return nil, errors.New("upload response missing secure_url")
	}
	return &result, nil
}
