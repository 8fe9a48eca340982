package cloudinary

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/adlibra/adlibra-backend/pkg/config"
)

func testClient() *Client {
	return &Client{
		cfg: config.CloudinaryConfig{
			CloudName:   "demo",
			APIKey:      "key123",
			APISecret:   "secret456",
			ImageFolder: "ads-library/images",
			VideoFolder: "ads-library/videos",
		},
		now: func() time.Time { return time.Unix(1700000000, 0) },
	}
}

func TestSignIsDeterministicHex(t *testing.T) {
	c := testClient()
	params := map[string]string{
		"public_id": "ad_123_img_0",
		"timestamp": "1700000000",
	}

	first := c.sign(params)
	second := c.sign(params)

	if first != second {
		t.Fatalf("signature not deterministic: %s vs %s", first, second)
	}
	if !regexp.MustCompile(`^[0-9a-f]{40}$`).MatchString(first) {
		t.Fatalf("expected sha1 hex signature, got %q", first)
	}
}

func TestSignChangesWithParams(t *testing.T) {
	c := testClient()
	base := c.sign(map[string]string{"public_id": "a", "timestamp": "1"})
	other := c.sign(map[string]string{"public_id": "b", "timestamp": "1"})
	if base == other {
		t.Fatal("different params produced identical signatures")
	}
}

func TestSignedParamsIncludeCredentials(t *testing.T) {
	c := testClient()
	params := c.signedParams("ad_123_img_0", "ads-library/images")

	if params["api_key"] != "key123" {
		t.Fatalf("expected api_key to be set, got %q", params["api_key"])
	}
	if params["signature"] == "" {
		t.Fatal("expected signature to be set")
	}
	if params["folder"] != "ads-library/images" {
		t.Fatalf("expected folder param, got %q", params["folder"])
	}
	if params["timestamp"] != "1700000000" {
		t.Fatalf("expected pinned timestamp, got %q", params["timestamp"])
	}
	if _, ok := params["file"]; ok {
		t.Fatal("file must never be part of the signed params")
	}
}

func TestSignatureExcludesCredentials(t *testing.T) {
	c := testClient()
	params := c.signedParams("x", "")

	signature := params["signature"]
	delete(params, "api_key")
	delete(params, "signature")

	if got := c.sign(params); got != signature {
		t.Fatalf("signature must cover only the business params: %s vs %s", got, signature)
	}
}

func TestFolderSelection(t *testing.T) {
	c := testClient()
	if got := c.Folder(ResourceImage); got != "ads-library/images" {
		t.Fatalf("image folder: %q", got)
	}
	if got := c.Folder(ResourceVideo); got != "ads-library/videos" {
		t.Fatalf("video folder: %q", got)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), config.CloudinaryConfig{}, nil)
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
}
