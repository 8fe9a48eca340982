package mediastore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/adlibra/adlibra-backend/pkg/enums"
	"github.com/adlibra/adlibra-backend/pkg/logger"
	"github.com/adlibra/adlibra-backend/pkg/metrics"
	"github.com/adlibra/adlibra-backend/pkg/storage/cloudinary"
)

// Uploader is the storage surface the resolver needs; *cloudinary.Client
// satisfies it.
type Uploader interface {
	UploadRemote(ctx context.Context, remoteURL, publicID string, resourceType cloudinary.ResourceType, folder string) (*cloudinary.UploadResult, error)
	UploadFile(ctx context.Context, path, publicID string, resourceType cloudinary.ResourceType, folder string) (*cloudinary.UploadResult, error)
	Folder(resourceType cloudinary.ResourceType) string
}

// ExistingMedia is a previously persisted media row eligible for reuse.
type ExistingMedia struct {
	MediaURL      string
	PublicID      *string
	Metadata      map[string]any
	OCRText       *string
	OCRConfidence *float64
}

// Finder looks up an existing media row by its natural key. A nil result with
// nil error means no reusable row exists.
type Finder interface {
	FindExisting(ctx context.Context, adID uuid.UUID, position int, originalURL string) (*ExistingMedia, error)
}

// Resolved is the outcome of resolving one media item.
type Resolved struct {
	MediaURL      string
	PublicID      *string
	Metadata      map[string]any
	OCRText       *string
	OCRConfidence *float64
	Reused        bool
	Uploaded      bool
	Degraded      bool
}

var errUploaderRequired = errors.New("uploads enabled but storage client is not configured")

// Resolver decides, per media item, between reusing an earlier upload,
// uploading fresh, and degrading to the original URL.
type Resolver struct {
	uploader      Uploader
	finder        Finder
	logg          *logger.Logger
	scrapeMetrics *metrics.ScrapeJobMetrics
	uploadEnabled bool

	// download fetches a URL to a local temp file; swapped in tests.
	download func(ctx context.Context, url string) (string, error)
}

func NewResolver(uploader Uploader, finder Finder, logg *logger.Logger, scrapeMetrics *metrics.ScrapeJobMetrics, uploadEnabled bool) *Resolver {
	return &Resolver{
		uploader:      uploader,
		finder:        finder,
		logg:          logg,
		scrapeMetrics: scrapeMetrics,
		uploadEnabled: uploadEnabled,
		download:      downloadToTempFile,
	}
}

// PublicID builds the deterministic storage id for a media slot.
func PublicID(adID uuid.UUID, mediaType enums.MediaType, position int) string {
	kind := "img"
	if mediaType == enums.MediaTypeVideo {
		kind = "vid"
	}
	return fmt.Sprintf("ad_%s_%s_%d", adID, kind, position)
}

// Resolve produces the persistable media fields for one (ad, position, URL)
// slot. Upload failures never surface as errors; the item degrades to the
// original URL with the failure recorded in metadata. Only infrastructure
// misconfiguration aborts.
func (r *Resolver) Resolve(ctx context.Context, adID uuid.UUID, position int, mediaType enums.MediaType, originalURL string) (*Resolved, error) {
	if !r.uploadEnabled {
		return &Resolved{MediaURL: originalURL}, nil
	}
	if r.uploader == nil {
		return nil, errUploaderRequired
	}

	if r.finder != nil {
		existing, err := r.finder.FindExisting(ctx, adID, position, originalURL)
		if err != nil {
			return nil, fmt.Errorf("checking for reusable media: %w", err)
		}
		if existing != nil && existing.PublicID != nil && *existing.PublicID != "" {
			return &Resolved{
				MediaURL:      existing.MediaURL,
				PublicID:      existing.PublicID,
				Metadata:      existing.Metadata,
				OCRText:       existing.OCRText,
				OCRConfidence: existing.OCRConfidence,
				Reused:        true,
			}, nil
		}
	}

	result, err := r.upload(ctx, adID, position, mediaType, originalURL)
	if err != nil {
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
			"position": position,
			"reason":   err.Error(),
		}), "media upload failed, storing original url")
		r.scrapeMetrics.IncUploadFailure(mediaType.String())
		return &Resolved{
			MediaURL: originalURL,
			Metadata: map[string]any{"upload_error": err.Error()},
			Degraded: true,
		}, nil
	}

	return &Resolved{
		MediaURL: result.SecureURL,
		PublicID: &result.PublicID,
		Metadata: uploadMetadata(result),
		Uploaded: true,
	}, nil
}

func (r *Resolver) upload(ctx context.Context, adID uuid.UUID, position int, mediaType enums.MediaType, originalURL string) (*cloudinary.UploadResult, error) {
	resourceType := cloudinary.ResourceImage
	if mediaType == enums.MediaTypeVideo {
		resourceType = cloudinary.ResourceVideo
	}
	publicID := PublicID(adID, mediaType, position)
	folder := r.uploader.Folder(resourceType)

	result, remoteErr := r.uploader.UploadRemote(ctx, originalURL, publicID, resourceType, folder)
	if remoteErr == nil {
		return result, nil
	}

	// The CDN rejects storage-side fetches for some assets; retry by
	// downloading with browser headers and uploading the file.
	path, err := r.download(ctx, originalURL)
	if err != nil {
		return nil, fmt.Errorf("remote fetch failed (%v) and local download failed: %w", remoteErr, err)
	}
	defer func() { _ = os.Remove(path) }()

	result, err = r.uploader.UploadFile(ctx, path, publicID, resourceType, folder)
	if err != nil {
		return nil, fmt.Errorf("remote fetch failed (%v) and file upload failed: %w", remoteErr, err)
	}
	return result, nil
}

func uploadMetadata(result *cloudinary.UploadResult) map[string]any {
	meta := map[string]any{}
	if result.Width > 0 {
		meta["width"] = result.Width
	}
	if result.Height > 0 {
		meta["height"] = result.Height
	}
	if result.Format != "" {
		meta["format"] = result.Format
	}
	if result.Bytes > 0 {
		meta["bytes"] = result.Bytes
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
