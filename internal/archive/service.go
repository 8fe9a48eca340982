package archive

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/adlibra/adlibra-backend/internal/extract"
	"github.com/adlibra/adlibra-backend/internal/mediastore"
	"github.com/adlibra/adlibra-backend/pkg/db/models"
	"github.com/adlibra/adlibra-backend/pkg/enums"
	"github.com/adlibra/adlibra-backend/pkg/errors"
	"github.com/adlibra/adlibra-backend/pkg/logger"
)

const (
	saveAttempts   = 3
	saveRetryDelay = time.Second
)

// repository is the persistence surface the service needs; *Repository
// satisfies it.
type repository interface {
	FindByExternalID(ctx context.Context, platform, adArchiveID string) (*models.AdArchive, error)
	UpsertAd(ctx context.Context, ad *models.AdArchive) error
	UpsertMedia(ctx context.Context, items []models.AdMedia) error
}

// resolver resolves one media slot; *mediastore.Resolver satisfies it.
type resolver interface {
	Resolve(ctx context.Context, adID uuid.UUID, position int, mediaType enums.MediaType, originalURL string) (*mediastore.Resolved, error)
}

// JobMeta tags persisted ads with the search that discovered them.
type JobMeta struct {
	SearchType  enums.SearchType
	SearchQuery string
	Platform    string
}

// SaveResult reports the outcome of persisting one ad.
type SaveResult struct {
	AdID       uuid.UUID
	IsNew      bool
	MediaCount int
	Attempts   int
}

// Service persists extracted ads and their media.
type Service struct {
	repo     repository
	resolver resolver
	logg     *logger.Logger

	retryDelay time.Duration
}

// ServiceParams groups the service dependencies.
type ServiceParams struct {
	Repo     repository
	Resolver resolver
	Logger   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New(errors.CodeInternal, "archive: repository is required")
	}
	if params.Resolver == nil {
		return nil, errors.New(errors.CodeInternal, "archive: media resolver is required")
	}
	if params.Logger == nil {
		return nil, errors.New(errors.CodeInternal, "archive: logger is required")
	}
	return &Service{
		repo:       params.Repo,
		resolver:   params.Resolver,
		logg:       params.Logger,
		retryDelay: saveRetryDelay,
	}, nil
}

// SaveAd persists one collated ad: upsert the archive row, resolve every
// media slot (images first, then videos, in discovery order) and upsert the
// media rows. The whole unit is retried up to three times with a fixed delay
// before the ad counts as failed.
func (s *Service) SaveAd(ctx context.Context, ad extract.CollatedAd, meta JobMeta) (*SaveResult, error) {
	ctx = s.logg.WithAdArchiveID(ctx, ad.AdArchiveID)

	var lastErr error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		result, err := s.saveOnce(ctx, ad, meta)
		if err == nil {
			result.Attempts = attempt
			return result, nil
		}
		lastErr = err
		if attempt < saveAttempts {
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "saving ad failed, retrying")
			if waitErr := sleepCtx(ctx, s.retryDelay); waitErr != nil {
				return nil, waitErr
			}
		}
	}
	return nil, errors.Wrap(errors.CodeDependency, lastErr, "saving ad after retries")
}

func (s *Service) saveOnce(ctx context.Context, ad extract.CollatedAd, meta JobMeta) (*SaveResult, error) {
	existing, err := s.repo.FindByExternalID(ctx, meta.Platform, ad.AdArchiveID)
	if err != nil {
		return nil, err
	}

	record := buildArchive(ad, meta)
	if existing != nil {
		record.ID = existing.ID
	}
	if err := s.repo.UpsertAd(ctx, record); err != nil {
		return nil, err
	}

	items, err := s.resolveMedia(ctx, record.ID, ad)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertMedia(ctx, items); err != nil {
		return nil, err
	}

	return &SaveResult{
		AdID:       record.ID,
		IsNew:      existing == nil,
		MediaCount: len(items),
	}, nil
}

// resolveMedia assigns positions across the combined media set: all images in
// discovery order, then all videos.
func (s *Service) resolveMedia(ctx context.Context, adID uuid.UUID, ad extract.CollatedAd) ([]models.AdMedia, error) {
	type slot struct {
		mediaType enums.MediaType
		url       string
	}
	slots := []slot{}
	for _, u := range ad.ImageURLs() {
		slots = append(slots, slot{mediaType: enums.MediaTypeImage, url: u})
	}
	for _, u := range ad.VideoURLs() {
		slots = append(slots, slot{mediaType: enums.MediaTypeVideo, url: u})
	}

	items := make([]models.AdMedia, 0, len(slots))
	for position, sl := range slots {
		resolved, err := s.resolver.Resolve(ctx, adID, position, sl.mediaType, sl.url)
		if err != nil {
			return nil, err
		}
		items = append(items, models.AdMedia{
			AdID:            adID,
			MediaType:       sl.mediaType,
			Position:        position,
			OriginalURL:     sl.url,
			MediaURL:        resolved.MediaURL,
			StoragePublicID: resolved.PublicID,
			Metadata:        resolved.Metadata,
			OCRText:         resolved.OCRText,
			OCRConfidence:   resolved.OCRConfidence,
		})
	}
	return items, nil
}

func buildArchive(ad extract.CollatedAd, meta JobMeta) *models.AdArchive {
	return &models.AdArchive{
		Platform:           meta.Platform,
		AdArchiveID:        ad.AdArchiveID,
		SearchType:         meta.SearchType,
		SearchQuery:        meta.SearchQuery,
		AdvertiserName:     ad.PageName,
		CreativeBody:       ad.CreativeBody(),
		LinkTitle:          ad.LinkTitle(),
		LinkDescription:    ad.LinkDescription(),
		LinkURL:            ad.LinkURL(),
		StartedRunningDate: ad.StartTime(),
		LastShownDate:      ad.EndTime(),
		PlatformData:       ad.PlatformData(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
