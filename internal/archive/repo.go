package archive

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adlibra/adlibra-backend/internal/mediastore"
	"github.com/adlibra/adlibra-backend/pkg/db/models"
)

// Repository exposes ad archive and media persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an archive repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByExternalID retrieves an ad by its portal identity; nil when absent.
func (r *Repository) FindByExternalID(ctx context.Context, platform, adArchiveID string) (*models.AdArchive, error) {
	var ad models.AdArchive
	err := r.db.WithContext(ctx).
		First(&ad, "platform = ? AND ad_archive_id = ?", platform, adArchiveID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ad, nil
}

// UpsertAd inserts or updates an ad on its (platform, ad_archive_id) identity
// and leaves ad.ID set to the canonical row id.
func (r *Repository) UpsertAd(ctx context.Context, ad *models.AdArchive) error {
	if ad.ID == uuid.Nil {
		ad.ID = uuid.New()
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "platform"}, {Name: "ad_archive_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"search_type",
				"search_query",
				"advertiser_name",
				"ad_creative_body",
				"ad_creative_link_title",
				"ad_creative_link_description",
				"ad_creative_link_url",
				"started_running_date",
				"last_shown_date",
				"platform_specific_data",
				"updated_at",
			}),
		}).
		Create(ad).Error
	if err != nil {
		return err
	}

	// On conflict the generated id loses; reload the canonical one.
	existing, err := r.FindByExternalID(ctx, ad.Platform, ad.AdArchiveID)
	if err != nil {
		return err
	}
	if existing != nil {
		ad.ID = existing.ID
	}
	return nil
}

// FindMedia retrieves the media row at a position of an ad; nil when absent.
func (r *Repository) FindMedia(ctx context.Context, adID uuid.UUID, position int, originalURL string) (*models.AdMedia, error) {
	var media models.AdMedia
	err := r.db.WithContext(ctx).
		First(&media, "ad_id = ? AND position = ? AND original_url = ?", adID, position, originalURL).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &media, nil
}

// FindExisting adapts FindMedia to the media resolver's reuse lookup.
func (r *Repository) FindExisting(ctx context.Context, adID uuid.UUID, position int, originalURL string) (*mediastore.ExistingMedia, error) {
	media, err := r.FindMedia(ctx, adID, position, originalURL)
	if err != nil || media == nil {
		return nil, err
	}
	return &mediastore.ExistingMedia{
		MediaURL:      media.MediaURL,
		PublicID:      media.StoragePublicID,
		Metadata:      media.Metadata,
		OCRText:       media.OCRText,
		OCRConfidence: media.OCRConfidence,
	}, nil
}

// UpsertMedia writes the media rows of one ad, updating positionally on
// (ad_id, position). Rows beyond the new tail are pruned so a re-ingestion
// that observed fewer media does not keep stale positions from earlier runs.
func (r *Repository) UpsertMedia(ctx context.Context, items []models.AdMedia) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "ad_id"}, {Name: "position"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"media_type",
				"original_url",
				"media_url",
				"storage_public_id",
				"metadata",
				"ocr_text",
				"ocr_confidence",
				"updated_at",
			}),
		}).
		Create(&items).Error
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Where("ad_id = ? AND position >= ?", items[0].AdID, len(items)).
		Delete(&models.AdMedia{}).Error
}

// CountMediaForAd returns the number of stored media rows for an ad.
func (r *Repository) CountMediaForAd(ctx context.Context, adID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AdMedia{}).
		Where("ad_id = ?", adID).
		Count(&count).Error
	return count, err
}

// ListMediaForAd returns an ad's media ordered by position.
func (r *Repository) ListMediaForAd(ctx context.Context, adID uuid.UUID) ([]models.AdMedia, error) {
	var items []models.AdMedia
	err := r.db.WithContext(ctx).
		Where("ad_id = ?", adID).
		Order("position ASC").
		Find(&items).Error
	return items, err
}
