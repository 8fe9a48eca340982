package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/adlibra/adlibra-backend/pkg/db/types"
	"github.com/adlibra/adlibra-backend/pkg/enums"
)

// AdMedia is one creative asset attached to an AdArchive row. Unique on
// (ad_id, position); positions are assigned deterministically so repeated
// ingestions update rows positionally instead of appending.
//
// StoragePublicID stays null until the first successful upload; later
// sightings of the same (ad, position, original URL) reuse it without a new
// upload.
type AdMedia struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AdID            uuid.UUID       `gorm:"column:ad_id;type:uuid;not null;uniqueIndex:idx_ad_media_ad_position"`
	MediaType       enums.MediaType `gorm:"column:media_type;not null"`
	Position        int             `gorm:"column:position;not null;uniqueIndex:idx_ad_media_ad_position"`
	OriginalURL     string          `gorm:"column:original_url;not null"`
	MediaURL        string          `gorm:"column:media_url;not null"`
	StoragePublicID *string         `gorm:"column:storage_public_id"`
	Metadata        dbtypes.JSONMap `gorm:"column:metadata"`
	OCRText         *string         `gorm:"column:ocr_text"`
	OCRConfidence   *float64        `gorm:"column:ocr_confidence"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the GORM table name.
func (AdMedia) TableName() string {
	return "ad_media"
}
