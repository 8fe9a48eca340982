package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/adlibra/adlibra-backend/pkg/db/types"
	"github.com/adlibra/adlibra-backend/pkg/enums"
)

// AdArchive is one advertisement as observed on a transparency portal.
// Unique on (platform, ad_archive_id); re-ingesting the same ad updates the
// row in place.
type AdArchive struct {
	ID                  uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Platform            string           `gorm:"column:platform;not null;uniqueIndex:idx_ad_archives_platform_archive_id"`
	AdArchiveID         string           `gorm:"column:ad_archive_id;not null;uniqueIndex:idx_ad_archives_platform_archive_id"`
	SearchType          enums.SearchType `gorm:"column:search_type"`
	SearchQuery         string           `gorm:"column:search_query"`
	AdvertiserName      string           `gorm:"column:advertiser_name"`
	CreativeBody        string           `gorm:"column:ad_creative_body"`
	LinkTitle           string           `gorm:"column:ad_creative_link_title"`
	LinkDescription     string           `gorm:"column:ad_creative_link_description"`
	LinkURL             string           `gorm:"column:ad_creative_link_url"`
	StartedRunningDate  *time.Time       `gorm:"column:started_running_date"`
	LastShownDate       *time.Time       `gorm:"column:last_shown_date"`
	PlatformData        dbtypes.JSONMap  `gorm:"column:platform_specific_data"`
	CreatedAt           time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the GORM table name.
func (AdArchive) TableName() string {
	return "ad_archives"
}
