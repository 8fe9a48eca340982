package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/adlibra/adlibra-backend/pkg/enums"
)

// ScrapeJob is the durable record of one scrape request. Only the worker
// mutates it after creation.
type ScrapeJob struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SearchType    enums.SearchType `gorm:"column:search_type;not null"`
	SearchQuery   string           `gorm:"column:search_query;not null"`
	Platform      string           `gorm:"column:platform;not null;default:meta"`
	Status        enums.JobStatus  `gorm:"column:status;not null;default:pending"`
	Progress      int              `gorm:"column:progress;not null;default:0"`
	TotalAdsSaved int              `gorm:"column:total_ads_saved;not null;default:0"`
	NewAds        int              `gorm:"column:new_ads;not null;default:0"`
	UpdatedAds    int              `gorm:"column:updated_ads;not null;default:0"`
	FailedAds     int              `gorm:"column:failed_ads;not null;default:0"`
	Attempts      int              `gorm:"column:attempts;not null;default:0"`
	Error         *string          `gorm:"column:error"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	StartedAt     *time.Time       `gorm:"column:started_at"`
	CompletedAt   *time.Time       `gorm:"column:completed_at"`
}

// TableName pins the GORM table name.
func (ScrapeJob) TableName() string {
	return "scrape_jobs"
}
