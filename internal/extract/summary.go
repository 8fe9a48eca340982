package extract

const (
	// Summary shape caps; persistence always uses the full media set.
	SummaryImageCap = 5
	SummaryVideoCap = 3
)

// AdSummary is the formatted, human-facing shape of an extracted ad. Media
// lists are capped; the persisted rows are not.
type AdSummary struct {
	AdArchiveID        string   `json:"ad_archive_id"`
	AdvertiserName     string   `json:"advertiser_name"`
	CreativeBody       string   `json:"ad_creative_body"`
	LinkTitle          string   `json:"ad_creative_link_title"`
	LinkDescription    string   `json:"ad_creative_link_description"`
	LinkURL            string   `json:"ad_creative_link_url"`
	StartedRunningDate *int64   `json:"started_running_date,omitempty"`
	LastShownDate      *int64   `json:"last_shown_date,omitempty"`
	PublisherPlatform  []string `json:"publisher_platform,omitempty"`
	IsActive           bool     `json:"is_active"`
	Impressions        string   `json:"impressions,omitempty"`
	ImageURLs          []string `json:"image_urls"`
	VideoURLs          []string `json:"video_urls"`
}

// Summarize builds the capped summary shape for one collated ad. Unlike the
// persisted record, the summary link URL prefers the first card.
func Summarize(ad CollatedAd) AdSummary {
	advertiser := ad.PageName
	if advertiser == "" {
		advertiser = "Unknown"
	}
	linkURL := ""
	if len(ad.Snapshot.Cards) > 0 && ad.Snapshot.Cards[0].LinkURL != "" {
		linkURL = ad.Snapshot.Cards[0].LinkURL
	} else {
		linkURL = ad.Snapshot.LinkURL
	}
	summary := AdSummary{
		AdArchiveID:       ad.AdArchiveID,
		AdvertiserName:    advertiser,
		CreativeBody:      ad.CreativeBody(),
		LinkTitle:         ad.LinkTitle(),
		LinkDescription:   ad.LinkDescription(),
		LinkURL:           linkURL,
		PublisherPlatform: ad.PublisherPlatform,
		IsActive:          ad.IsActive,
		Impressions:       ad.ImpressionsWithIndex.ImpressionsText,
		ImageURLs:         capURLs(ad.ImageURLs(), SummaryImageCap),
		VideoURLs:         capURLs(ad.VideoURLs(), SummaryVideoCap),
	}
	if ad.StartDate > 0 {
		start := ad.StartDate
		summary.StartedRunningDate = &start
	}
	if ad.EndDate > 0 {
		end := ad.EndDate
		summary.LastShownDate = &end
	}
	return summary
}

func capURLs(urls []string, limit int) []string {
	if len(urls) > limit {
		return urls[:limit]
	}
	return urls
}
