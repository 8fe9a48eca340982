package extract

import (
	"encoding/json"
	"time"
)

// CollatedAd is one advertisement as it appears inside a search response's
// collated_results array. Raw retains the untouched node for the
// platform_specific_data column.
type CollatedAd struct {
	AdArchiveID          string               `json:"ad_archive_id"`
	PageName             string               `json:"page_name"`
	StartDate            int64                `json:"start_date"`
	EndDate              int64                `json:"end_date"`
	IsActive             bool                 `json:"is_active"`
	PublisherPlatform    []string             `json:"publisher_platform"`
	ImpressionsWithIndex ImpressionsWithIndex `json:"impressions_with_index"`
	Snapshot             Snapshot             `json:"snapshot"`

	Raw map[string]any `json:"-"`
}

type ImpressionsWithIndex struct {
	ImpressionsText string `json:"impressions_text"`
}

type Snapshot struct {
	Title           string       `json:"title"`
	Caption         string       `json:"caption"`
	CTAText         string       `json:"cta_text"`
	PageProfileURI  string       `json:"page_profile_uri"`
	LinkURL         string       `json:"link_url"`
	LinkDescription string       `json:"link_description"`
	Body            Body         `json:"body"`
	Cards           []Card       `json:"cards"`
	Images          []ImageAsset `json:"images"`
	Videos          []VideoAsset `json:"videos"`
}

// Body tolerates both the object form {"text": "..."} and a bare string; the
// portal serves either depending on the creative.
type Body struct {
	Text string `json:"text"`
}

func (b *Body) UnmarshalJSON(data []byte) error {
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		b.Text = obj.Text
		return nil
	}
	// A bare string carries markup, not the plain text field; drop it the
	// same way snapshot.body.text resolves to nothing.
	b.Text = ""
	return nil
}

type Card struct {
	Body             string `json:"body"`
	Title            string `json:"title"`
	LinkURL          string `json:"link_url"`
	LinkDescription  string `json:"link_description"`
	OriginalImageURL string `json:"original_image_url"`
}

type ImageAsset struct {
	OriginalImageURL string `json:"original_image_url"`
}

type VideoAsset struct {
	VideoHDURL string `json:"video_hd_url"`
	VideoSDURL string `json:"video_sd_url"`
}

// CreativeBody resolves the ad text: first card body, then the snapshot body
// text, then the snapshot title.
func (a CollatedAd) CreativeBody() string {
	if len(a.Snapshot.Cards) > 0 && a.Snapshot.Cards[0].Body != "" {
		return a.Snapshot.Cards[0].Body
	}
	if a.Snapshot.Body.Text != "" {
		return a.Snapshot.Body.Text
	}
	if a.Snapshot.Title != "" {
		return a.Snapshot.Title
	}
	return ""
}

// LinkURL resolves the destination link: snapshot first, then the first card.
func (a CollatedAd) LinkURL() string {
	if a.Snapshot.LinkURL != "" {
		return a.Snapshot.LinkURL
	}
	if len(a.Snapshot.Cards) > 0 {
		return a.Snapshot.Cards[0].LinkURL
	}
	return ""
}

// LinkTitle resolves the link title: first card, then the snapshot title.
func (a CollatedAd) LinkTitle() string {
	if len(a.Snapshot.Cards) > 0 && a.Snapshot.Cards[0].Title != "" {
		return a.Snapshot.Cards[0].Title
	}
	return a.Snapshot.Title
}

// LinkDescription resolves the link description: snapshot, then first card.
func (a CollatedAd) LinkDescription() string {
	if a.Snapshot.LinkDescription != "" {
		return a.Snapshot.LinkDescription
	}
	if len(a.Snapshot.Cards) > 0 {
		return a.Snapshot.Cards[0].LinkDescription
	}
	return ""
}

// ImageURLs collects every card original_image_url followed by every entry in
// the images array, de-duplicated preserving order. Resized variants are
// ignored.
func (a CollatedAd) ImageURLs() []string {
	urls := []string{}
	seen := map[string]bool{}
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}
	for _, card := range a.Snapshot.Cards {
		add(card.OriginalImageURL)
	}
	for _, img := range a.Snapshot.Images {
		add(img.OriginalImageURL)
	}
	return urls
}

// VideoURLs collects one URL per video entry, preferring HD over SD,
// de-duplicated preserving order.
func (a CollatedAd) VideoURLs() []string {
	urls := []string{}
	seen := map[string]bool{}
	for _, video := range a.Snapshot.Videos {
		u := video.VideoHDURL
		if u == "" {
			u = video.VideoSDURL
		}
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

// StartTime converts the unix start date; nil when absent.
func (a CollatedAd) StartTime() *time.Time {
	return unixTime(a.StartDate)
}

// EndTime converts the unix end date; nil when absent.
func (a CollatedAd) EndTime() *time.Time {
	return unixTime(a.EndDate)
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// PlatformData assembles the platform_specific_data payload persisted with
// the ad.
func (a CollatedAd) PlatformData() map[string]any {
	data := map[string]any{
		"is_active": a.IsActive,
	}
	if len(a.PublisherPlatform) > 0 {
		data["publisher_platform"] = a.PublisherPlatform
	}
	if a.ImpressionsWithIndex.ImpressionsText != "" {
		data["impressions"] = a.ImpressionsWithIndex.ImpressionsText
	}
	if a.Snapshot.PageProfileURI != "" {
		data["page_profile_uri"] = a.Snapshot.PageProfileURI
	}
	if a.Snapshot.CTAText != "" {
		data["cta_text"] = a.Snapshot.CTAText
	}
	if a.Snapshot.Caption != "" {
		data["caption"] = a.Snapshot.Caption
	}
	return data
}
