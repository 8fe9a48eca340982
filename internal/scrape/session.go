package scrape

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/adlibra/adlibra-backend/pkg/config"
	"github.com/adlibra/adlibra-backend/pkg/logger"
)

const (
	// Scroll budget ceiling; one paginated response carries roughly ten ads.
	maxScrollCeiling = 50
	adsPerResponse   = 10

	// Consecutive scrolls without new buffered responses before giving up.
	noNewDataThreshold = 5
)

// SearchURL builds the ad-library search URL for a query.
func SearchURL(query, country string) string {
	return fmt.Sprintf(
		"https://www.facebook.com/ads/library/?active_status=all&ad_type=all&country=%s&q=%s&search_type=keyword_unordered&media_type=all",
		url.QueryEscape(country),
		url.QueryEscape(query),
	)
}

// Session drives one capture run against the portal.
type Session struct {
	browser    Browser
	cfg        config.ScrapeConfig
	logg       *logger.Logger
	onProgress func(percent int)
}

func NewSession(browser Browser, cfg config.ScrapeConfig, logg *logger.Logger) *Session {
	return &Session{browser: browser, cfg: cfg, logg: logg}
}

// OnProgress installs a coarse progress callback invoked during scrolling.
func (s *Session) OnProgress(fn func(percent int)) {
	s.onProgress = fn
}

// Capture loads the search page, captures the embedded initial blob and the
// paginated responses streamed while scrolling. A missing or unreadable
// initial blob is not fatal; navigation and browser faults are.
func (s *Session) Capture(ctx context.Context, query, country string, maxAds int) ([]byte, [][]byte, error) {
	if maxAds <= 0 {
		maxAds = s.cfg.MaxAdsPerJob
	}
	if country == "" {
		country = s.cfg.Country
	}

	target := SearchURL(query, country)
	ctx = s.logg.WithFields(ctx, map[string]any{"query": query, "country": country})
	s.logg.Info(ctx, "navigating to search page")

	if err := s.browser.Navigate(ctx, target); err != nil {
		return nil, nil, fmt.Errorf("navigating to search page: %w", err)
	}
	if err := wait(ctx, s.cfg.InitialLoadWait); err != nil {
		return nil, nil, err
	}

	// The portal only embeds the result blob reliably after a reload.
	if err := s.browser.Reload(ctx); err != nil {
		return nil, nil, fmt.Errorf("reloading search page: %w", err)
	}
	if err := wait(ctx, s.cfg.ReloadWait); err != nil {
		return nil, nil, err
	}

	initial, err := s.browser.ExtractInitialBlob(ctx)
	if err != nil {
		s.logg.Warn(ctx, "initial blob unavailable, continuing with paginated responses only")
		initial = nil
	}

	if err := s.scroll(ctx, maxAds); err != nil {
		return nil, nil, err
	}

	buffer := s.browser.Responses()
	if dropped := buffer.Dropped(); dropped > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "dropped", dropped), "response buffer overflowed during capture")
	}
	return initial, buffer.Snapshot(), nil
}

func (s *Session) scroll(ctx context.Context, maxAds int) error {
	budget := scrollBudget(maxAds)
	buffer := s.browser.Responses()

	scrollsWithoutNewData := 0
	lastCount := buffer.Len()

	for i := 0; i < budget; i++ {
		if err := s.browser.ScrollToBottom(ctx); err != nil {
			return fmt.Errorf("scrolling: %w", err)
		}
		if err := wait(ctx, s.cfg.ScrollWait); err != nil {
			return err
		}

		count := buffer.Len()
		if count > lastCount {
			scrollsWithoutNewData = 0
			lastCount = count
		} else {
			scrollsWithoutNewData++
		}

		s.reportProgress(count, maxAds)

		if scrollsWithoutNewData >= noNewDataThreshold {
			s.logg.Info(s.logg.WithField(ctx, "scrolls", i+1), "no new responses, stopping scroll early")
			break
		}
	}
	return nil
}

func (s *Session) reportProgress(responses, maxAds int) {
	if s.onProgress == nil || maxAds <= 0 {
		return
	}
	percent := responses * adsPerResponse * 100 / maxAds
	if percent > 100 {
		percent = 100
	}
	s.onProgress(percent)
}

func scrollBudget(maxAds int) int {
	budget := (maxAds + adsPerResponse - 1) / adsPerResponse
	if budget > maxScrollCeiling {
		return maxScrollCeiling
	}
	if budget < 1 {
		return 1
	}
	return budget
}

func wait(ctx context.Context, d time.Duration) error {
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
