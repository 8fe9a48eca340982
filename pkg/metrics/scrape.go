package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ScrapeJobMetrics records outcomes of scrape job executions.
type ScrapeJobMetrics struct {
	duration       *prometheus.HistogramVec
	success        *prometheus.CounterVec
	failure        *prometheus.CounterVec
	adsSaved       *prometheus.CounterVec
	uploadFailures *prometheus.CounterVec
}

// NewScrapeJobMetrics registers the scrape job metrics on the provided registerer.
func NewScrapeJobMetrics(reg prometheus.Registerer) *ScrapeJobMetrics {
	if reg == nil {
		return &ScrapeJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scrape_job_duration_seconds",
		Help:    "Duration of scrape jobs in seconds.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"search_type"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scrape_job_success",
		Help: "Successful scrape job executions.",
	}, []string{"search_type"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scrape_job_failure",
		Help: "Failed scrape job executions.",
	}, []string{"search_type"})
	adsSaved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scrape_ads_saved_total",
		Help: "Ads persisted by scrape jobs.",
	}, []string{"outcome"})
	uploadFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scrape_media_upload_failures_total",
		Help: "Media uploads that fell back to the original URL.",
	}, []string{"media_type"})
	reg.MustRegister(duration, success, failure, adsSaved, uploadFailures)
	return &ScrapeJobMetrics{
		duration:       duration,
		success:        success,
		failure:        failure,
		adsSaved:       adsSaved,
		uploadFailures: uploadFailures,
	}
}

// ObserveDuration records the duration for a job of the given search type.
func (s *ScrapeJobMetrics) ObserveDuration(searchType string, duration time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.WithLabelValues(normalizeLabel(searchType)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the given search type.
func (s *ScrapeJobMetrics) IncSuccess(searchType string) {
	if s == nil || s.success == nil {
		return
	}
	s.success.WithLabelValues(normalizeLabel(searchType)).Inc()
}

// IncFailure increments the failure counter for the given search type.
func (s *ScrapeJobMetrics) IncFailure(searchType string) {
	if s == nil || s.failure == nil {
		return
	}
	s.failure.WithLabelValues(normalizeLabel(searchType)).Inc()
}

// AddAdsSaved adds to the persisted ads counter; outcome is "new" or "updated".
func (s *ScrapeJobMetrics) AddAdsSaved(outcome string, n int) {
	if s == nil || s.adsSaved == nil || n <= 0 {
		return
	}
	s.adsSaved.WithLabelValues(normalizeLabel(outcome)).Add(float64(n))
}

// IncUploadFailure increments the upload failure counter for a media type.
func (s *ScrapeJobMetrics) IncUploadFailure(mediaType string) {
	if s == nil || s.uploadFailures == nil {
		return
	}
	s.uploadFailures.WithLabelValues(normalizeLabel(mediaType)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
