package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/adlibra/adlibra-backend/internal/archive"
	"github.com/adlibra/adlibra-backend/internal/extract"
	"github.com/adlibra/adlibra-backend/internal/jobs"
	"github.com/adlibra/adlibra-backend/internal/scrape"
	"github.com/adlibra/adlibra-backend/pkg/config"
	"github.com/adlibra/adlibra-backend/pkg/enums"
	"github.com/adlibra/adlibra-backend/pkg/errors"
	"github.com/adlibra/adlibra-backend/pkg/logger"
	"github.com/adlibra/adlibra-backend/pkg/metrics"
)

const (
	snapshotStrategy   = "snapshot/v1"
	paginationStrategy = "pagination/v1"
)

// BrowserFactory opens a fresh browser for one capture run.
type BrowserFactory func(ctx context.Context) (scrape.Browser, error)

// saver persists one collated ad; *archive.Service satisfies it.
type saver interface {
	SaveAd(ctx context.Context, ad extract.CollatedAd, meta archive.JobMeta) (*archive.SaveResult, error)
}

// jobStore mutates job state; *jobs.Repository satisfies it.
type jobStore interface {
	MarkProcessing(ctx context.Context, id uuid.UUID, attempt int) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	UpdateCounts(ctx context.Context, id uuid.UUID, counts jobs.Counts) error
	MarkCompleted(ctx context.Context, id uuid.UUID, counts jobs.Counts) error
}

// eventSink streams analytics rows; *bigquery.Client satisfies it.
type eventSink interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Runner executes one scrape job: capture, extract, dedup, persist.
type Runner struct {
	browsers BrowserFactory
	registry *extract.Registry
	saver    saver
	store    jobStore
	cfg      config.ScrapeConfig
	logg     *logger.Logger

	jobMetrics  *metrics.ScrapeJobMetrics
	events      eventSink
	eventsTable string
}

// RunnerParams groups the runner dependencies. Events and JobMetrics are
// optional.
type RunnerParams struct {
	Browsers    BrowserFactory
	Registry    *extract.Registry
	Saver       saver
	Store       jobStore
	Scrape      config.ScrapeConfig
	Logger      *logger.Logger
	JobMetrics  *metrics.ScrapeJobMetrics
	Events      eventSink
	EventsTable string
}

func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Browsers == nil {
		return nil, errors.New(errors.CodeInternal, "ingest: browser factory is required")
	}
	if params.Saver == nil {
		return nil, errors.New(errors.CodeInternal, "ingest: ad saver is required")
	}
	if params.Store == nil {
		return nil, errors.New(errors.CodeInternal, "ingest: job store is required")
	}
	if params.Logger == nil {
		return nil, errors.New(errors.CodeInternal, "ingest: logger is required")
	}
	registry := params.Registry
	if registry == nil {
		registry = extract.DefaultRegistry()
	}
	return &Runner{
		browsers:    params.Browsers,
		registry:    registry,
		saver:       params.Saver,
		store:       params.Store,
		cfg:         params.Scrape,
		logg:        params.Logger,
		jobMetrics:  params.JobMetrics,
		events:      params.Events,
		eventsTable: params.EventsTable,
	}, nil
}

// Run executes one delivery of a job. A nil return means the job reached a
// terminal completed state; an error means this attempt failed and the caller
// decides whether to retry.
func (r *Runner) Run(ctx context.Context, task jobs.Task, attempt int) error {
	jobID, err := uuid.Parse(task.JobID)
	if err != nil {
		return fmt.Errorf("parsing job id %q: %w", task.JobID, err)
	}
	searchType, err := enums.ParseSearchType(task.SearchType)
	if err != nil {
		return fmt.Errorf("parsing search type: %w", err)
	}

	ctx = r.logg.WithJobID(ctx, task.JobID)
	ctx = r.logg.WithField(ctx, "attempt", attempt)

	start := time.Now()
	runErr := r.execute(ctx, jobID, task, searchType, attempt)
	duration := time.Since(start)

	r.jobMetrics.ObserveDuration(searchType.String(), duration)
	if runErr != nil {
		r.jobMetrics.IncFailure(searchType.String())
		return runErr
	}
	r.jobMetrics.IncSuccess(searchType.String())
	return nil
}

func (r *Runner) execute(ctx context.Context, jobID uuid.UUID, task jobs.Task, searchType enums.SearchType, attempt int) error {
	if err := r.store.MarkProcessing(ctx, jobID, attempt); err != nil {
		return fmt.Errorf("marking job processing: %w", err)
	}

	initial, pages, err := r.capture(ctx, jobID, task)
	if err != nil {
		return err
	}

	ads := r.extractAds(ctx, initial, pages, task.MaxAds)
	r.logg.Info(r.logg.WithField(ctx, "ads", len(ads)), "extraction finished")

	counts, saveErrs := r.saveAll(ctx, jobID, ads, archive.JobMeta{
		SearchType:  searchType,
		SearchQuery: task.SearchQuery,
		Platform:    task.Platform,
	})
	if saveErrs != nil {
		r.logg.Warn(r.logg.WithField(ctx, "failed_ads", counts.Failed), "some ads failed to persist")
	}

	if err := r.store.MarkCompleted(ctx, jobID, counts); err != nil {
		return fmt.Errorf("marking job completed: %w", err)
	}

	r.jobMetrics.AddAdsSaved("new", counts.New)
	r.jobMetrics.AddAdsSaved("updated", counts.Updated)
	r.publishCompletion(ctx, task, searchType, counts, attempt)
	return nil
}

func (r *Runner) capture(ctx context.Context, jobID uuid.UUID, task jobs.Task) ([]byte, [][]byte, error) {
	browser, err := r.browsers(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("opening browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			r.logg.Warn(ctx, "closing browser failed")
		}
	}()

	session := scrape.NewSession(browser, r.cfg, r.logg)
	session.OnProgress(func(percent int) {
		if err := r.store.UpdateProgress(ctx, jobID, percent); err != nil {
			r.logg.Warn(ctx, "updating capture progress failed")
		}
	})

	initial, pages, err := session.Capture(ctx, task.SearchQuery, task.Country, task.MaxAds)
	if err != nil {
		return nil, nil, fmt.Errorf("capturing search results: %w", err)
	}
	return initial, pages, nil
}

// extractAds runs the payload strategies over everything captured. A response
// that fails to parse is skipped; extraction only fails a job when it yields
// nothing at all, and even that surfaces as zero counts rather than an error.
func (r *Runner) extractAds(ctx context.Context, initial []byte, pages [][]byte, maxAds int) []extract.CollatedAd {
	var fromSnapshot []extract.CollatedAd
	if len(initial) > 0 {
		fromSnapshot = r.runStrategy(ctx, snapshotStrategy, initial)
	}

	var fromPages []extract.CollatedAd
	for _, page := range pages {
		fromPages = append(fromPages, r.runStrategy(ctx, paginationStrategy, page)...)
	}

	return extract.Dedup(fromSnapshot, fromPages, maxAds, r.dedupPrecedence(ctx))
}

func (r *Runner) runStrategy(ctx context.Context, name string, payload []byte) []extract.CollatedAd {
	strategy, err := r.registry.Get(name)
	if err != nil {
		r.logg.Error(ctx, "extraction strategy missing", err)
		return nil
	}
	ads, err := strategy.Extract(payload)
	if err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "strategy", name), "skipping unparseable response payload")
		return nil
	}
	return ads
}

func (r *Runner) dedupPrecedence(ctx context.Context) enums.DedupPrecedence {
	precedence, err := enums.ParseDedupPrecedence(r.cfg.DedupPrecedence)
	if err != nil {
		r.logg.Warn(ctx, "unknown dedup precedence configured, using first")
		return enums.DedupPrecedenceFirst
	}
	return precedence
}

func (r *Runner) saveAll(ctx context.Context, jobID uuid.UUID, ads []extract.CollatedAd, meta archive.JobMeta) (jobs.Counts, error) {
	counts := jobs.Counts{}
	var errs error

	for i, ad := range ads {
		summary := extract.Summarize(ad)
		r.logg.Debug(r.logg.WithFields(ctx, map[string]any{
			"ad_archive_id": summary.AdArchiveID,
			"advertiser":    summary.AdvertiserName,
			"images":        len(summary.ImageURLs),
			"videos":        len(summary.VideoURLs),
		}), "saving ad")

		result, err := r.saver.SaveAd(ctx, ad, meta)
		if err != nil {
			counts.Failed++
			errs = multierr.Append(errs, fmt.Errorf("ad %s: %w", ad.AdArchiveID, err))
		} else {
			counts.Total++
			if result.IsNew {
				counts.New++
			} else {
				counts.Updated++
			}
		}

		// Counts go to the store per ad, so a job that dies mid-run or
		// exhausts its retries still shows what it persisted.
		if err := r.store.UpdateCounts(ctx, jobID, counts); err != nil {
			r.logg.Warn(ctx, "updating save counts failed")
		}
		progress := (i + 1) * 100 / len(ads)
		if err := r.store.UpdateProgress(ctx, jobID, progress); err != nil {
			r.logg.Warn(ctx, "updating save progress failed")
		}
	}
	return counts, errs
}

// jobCompletedEvent is the analytics row streamed on completion.
type jobCompletedEvent struct {
	JobID       string    `bigquery:"job_id"`
	SearchType  string    `bigquery:"search_type"`
	SearchQuery string    `bigquery:"search_query"`
	Platform    string    `bigquery:"platform"`
	TotalAds    int       `bigquery:"total_ads"`
	NewAds      int       `bigquery:"new_ads"`
	UpdatedAds  int       `bigquery:"updated_ads"`
	FailedAds   int       `bigquery:"failed_ads"`
	Attempt     int       `bigquery:"attempt"`
	CompletedAt time.Time `bigquery:"completed_at"`
}

func (r *Runner) publishCompletion(ctx context.Context, task jobs.Task, searchType enums.SearchType, counts jobs.Counts, attempt int) {
	if r.events == nil || r.eventsTable == "" {
		return
	}
	row := jobCompletedEvent{
		JobID:       task.JobID,
		SearchType:  searchType.String(),
		SearchQuery: task.SearchQuery,
		Platform:    task.Platform,
		TotalAds:    counts.Total,
		NewAds:      counts.New,
		UpdatedAds:  counts.Updated,
		FailedAds:   counts.Failed,
		Attempt:     attempt,
		CompletedAt: time.Now().UTC(),
	}
	if err := r.events.InsertRows(ctx, r.eventsTable, []any{row}); err != nil {
		r.logg.Error(ctx, "publishing job completion event failed", err)
	}
}
