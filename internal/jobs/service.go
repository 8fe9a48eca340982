package jobs

import (
	"context"

	"github.com/google/uuid"

	"github.com/adlibra/adlibra-backend/pkg/config"
	"github.com/adlibra/adlibra-backend/pkg/db/models"
	"github.com/adlibra/adlibra-backend/pkg/enums"
	"github.com/adlibra/adlibra-backend/pkg/errors"
	"github.com/adlibra/adlibra-backend/pkg/logger"
)

// jobRepository is the persistence surface the service needs; *Repository
// satisfies it.
type jobRepository interface {
	Create(ctx context.Context, job *models.ScrapeJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ScrapeJob, error)
	List(ctx context.Context, limit int) ([]models.ScrapeJob, error)
	MarkFailed(ctx context.Context, id uuid.UUID, cause string) error
}

// SubmitParams describes one scrape request.
type SubmitParams struct {
	SearchType  enums.SearchType
	SearchQuery string
	Platform    string
	Country     string
	MaxAds      int
}

// Service accepts scrape requests, records them and hands them to the queue.
type Service struct {
	repo   jobRepository
	queue  Queue
	scrape config.ScrapeConfig
	logg   *logger.Logger
}

func NewService(repo jobRepository, queue Queue, scrape config.ScrapeConfig, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New(errors.CodeInternal, "jobs: repository is required")
	}
	if queue == nil {
		return nil, errors.New(errors.CodeInternal, "jobs: queue is required")
	}
	if logg == nil {
		return nil, errors.New(errors.CodeInternal, "jobs: logger is required")
	}
	return &Service{repo: repo, queue: queue, scrape: scrape, logg: logg}, nil
}

// Submit records a pending job and enqueues its task. A job that cannot be
// enqueued is marked failed immediately so it never shows as pending forever.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*models.ScrapeJob, error) {
	if !params.SearchType.IsValid() {
		return nil, errors.New(errors.CodeValidation, "unsupported search type")
	}
	if params.Platform == "" {
		params.Platform = PlatformMeta
	}
	if params.Country == "" {
		params.Country = s.scrape.Country
	}
	if params.MaxAds <= 0 {
		params.MaxAds = s.scrape.MaxAdsPerJob
	}

	job := &models.ScrapeJob{
		SearchType:  params.SearchType,
		SearchQuery: params.SearchQuery,
		Platform:    params.Platform,
		Status:      enums.JobStatusPending,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "creating scrape job")
	}

	ctx = s.logg.WithJobID(ctx, job.ID.String())
	task := Task{
		JobID:       job.ID.String(),
		SearchType:  params.SearchType.String(),
		SearchQuery: params.SearchQuery,
		Platform:    params.Platform,
		Country:     params.Country,
		MaxAds:      params.MaxAds,
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.logg.Error(ctx, "enqueuing scrape task failed", err)
		if markErr := s.repo.MarkFailed(ctx, job.ID, "enqueue failed: "+err.Error()); markErr != nil {
			s.logg.Error(ctx, "marking unenqueued job failed", markErr)
		}
		return nil, errors.Wrap(errors.CodeDependency, err, "enqueuing scrape job")
	}

	s.logg.Info(ctx, "scrape job submitted")
	return job, nil
}

// Status returns a job by id.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (*models.ScrapeJob, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "loading scrape job")
	}
	if job == nil {
		return nil, errors.New(errors.CodeNotFound, "scrape job not found")
	}
	return job, nil
}

// List returns recent jobs, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]models.ScrapeJob, error) {
	jobs, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "listing scrape jobs")
	}
	return jobs, nil
}
