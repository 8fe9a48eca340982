package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/adlibra/adlibra-backend/api/responses"
	"github.com/adlibra/adlibra-backend/api/validators"
	"github.com/adlibra/adlibra-backend/pkg/db/models"
	pkgerrors "github.com/adlibra/adlibra-backend/pkg/errors"
	"github.com/adlibra/adlibra-backend/pkg/logger"
)

// JobReader exposes job status queries; *jobs.Service satisfies it.
type JobReader interface {
	Status(ctx context.Context, id uuid.UUID) (*models.ScrapeJob, error)
	List(ctx context.Context, limit int) ([]models.ScrapeJob, error)
}

type jobResponse struct {
	JobID         string     `json:"jobId"`
	SearchType    string     `json:"searchType"`
	SearchQuery   string     `json:"searchQuery"`
	Platform      string     `json:"platform"`
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	TotalAdsSaved int        `json:"totalAdsSaved"`
	NewAds        int        `json:"newAds"`
	UpdatedAds    int        `json:"updatedAds"`
	FailedAds     int        `json:"failedAds"`
	Attempts      int        `json:"attempts"`
	Error         *string    `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

func toJobResponse(job models.ScrapeJob) jobResponse {
	return jobResponse{
		JobID:         job.ID.String(),
		SearchType:    job.SearchType.String(),
		SearchQuery:   job.SearchQuery,
		Platform:      job.Platform,
		Status:        job.Status.String(),
		Progress:      job.Progress,
		TotalAdsSaved: job.TotalAdsSaved,
		NewAds:        job.NewAds,
		UpdatedAds:    job.UpdatedAds,
		FailedAds:     job.FailedAds,
		Attempts:      job.Attempts,
		Error:         job.Error,
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
	}
}

// JobStatus returns one job by id.
func JobStatus(svc JobReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid job id"))
			return
		}

		job, err := svc.Status(r.Context(), jobID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toJobResponse(*job))
	}
}

// JobList returns recent jobs, newest first.
func JobList(svc JobReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.List(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]jobResponse, 0, len(items))
		for _, job := range items {
			out = append(out, toJobResponse(job))
		}
		responses.WriteSuccess(w, map[string]any{"jobs": out})
	}
}
