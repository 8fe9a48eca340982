package controllers

import (
	"context"
	"net/http"

	"github.com/adlibra/adlibra-backend/api/responses"
	"github.com/adlibra/adlibra-backend/api/validators"
	"github.com/adlibra/adlibra-backend/internal/jobs"
	"github.com/adlibra/adlibra-backend/pkg/db/models"
	"github.com/adlibra/adlibra-backend/pkg/enums"
	"github.com/adlibra/adlibra-backend/pkg/logger"
)

// ScrapeSubmitter accepts scrape requests; *jobs.Service satisfies it.
type ScrapeSubmitter interface {
	Submit(ctx context.Context, params jobs.SubmitParams) (*models.ScrapeJob, error)
}

type scrapeRequest struct {
	Query   string `json:"query" validate:"required"`
	Country string `json:"country" validate:"omitempty,len=2"`
	MaxAds  int    `json:"maxAds" validate:"omitempty,min=1,max=500"`
}

type scrapeResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// ScrapeKeyword submits a keyword search job.
func ScrapeKeyword(svc ScrapeSubmitter, logg *logger.Logger) http.HandlerFunc {
	return submitScrape(svc, logg, enums.SearchTypeKeyword)
}

// ScrapeAdvertiser submits an advertiser search job.
func ScrapeAdvertiser(svc ScrapeSubmitter, logg *logger.Logger) http.HandlerFunc {
	return submitScrape(svc, logg, enums.SearchTypeAdvertiser)
}

func submitScrape(svc ScrapeSubmitter, logg *logger.Logger, searchType enums.SearchType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scrapeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query, err := validators.ValidateSearchQuery(req.Query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		job, err := svc.Submit(r.Context(), jobs.SubmitParams{
			SearchType:  searchType,
			SearchQuery: query,
			Country:     req.Country,
			MaxAds:      req.MaxAds,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, scrapeResponse{
			JobID:  job.ID.String(),
			Status: job.Status.String(),
		})
	}
}
