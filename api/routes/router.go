package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adlibra/adlibra-backend/api/controllers"
	"github.com/adlibra/adlibra-backend/api/middleware"
	"github.com/adlibra/adlibra-backend/pkg/config"
	"github.com/adlibra/adlibra-backend/pkg/logger"
)

// Services groups the application services the router exposes.
type Services struct {
	Scrape controllers.ScrapeSubmitter
	Jobs   controllers.JobReader
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	services Services,
	readiness ...controllers.Check,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness...))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/scrape", func(r chi.Router) {
			r.Post("/keyword", controllers.ScrapeKeyword(services.Scrape, logg))
			r.Post("/advertiser", controllers.ScrapeAdvertiser(services.Scrape, logg))
		})
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", controllers.JobList(services.Jobs, logg))
			r.Get("/{jobId}", controllers.JobStatus(services.Jobs, logg))
		})
	})

	return r
}
