package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/adlibra/adlibra-backend/api/responses"
	"github.com/adlibra/adlibra-backend/pkg/config"
	"github.com/adlibra/adlibra-backend/pkg/logger"
)

const readinessTimeout = 5 * time.Second

// Pinger is the health-check surface shared by the platform clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check pairs a dependency name with its pinger. A nil Pinger is skipped so
// optional dependencies can be wired unconditionally.
type Check struct {
	Name   string
	Pinger Pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Adlibra-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Adlibra-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		status := map[string]string{}
		healthy := true
		for _, check := range checks {
			if check.Pinger == nil {
				continue
			}
			if err := check.Pinger.Ping(ctx); err != nil {
				healthy = false
				status[check.Name] = "unavailable"
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", check.Name), "readiness check failed", err)
				}
				continue
			}
			status[check.Name] = "ok"
		}

		if !healthy {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, status)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
