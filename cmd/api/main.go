package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/adlibra/adlibra-backend/api/controllers"
	"github.com/adlibra/adlibra-backend/api/routes"
	"github.com/adlibra/adlibra-backend/internal/jobs"
	"github.com/adlibra/adlibra-backend/pkg/config"
	"github.com/adlibra/adlibra-backend/pkg/db"
	"github.com/adlibra/adlibra-backend/pkg/logger"
	"github.com/adlibra/adlibra-backend/pkg/migrate"
	"github.com/adlibra/adlibra-backend/pkg/pubsub"
	"github.com/adlibra/adlibra-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	queue, closeQueue, err := newQueue(context.Background(), cfg, redisClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap job queue", err)
		os.Exit(1)
	}
	defer closeQueue()

	jobService, err := jobs.NewService(jobs.NewRepository(dbClient.DB()), queue, cfg.Scrape, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create job service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
		"queue":    cfg.Queue.Backend,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg,
			routes.Services{Scrape: jobService, Jobs: jobService},
			controllers.Check{Name: "database", Pinger: dbClient},
			controllers.Check{Name: "redis", Pinger: redisClient},
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// newQueue picks the queue backend. Redis is the default; Pub/Sub needs a GCP
// project and an existing subscription.
func newQueue(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logg *logger.Logger) (jobs.Queue, func(), error) {
	if cfg.Queue.Backend == config.QueueBackendPubSub {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, nil, err
		}
		queue, err := jobs.NewPubSubQueue(pubsubClient, cfg.Queue, logg)
		if err != nil {
			_ = pubsubClient.Close()
			return nil, nil, err
		}
		closeFn := func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(ctx, "error closing pubsub client", err)
			}
		}
		return queue, closeFn, nil
	}
	return jobs.NewRedisQueue(redisClient, cfg.Queue, logg), func() {}, nil
}
