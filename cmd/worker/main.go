package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adlibra/adlibra-backend/internal/archive"
	"github.com/adlibra/adlibra-backend/internal/ingest"
	"github.com/adlibra/adlibra-backend/internal/jobs"
	"github.com/adlibra/adlibra-backend/internal/mediastore"
	"github.com/adlibra/adlibra-backend/internal/scrape"
	"github.com/adlibra/adlibra-backend/pkg/bigquery"
	"github.com/adlibra/adlibra-backend/pkg/config"
	"github.com/adlibra/adlibra-backend/pkg/db"
	"github.com/adlibra/adlibra-backend/pkg/logger"
	"github.com/adlibra/adlibra-backend/pkg/metrics"
	"github.com/adlibra/adlibra-backend/pkg/migrate"
	"github.com/adlibra/adlibra-backend/pkg/pubsub"
	"github.com/adlibra/adlibra-backend/pkg/redis"
	"github.com/adlibra/adlibra-backend/pkg/storage/cloudinary"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	requireResource(ctx, logg, "database ping", dbClient.Ping(context.Background()))
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	queue, closeQueue, err := newQueue(context.Background(), cfg, redisClient, logg)
	requireResource(ctx, logg, "job queue", err)
	defer closeQueue()

	metricsCollector := metrics.NewScrapeJobMetrics(prometheus.DefaultRegisterer)

	var uploader mediastore.Uploader
	if cfg.Scrape.UploadEnabled {
		cloudinaryClient, err := cloudinary.NewClient(context.Background(), cfg.Cloudinary, logg)
		requireResource(ctx, logg, "cloudinary", err)
		requireResource(ctx, logg, "cloudinary ping", cloudinaryClient.Ping(context.Background()))
		uploader = cloudinaryClient
	} else {
		logg.Warn(ctx, "media uploads disabled, ads will keep their original media urls")
	}

	archiveRepo := archive.NewRepository(dbClient.DB())
	resolver := mediastore.NewResolver(uploader, archiveRepo, logg, metricsCollector, cfg.Scrape.UploadEnabled)

	archiveService, err := archive.NewService(archive.ServiceParams{
		Repo:     archiveRepo,
		Resolver: resolver,
		Logger:   logg,
	})
	requireResource(ctx, logg, "archive service", err)

	jobRepo := jobs.NewRepository(dbClient.DB())

	runnerParams := ingest.RunnerParams{
		Browsers: func(ctx context.Context) (scrape.Browser, error) {
			return scrape.NewChromeBrowser(ctx, cfg.Scrape, logg)
		},
		Saver:      archiveService,
		Store:      jobRepo,
		Scrape:     cfg.Scrape,
		Logger:     logg,
		JobMetrics: metricsCollector,
	}

	if cfg.GCP.ProjectID != "" {
		bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
		requireResource(ctx, logg, "bigquery client", err)
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(ctx, "error closing bigquery client", err)
			}
		}()
		runnerParams.Events = bqClient
		runnerParams.EventsTable = cfg.BigQuery.JobEventsTable
	} else {
		logg.Info(ctx, "no gcp project configured, job completion events disabled")
	}

	runner, err := ingest.NewRunner(runnerParams)
	requireResource(ctx, logg, "job runner", err)

	worker, err := ingest.NewWorker(queue, runner, jobRepo, cfg.Queue, logg)
	requireResource(ctx, logg, "worker", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":"+cfg.App.Port, mux); err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "metrics listener stopped unexpectedly", err)
		}
	}()

	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"queue":       cfg.Queue.Backend,
	})
	logg.Info(runCtx, "starting scrape worker")

	if err := worker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "scrape worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "scrape worker shutting down gracefully")
}

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

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
