package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/adlibra/adlibra-backend/internal/jobs"
	"github.com/adlibra/adlibra-backend/pkg/config"
	"github.com/adlibra/adlibra-backend/pkg/errors"
	"github.com/adlibra/adlibra-backend/pkg/logger"
)

// jobRunner executes one delivery; *Runner satisfies it.
type jobRunner interface {
	Run(ctx context.Context, task jobs.Task, attempt int) error
}

// failureStore records terminal failures; *jobs.Repository satisfies it.
type failureStore interface {
	MarkFailed(ctx context.Context, id uuid.UUID, cause string) error
}

// Worker drains the queue sequentially, one job at a time. Retry policy lives
// here: failed attempts are nacked with exponential backoff until the attempt
// budget is spent, then the job is marked failed and acked away.
type Worker struct {
	queue  jobs.Queue
	runner jobRunner
	store  failureStore
	cfg    config.QueueConfig
	logg   *logger.Logger
}

func NewWorker(queue jobs.Queue, runner jobRunner, store failureStore, cfg config.QueueConfig, logg *logger.Logger) (*Worker, error) {
	if queue == nil {
		return nil, errors.New(errors.CodeInternal, "ingest: queue is required")
	}
	if runner == nil {
		return nil, errors.New(errors.CodeInternal, "ingest: runner is required")
	}
	if store == nil {
		return nil, errors.New(errors.CodeInternal, "ingest: job store is required")
	}
	if logg == nil {
		return nil, errors.New(errors.CodeInternal, "ingest: logger is required")
	}
	return &Worker{queue: queue, runner: runner, store: store, cfg: cfg, logg: logg}, nil
}

// Run processes jobs until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.logg.Info(ctx, "worker loop started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		lease, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logg.Error(ctx, "dequeuing task failed", err)
			continue
		}
		if lease == nil {
			continue
		}

		w.handle(ctx, lease)
	}
}

func (w *Worker) handle(ctx context.Context, lease *jobs.Lease) {
	task := lease.Task
	jctx := w.logg.WithJobID(ctx, task.JobID)

	// The hard wall clock for one attempt; a hung browser cannot pin the
	// worker past it.
	runCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	err := w.runner.Run(runCtx, task, lease.Attempt)
	cancel()

	if err == nil {
		if ackErr := lease.Ack(ctx); ackErr != nil {
			w.logg.Error(jctx, "acking completed task failed", ackErr)
		}
		return
	}

	w.logg.Error(w.logg.WithField(jctx, "attempt", lease.Attempt), "job attempt failed", err)

	if lease.Attempt >= w.cfg.MaxAttempts {
		w.markFailed(jctx, task, err)
		if ackErr := lease.Ack(ctx); ackErr != nil {
			w.logg.Error(jctx, "acking exhausted task failed", ackErr)
		}
		return
	}

	delay := backoffDelay(w.cfg.BackoffBase, lease.Attempt)
	if nackErr := lease.Nack(ctx, delay); nackErr != nil {
		w.logg.Error(jctx, "nacking failed task failed", nackErr)
	}
}

func (w *Worker) markFailed(ctx context.Context, task jobs.Task, cause error) {
	jobID, err := uuid.Parse(task.JobID)
	if err != nil {
		w.logg.Error(ctx, "dropping task with unparseable job id", err)
		return
	}
	if err := w.store.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		w.logg.Error(ctx, "marking job failed failed", err)
	}
}

// backoffDelay doubles per attempt: base, 2x base, 4x base.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}
