package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adlibra/adlibra-backend/internal/jobs"
	"github.com/adlibra/adlibra-backend/pkg/config"
)

type scriptedQueue struct {
	leases []*jobs.Lease
	cancel context.CancelFunc
}

func (q *scriptedQueue) Enqueue(context.Context, jobs.Task) error { return nil }

func (q *scriptedQueue) Dequeue(ctx context.Context) (*jobs.Lease, error) {
	if len(q.leases) == 0 {
		q.cancel()
		return nil, ctx.Err()
	}
	lease := q.leases[0]
	q.leases = q.leases[1:]
	return lease, nil
}

type scriptedRunner struct {
	errs  map[string]error
	calls int
}

func (r *scriptedRunner) Run(_ context.Context, task jobs.Task, _ int) error {
	r.calls++
	return r.errs[task.JobID]
}

type leaseRecorder struct {
	acked  bool
	nacked bool
	delay  time.Duration
}

func recordedLease(task jobs.Task, attempt int, rec *leaseRecorder) *jobs.Lease {
	return jobs.NewLease(task, attempt,
		func(context.Context) error {
			rec.acked = true
			return nil
		},
		func(_ context.Context, delay time.Duration) error {
			rec.nacked = true
			rec.delay = delay
			return nil
		},
	)
}

func workerQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		MaxAttempts: 3,
		BackoffBase: time.Minute,
		JobTimeout:  15 * time.Minute,
	}
}

func runWorker(t *testing.T, queue *scriptedQueue, runner jobRunner, store failureStore) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.cancel = cancel

	worker, err := NewWorker(queue, runner, store, workerQueueConfig(), testLogger())
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if err := worker.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("worker exit: %v", err)
	}
}

func TestWorkerAcksSuccessfulJob(t *testing.T) {
	task := testTask()
	rec := &leaseRecorder{}
	queue := &scriptedQueue{leases: []*jobs.Lease{recordedLease(task, 1, rec)}}
	store := &stubJobStore{}

	runWorker(t, queue, &scriptedRunner{}, store)

	if !rec.acked {
		t.Fatal("successful job must be acked")
	}
	if rec.nacked {
		t.Fatal("successful job must not be nacked")
	}
	if store.failedCause != "" {
		t.Fatal("successful job must not be marked failed")
	}
}

func TestWorkerNacksFailedJobWithBackoff(t *testing.T) {
	task := testTask()
	rec := &leaseRecorder{}
	queue := &scriptedQueue{leases: []*jobs.Lease{recordedLease(task, 2, rec)}}
	runner := &scriptedRunner{errs: map[string]error{task.JobID: errors.New("browser crashed")}}
	store := &stubJobStore{}

	runWorker(t, queue, runner, store)

	if !rec.nacked {
		t.Fatal("failed job below the attempt budget must be nacked")
	}
	if rec.acked {
		t.Fatal("retryable job must not be acked")
	}
	if rec.delay != 2*time.Minute {
		t.Fatalf("backoff for attempt 2 = %s, want 2m", rec.delay)
	}
	if store.failedCause != "" {
		t.Fatal("retryable job must not be marked failed")
	}
}

func TestWorkerMarksJobFailedAfterAttemptBudget(t *testing.T) {
	task := testTask()
	rec := &leaseRecorder{}
	queue := &scriptedQueue{leases: []*jobs.Lease{recordedLease(task, 3, rec)}}
	runner := &scriptedRunner{errs: map[string]error{task.JobID: errors.New("browser crashed")}}
	store := &stubJobStore{}

	runWorker(t, queue, runner, store)

	if !rec.acked {
		t.Fatal("exhausted job must be acked away")
	}
	if rec.nacked {
		t.Fatal("exhausted job must not be redelivered")
	}
	if store.failedCause != "browser crashed" {
		t.Fatalf("failure cause = %q", store.failedCause)
	}
}

func TestWorkerProcessesQueueSequentially(t *testing.T) {
	first, second := testTask(), testTask()
	recFirst, recSecond := &leaseRecorder{}, &leaseRecorder{}
	queue := &scriptedQueue{leases: []*jobs.Lease{
		recordedLease(first, 1, recFirst),
		recordedLease(second, 1, recSecond),
	}}
	runner := &scriptedRunner{}

	runWorker(t, queue, runner, &stubJobStore{})

	if runner.calls != 2 {
		t.Fatalf("runner calls = %d", runner.calls)
	}
	if !recFirst.acked || !recSecond.acked {
		t.Fatal("both jobs must be acked")
	}
}

func TestBackoffDelayDoubles(t *testing.T) {
	base := time.Minute
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{0, time.Minute},
	}
	for _, tc := range cases {
		if got := backoffDelay(base, tc.attempt); got != tc.want {
			t.Fatalf("backoffDelay(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
	if backoffDelay(0, 2) != 0 {
		t.Fatal("zero base must disable backoff")
	}
}
