package jobs

import (
	"context"
	"time"
)

// PlatformMeta is the only ad library platform supported today.
const PlatformMeta = "meta"

// Task is the unit of work carried by the queue. NotBefore delays delivery
// after a backoff Nack; Attempt counts deliveries and is maintained by the
// queue, not the producer.
type Task struct {
	JobID       string    `json:"job_id"`
	SearchType  string    `json:"search_type"`
	SearchQuery string    `json:"search_query"`
	Platform    string    `json:"platform"`
	Country     string    `json:"country"`
	MaxAds      int       `json:"max_ads"`
	Attempt     int       `json:"attempt"`
	NotBefore   time.Time `json:"not_before,omitempty"`
}

// Lease is one at-least-once delivery. The holder must Ack on success or
// Nack (optionally delayed) to hand the task back; an unresolved lease is
// re-delivered after the visibility timeout.
type Lease struct {
	Task    Task
	Attempt int

	ack  func(ctx context.Context) error
	nack func(ctx context.Context, delay time.Duration) error
}

// NewLease binds delivery callbacks to a task. Queue implementations and
// their consumers' tests are the only expected callers.
func NewLease(task Task, attempt int, ack func(context.Context) error, nack func(context.Context, time.Duration) error) *Lease {
	return &Lease{Task: task, Attempt: attempt, ack: ack, nack: nack}
}

// Ack resolves the lease as done.
func (l *Lease) Ack(ctx context.Context) error {
	if l == nil || l.ack == nil {
		return nil
	}
	return l.ack(ctx)
}

// Nack returns the task to the queue, delayed by the given backoff.
func (l *Lease) Nack(ctx context.Context, delay time.Duration) error {
	if l == nil || l.nack == nil {
		return nil
	}
	return l.nack(ctx, delay)
}

// Queue is the delivery contract shared by the Redis and Pub/Sub backends.
// Dequeue blocks up to the backend's poll interval and returns (nil, nil)
// when no task is ready.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (*Lease, error)
}
