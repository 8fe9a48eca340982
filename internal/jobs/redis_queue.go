package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adlibra/adlibra-backend/pkg/config"
	"github.com/adlibra/adlibra-backend/pkg/logger"
	"github.com/adlibra/adlibra-backend/pkg/redis"
)

const (
	pendingSegment = "pending"
	activeSegment  = "active"
)

// RedisQueue is a reliable list-based queue: tasks move atomically from the
// pending list to the active list on dequeue and hold a lease key with a
// TTL. Tasks whose lease expired are swept back to pending on the next
// dequeue, which is what makes delivery at-least-once.
type RedisQueue struct {
	client *redis.Client
	logg   *logger.Logger

	name              string
	visibilityTimeout time.Duration
	pollInterval      time.Duration
}

func NewRedisQueue(client *redis.Client, cfg config.QueueConfig, logg *logger.Logger) *RedisQueue {
	return &RedisQueue{
		client:            client,
		logg:              logg,
		name:              cfg.Name,
		visibilityTimeout: cfg.VisibilityTimeout,
		pollInterval:      cfg.PollInterval,
	}
}

func (q *RedisQueue) pendingKey() string {
	return q.client.QueueKey(q.name, pendingSegment)
}

func (q *RedisQueue) activeKey() string {
	return q.client.QueueKey(q.name, activeSegment)
}

// Enqueue pushes a task onto the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}
	return q.client.LPush(ctx, q.pendingKey(), payload)
}

// Dequeue sweeps expired leases, then blocks up to the poll interval for the
// next ready task. Tasks still inside their backoff window rotate back to
// pending and (nil, nil) is returned.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Lease, error) {
	if err := q.requeueExpired(ctx); err != nil {
		q.logg.Warn(ctx, "sweeping expired leases failed")
	}

	raw, err := q.client.BLMoveTail(ctx, q.pendingKey(), q.activeKey(), q.pollInterval)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeuing task: %w", err)
	}

	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		// Poison payload: drop it rather than loop on it forever.
		_ = q.client.LRem(ctx, q.activeKey(), raw)
		q.logg.Warn(ctx, "dropping undecodable task payload")
		return nil, nil
	}

	if !task.NotBefore.IsZero() && time.Now().Before(task.NotBefore) {
		_ = q.client.LRem(ctx, q.activeKey(), raw)
		if err := q.client.LPush(ctx, q.pendingKey(), raw); err != nil {
			return nil, fmt.Errorf("rotating delayed task: %w", err)
		}
		// BLMove returned instantly, so without a wait here a lone delayed
		// task has the caller spinning against redis until its backoff ends.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
		return nil, nil
	}

	// Rewrite the active entry with the incremented delivery count so an
	// expired lease re-delivers with the right attempt number.
	task.Attempt++
	leased, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encoding leased task: %w", err)
	}
	if err := q.client.LRem(ctx, q.activeKey(), raw); err != nil {
		return nil, err
	}
	if err := q.client.LPush(ctx, q.activeKey(), leased); err != nil {
		return nil, err
	}
	if err := q.client.Set(ctx, q.leaseKey(task.JobID), leased, q.visibilityTimeout); err != nil {
		return nil, fmt.Errorf("writing lease: %w", err)
	}

	payload := string(leased)
	return &Lease{
		Task:    task,
		Attempt: task.Attempt,
		ack: func(ctx context.Context) error {
			if err := q.client.LRem(ctx, q.activeKey(), payload); err != nil {
				return err
			}
			return q.client.Del(ctx, q.leaseKey(task.JobID))
		},
		nack: func(ctx context.Context, delay time.Duration) error {
			if err := q.client.LRem(ctx, q.activeKey(), payload); err != nil {
				return err
			}
			if err := q.client.Del(ctx, q.leaseKey(task.JobID)); err != nil {
				return err
			}
			retry := task
			if delay > 0 {
				retry.NotBefore = time.Now().Add(delay)
			}
			encoded, err := json.Marshal(retry)
			if err != nil {
				return err
			}
			return q.client.LPush(ctx, q.pendingKey(), encoded)
		},
	}, nil
}

func (q *RedisQueue) leaseKey(jobID string) string {
	return q.client.LeaseKey(q.name, jobID)
}

// requeueExpired returns active entries without a live lease key to the
// pending list.
func (q *RedisQueue) requeueExpired(ctx context.Context) error {
	entries, err := q.client.LRange(ctx, q.activeKey(), 0, -1)
	if err != nil {
		return err
	}
	for _, raw := range entries {
		var task Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			_ = q.client.LRem(ctx, q.activeKey(), raw)
			continue
		}
		alive, err := q.client.Exists(ctx, q.leaseKey(task.JobID))
		if err != nil {
			return err
		}
		if alive {
			continue
		}
		if err := q.client.LRem(ctx, q.activeKey(), raw); err != nil {
			return err
		}
		if err := q.client.LPush(ctx, q.pendingKey(), raw); err != nil {
			return err
		}
		q.logg.Warn(q.logg.WithJobID(ctx, task.JobID), "lease expired, task returned to pending")
	}
	return nil
}
