package jobs

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/adlibra/adlibra-backend/pkg/config"
	"github.com/adlibra/adlibra-backend/pkg/logger"
	"github.com/adlibra/adlibra-backend/pkg/redis"
)

// fakeStore is an in-memory stand-in for the redis command surface. BLMove
// never blocks; an empty source returns redis.Nil immediately.
type fakeStore struct {
	mu    sync.Mutex
	kv    map[string]string
	lists map[string][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{kv: map[string]string{}, lists: map[string][]string{}}
}

func toStr(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func (f *fakeStore) Ping(ctx context.Context) *goredis.StatusCmd {
	return goredis.NewStatusCmd(ctx)
}

func (f *fakeStore) Set(ctx context.Context, key string, value any, _ time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kv[key] = toStr(value)
	return goredis.NewStatusCmd(ctx)
}

func (f *fakeStore) Get(ctx context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := goredis.NewStringCmd(ctx)
	v, ok := f.kv[key]
	if !ok {
		cmd.SetErr(goredis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, _ time.Duration) *goredis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := goredis.NewBoolCmd(ctx)
	if _, ok := f.kv[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	f.kv[key] = toStr(value)
	cmd.SetVal(true)
	return cmd
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for _, key := range keys {
		if _, ok := f.kv[key]; ok {
			delete(f.kv, key)
			removed++
		}
	}
	cmd := goredis.NewIntCmd(ctx)
	cmd.SetVal(removed)
	return cmd
}

func (f *fakeStore) Exists(ctx context.Context, keys ...string) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var present int64
	for _, key := range keys {
		if _, ok := f.kv[key]; ok {
			present++
		}
	}
	cmd := goredis.NewIntCmd(ctx)
	cmd.SetVal(present)
	return cmd
}

func (f *fakeStore) LPush(ctx context.Context, key string, values ...any) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.lists[key] = append([]string{toStr(v)}, f.lists[key]...)
	}
	cmd := goredis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(f.lists[key])))
	return cmd
}

func (f *fakeStore) BLMove(ctx context.Context, source, destination, _, _ string, _ time.Duration) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := goredis.NewStringCmd(ctx)
	src := f.lists[source]
	if len(src) == 0 {
		cmd.SetErr(goredis.Nil)
		return cmd
	}
	v := src[len(src)-1]
	f.lists[source] = src[:len(src)-1]
	f.lists[destination] = append([]string{v}, f.lists[destination]...)
	cmd.SetVal(v)
	return cmd
}

func (f *fakeStore) LRem(ctx context.Context, key string, _ int64, value any) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := goredis.NewIntCmd(ctx)
	want := toStr(value)
	list := f.lists[key]
	for i, v := range list {
		if v == want {
			f.lists[key] = append(append([]string{}, list[:i]...), list[i+1:]...)
			cmd.SetVal(1)
			return cmd
		}
	}
	cmd.SetVal(0)
	return cmd
}

func (f *fakeStore) LRange(ctx context.Context, key string, start, stop int64) *goredis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := goredis.NewStringSliceCmd(ctx)
	list := f.lists[key]
	if start == 0 && stop == -1 {
		cmd.SetVal(append([]string{}, list...))
		return cmd
	}
	cmd.SetVal(nil)
	return cmd
}

func (f *fakeStore) LLen(ctx context.Context, key string) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := goredis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(f.lists[key])))
	return cmd
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("error"), Output: io.Discard})
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		Name:              "scrape",
		VisibilityTimeout: time.Minute,
		PollInterval:      10 * time.Millisecond,
	}
}

func newTestRedisQueue(store *fakeStore) (*RedisQueue, *redis.Client) {
	client := redis.NewWithStore(store)
	return NewRedisQueue(client, testQueueConfig(), testLogger()), client
}

func testTask(jobID string) Task {
	return Task{
		JobID:       jobID,
		SearchType:  "keyword",
		SearchQuery: "sneakers",
		Platform:    PlatformMeta,
		Country:     "KR",
		MaxAds:      50,
	}
}

func TestRedisQueueRoundTrip(t *testing.T) {
	store := newFakeStore()
	q, client := newTestRedisQueue(store)
	ctx := context.Background()

	if err := q.Enqueue(ctx, testTask("job-1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	lease, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if lease == nil {
		t.Fatal("expected a lease")
	}
	if lease.Task.JobID != "job-1" || lease.Task.SearchQuery != "sneakers" {
		t.Fatalf("task not carried: %+v", lease.Task)
	}
	if lease.Attempt != 1 {
		t.Fatalf("first delivery attempt = %d", lease.Attempt)
	}

	if err := lease.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if n, _ := client.LLen(ctx, client.QueueKey("scrape", "active")); n != 0 {
		t.Fatalf("active list not drained, len %d", n)
	}
	if alive, _ := client.Exists(ctx, client.LeaseKey("scrape", "job-1")); alive {
		t.Fatal("lease key must be cleared on ack")
	}
}

func TestRedisQueueEmptyReturnsNil(t *testing.T) {
	q, _ := newTestRedisQueue(newFakeStore())

	lease, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if lease != nil {
		t.Fatal("expected no lease from an empty queue")
	}
}

func TestRedisQueueNackRedeliversWithBumpedAttempt(t *testing.T) {
	q, _ := newTestRedisQueue(newFakeStore())
	ctx := context.Background()

	if err := q.Enqueue(ctx, testTask("job-2")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	lease, err := q.Dequeue(ctx)
	if err != nil || lease == nil {
		t.Fatalf("dequeue: %v %v", lease, err)
	}
	if err := lease.Nack(ctx, 0); err != nil {
		t.Fatalf("nack: %v", err)
	}

	redelivered, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if redelivered == nil {
		t.Fatal("expected immediate redelivery after zero-delay nack")
	}
	if redelivered.Attempt != 2 {
		t.Fatalf("redelivery attempt = %d, want 2", redelivered.Attempt)
	}
}

func TestRedisQueueNackWithDelayHoldsTask(t *testing.T) {
	q, client := newTestRedisQueue(newFakeStore())
	ctx := context.Background()

	if err := q.Enqueue(ctx, testTask("job-3")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	lease, err := q.Dequeue(ctx)
	if err != nil || lease == nil {
		t.Fatalf("dequeue: %v %v", lease, err)
	}
	if err := lease.Nack(ctx, time.Hour); err != nil {
		t.Fatalf("nack: %v", err)
	}

	// The backoff window has not elapsed; the task rotates back to pending.
	held, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue during backoff: %v", err)
	}
	if held != nil {
		t.Fatal("task must not be delivered inside its backoff window")
	}
	if n, _ := client.LLen(ctx, client.QueueKey("scrape", "pending")); n != 1 {
		t.Fatalf("pending len = %d, want 1", n)
	}
}

func TestRedisQueueDelayedTaskWaitsThePollInterval(t *testing.T) {
	q, _ := newTestRedisQueue(newFakeStore())
	ctx := context.Background()

	if err := q.Enqueue(ctx, testTask("job-delayed")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	lease, err := q.Dequeue(ctx)
	if err != nil || lease == nil {
		t.Fatalf("dequeue: %v %v", lease, err)
	}
	if err := lease.Nack(ctx, time.Hour); err != nil {
		t.Fatalf("nack: %v", err)
	}

	// The fake BLMove never blocks, so a rotated delayed task would come
	// straight back; each empty poll must still cost a full interval or a
	// worker loop degenerates into a hot spin.
	start := time.Now()
	for i := 0; i < 3; i++ {
		held, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue during backoff: %v", err)
		}
		if held != nil {
			t.Fatal("task must not be delivered inside its backoff window")
		}
	}
	if elapsed := time.Since(start); elapsed < 3*q.pollInterval {
		t.Fatalf("three empty polls took %v, want at least %v", elapsed, 3*q.pollInterval)
	}
}

func TestRedisQueueDelayedRotationHonorsCancellation(t *testing.T) {
	q, _ := newTestRedisQueue(newFakeStore())
	ctx := context.Background()

	if err := q.Enqueue(ctx, testTask("job-cancel")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	lease, err := q.Dequeue(ctx)
	if err != nil || lease == nil {
		t.Fatalf("dequeue: %v %v", lease, err)
	}
	if err := lease.Nack(ctx, time.Hour); err != nil {
		t.Fatalf("nack: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := q.Dequeue(cancelled); err == nil {
		t.Fatal("expected context error once cancelled")
	}
}

func TestRedisQueueExpiredLeaseRequeued(t *testing.T) {
	store := newFakeStore()
	q, client := newTestRedisQueue(store)
	ctx := context.Background()

	if err := q.Enqueue(ctx, testTask("job-4")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	lease, err := q.Dequeue(ctx)
	if err != nil || lease == nil {
		t.Fatalf("dequeue: %v %v", lease, err)
	}

	// Simulate the visibility timeout elapsing.
	store.mu.Lock()
	delete(store.kv, client.LeaseKey("scrape", "job-4"))
	store.mu.Unlock()

	redelivered, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if redelivered == nil {
		t.Fatal("expected redelivery after lease expiry")
	}
	if redelivered.Attempt != 2 {
		t.Fatalf("redelivery attempt = %d, want 2", redelivered.Attempt)
	}
}

func TestRedisQueuePoisonPayloadDropped(t *testing.T) {
	q, client := newTestRedisQueue(newFakeStore())
	ctx := context.Background()

	if err := client.LPush(ctx, client.QueueKey("scrape", "pending"), "{not json"); err != nil {
		t.Fatalf("seed poison: %v", err)
	}

	lease, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if lease != nil {
		t.Fatal("poison payload must not produce a lease")
	}
	if n, _ := client.LLen(ctx, client.QueueKey("scrape", "active")); n != 0 {
		t.Fatalf("poison payload left on active list, len %d", n)
	}
	if n, _ := client.LLen(ctx, client.QueueKey("scrape", "pending")); n != 0 {
		t.Fatalf("poison payload left on pending list, len %d", n)
	}
}
