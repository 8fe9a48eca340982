package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	gpubsub "cloud.google.com/go/pubsub/v2"

	"github.com/adlibra/adlibra-backend/pkg/config"
	"github.com/adlibra/adlibra-backend/pkg/logger"
	"github.com/adlibra/adlibra-backend/pkg/pubsub"
)

// PubSubQueue delivers tasks over a Pub/Sub topic and subscription. The ack
// deadline is the lease window and the broker's delivery attempt is the retry
// count, so the Redis-specific NotBefore/lease machinery does not apply here.
type PubSubQueue struct {
	publisher    *gpubsub.Publisher
	subscriber   *gpubsub.Subscriber
	logg         *logger.Logger
	pollInterval time.Duration
}

func NewPubSubQueue(client *pubsub.Client, cfg config.QueueConfig, logg *logger.Logger) (*PubSubQueue, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	publisher := client.ScrapePublisher()
	subscriber := client.ScrapeSubscription()
	if publisher == nil || subscriber == nil {
		return nil, errors.New("pubsub topic and subscription are required")
	}
	// One task at a time keeps the worker's sequential processing honest.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	return &PubSubQueue{
		publisher:    publisher,
		subscriber:   subscriber,
		logg:         logg,
		pollInterval: cfg.PollInterval,
	}, nil
}

// Enqueue publishes the task and waits for the server to confirm it.
func (q *PubSubQueue) Enqueue(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}
	result := q.publisher.Publish(ctx, &gpubsub.Message{Data: payload})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing task: %w", err)
	}
	return nil
}

// Dequeue pulls at most one message within the poll interval. The receive
// callback stays open until the caller settles the lease: acks issued after
// Receive has returned are never delivered to the broker, so settlement has
// to happen while the streaming pull is still alive.
func (q *PubSubQueue) Dequeue(ctx context.Context) (*Lease, error) {
	recvCtx, cancel := context.WithCancel(ctx)

	var (
		mu    sync.Mutex
		taken bool
	)
	leases := make(chan *Lease, 1)
	recvErr := make(chan error, 1)

	go func() {
		recvErr <- q.subscriber.Receive(recvCtx, func(msgCtx context.Context, msg *gpubsub.Message) {
			mu.Lock()
			if taken {
				mu.Unlock()
				msg.Nack()
				return
			}
			taken = true
			mu.Unlock()
			q.deliver(msgCtx, msg.Data, msg.DeliveryAttempt, msg, leases, cancel)
		})
	}()

	select {
	case lease := <-leases:
		return lease, nil
	case err := <-recvErr:
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("receiving task: %w", err)
		}
		return nil, nil
	case <-time.After(q.pollInterval):
		cancel()
		return nil, nil
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

// settler is the slice of *pubsub.Message the delivery path touches.
type settler interface {
	Ack()
	Nack()
}

// deliver decodes one message, hands the lease to the waiting Dequeue call
// and blocks until the holder settles it. Only then is the receive context
// released, which keeps the broker extending the ack deadline for the whole
// job run. Undecodable payloads are acked away so they cannot loop forever.
func (q *PubSubQueue) deliver(ctx context.Context, data []byte, brokerAttempt *int, msg settler, leases chan<- *Lease, release context.CancelFunc) {
	defer release()

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		q.logg.Warn(ctx, "dropping undecodable task payload")
		msg.Ack()
		return
	}
	task.Attempt = deliveryAttempt(brokerAttempt, task.Attempt)

	settled := make(chan bool, 1)
	lease := &Lease{
		Task:    task,
		Attempt: task.Attempt,
		ack: func(context.Context) error {
			settled <- true
			return nil
		},
		// Pub/Sub has no per-message delay; the subscription's retry
		// policy spaces out redeliveries instead.
		nack: func(context.Context, time.Duration) error {
			settled <- false
			return nil
		},
	}
	leases <- lease

	select {
	case acked := <-settled:
		if acked {
			msg.Ack()
		} else {
			msg.Nack()
		}
	case <-ctx.Done():
		// Shutdown with the lease unsettled; the broker redelivers.
	}
}

// deliveryAttempt prefers the broker's counter. It is nil unless dead
// lettering is enabled on the subscription, in which case the payload's own
// count (plus this delivery) is the best available answer.
func deliveryAttempt(brokerAttempt *int, payloadAttempt int) int {
	if brokerAttempt != nil && *brokerAttempt > 0 {
		return *brokerAttempt
	}
	return payloadAttempt + 1
}
