package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type fakeMessage struct {
	mu     sync.Mutex
	acked  bool
	nacked bool
}

func (m *fakeMessage) Ack() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = true
}

func (m *fakeMessage) Nack() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nacked = true
}

func (m *fakeMessage) settled() (acked, nacked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked, m.nacked
}

func newTestPubSubQueue() *PubSubQueue {
	return &PubSubQueue{logg: testLogger(), pollInterval: 50 * time.Millisecond}
}

func encodedTask(t *testing.T, jobID string) []byte {
	t.Helper()
	payload, err := json.Marshal(testTask(jobID))
	if err != nil {
		t.Fatalf("encode task: %v", err)
	}
	return payload
}

func TestPubSubLeaseAckedWhileReceiveIsOpen(t *testing.T) {
	q := newTestPubSubQueue()
	msg := &fakeMessage{}
	leases := make(chan *Lease, 1)
	recvCtx, release := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		q.deliver(recvCtx, encodedTask(t, "job-ps-1"), nil, msg, leases, release)
		close(done)
	}()

	lease := <-leases
	if lease.Task.JobID != "job-ps-1" || lease.Attempt != 1 {
		t.Fatalf("lease not carried: %+v", lease.Task)
	}

	// The message must stay unsettled and the receive context alive until
	// the holder acks; settling after the pull ends is silently dropped.
	if acked, nacked := msg.settled(); acked || nacked {
		t.Fatal("message settled before the lease was acked")
	}
	if recvCtx.Err() != nil {
		t.Fatal("receive context released before the lease was settled")
	}

	if err := lease.Ack(context.Background()); err != nil {
		t.Fatalf("ack: %v", err)
	}
	<-done

	if acked, nacked := msg.settled(); !acked || nacked {
		t.Fatalf("expected ack inside the callback, acked=%v nacked=%v", acked, nacked)
	}
	if recvCtx.Err() == nil {
		t.Fatal("receive context must be released once the lease is settled")
	}
}

func TestPubSubLeaseNackRedeliversViaBroker(t *testing.T) {
	q := newTestPubSubQueue()
	msg := &fakeMessage{}
	leases := make(chan *Lease, 1)
	recvCtx, release := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		q.deliver(recvCtx, encodedTask(t, "job-ps-2"), nil, msg, leases, release)
		close(done)
	}()

	lease := <-leases
	if err := lease.Nack(context.Background(), time.Minute); err != nil {
		t.Fatalf("nack: %v", err)
	}
	<-done

	if acked, nacked := msg.settled(); acked || !nacked {
		t.Fatalf("expected nack inside the callback, acked=%v nacked=%v", acked, nacked)
	}
}

func TestPubSubShutdownLeavesMessageUnsettled(t *testing.T) {
	q := newTestPubSubQueue()
	msg := &fakeMessage{}
	leases := make(chan *Lease, 1)
	recvCtx, release := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		q.deliver(recvCtx, encodedTask(t, "job-ps-3"), nil, msg, leases, release)
		close(done)
	}()

	<-leases
	release()
	<-done

	if acked, nacked := msg.settled(); acked || nacked {
		t.Fatal("shutdown must leave the message for the broker to redeliver")
	}
}

func TestPubSubPoisonPayloadAckedAway(t *testing.T) {
	q := newTestPubSubQueue()
	msg := &fakeMessage{}
	leases := make(chan *Lease, 1)
	recvCtx, release := context.WithCancel(context.Background())

	q.deliver(recvCtx, []byte("{not json"), nil, msg, leases, release)

	if acked, _ := msg.settled(); !acked {
		t.Fatal("poison payload must be acked away")
	}
	if len(leases) != 0 {
		t.Fatal("poison payload must not produce a lease")
	}
	if recvCtx.Err() == nil {
		t.Fatal("receive context must be released after dropping poison")
	}
}

func TestDeliveryAttemptPrefersBrokerCounter(t *testing.T) {
	five := 5
	if got := deliveryAttempt(&five, 0); got != 5 {
		t.Fatalf("broker counter ignored, got %d", got)
	}
	zero := 0
	if got := deliveryAttempt(&zero, 2); got != 3 {
		t.Fatalf("zero broker counter must fall back to payload, got %d", got)
	}
	if got := deliveryAttempt(nil, 2); got != 3 {
		t.Fatalf("nil broker counter must fall back to payload, got %d", got)
	}
}
