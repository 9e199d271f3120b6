package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	id           string
	body         string
	receipt      string
	visibleAt    time.Time
	receiveCount int
}

type memoryQueue struct {
	entries []*memoryEntry
	notify  chan struct{}
}

// MemoryTransport is an in-process Transport with visibility-timeout
// redelivery, for local runs and tests.
type MemoryTransport struct {
	visibility time.Duration
	now        func() time.Time

	mu     sync.Mutex
	queues map[string]*memoryQueue
	seq    int
}

// NewMemoryTransport creates a transport whose received messages reappear
// after visibility unless deleted. A zero visibility defaults to 30s.
func NewMemoryTransport(visibility time.Duration) *MemoryTransport {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &MemoryTransport{
		visibility: visibility,
		now:        time.Now,
		queues:     make(map[string]*memoryQueue),
	}
}

func (t *MemoryTransport) queue(name string) *memoryQueue {
	q, ok := t.queues[name]
	if !ok {
		q = &memoryQueue{notify: make(chan struct{})}
		t.queues[name] = q
	}
	return q
}

func (t *MemoryTransport) Ensure(_ context.Context, queue string) error {
	t.mu.Lock()
	t.queue(queue)
	t.mu.Unlock()
	return nil
}

func (t *MemoryTransport) Send(_ context.Context, queue, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	q := t.queue(queue)
	q.entries = append(q.entries, &memoryEntry{id: strconv.Itoa(t.seq), body: body})

	close(q.notify)
	q.notify = make(chan struct{})
	return nil
}

func (t *MemoryTransport) Receive(ctx context.Context, queue string, max int, wait time.Duration) ([]Message, error) {
	if max < 1 {
		max = 1
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		t.mu.Lock()
		msgs := t.take(queue, max)
		notify := t.queue(queue).notify
		t.mu.Unlock()

		if len(msgs) > 0 || wait <= 0 {
			return msgs, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-notify:
		}
	}
}

// take must be called with t.mu held.
func (t *MemoryTransport) take(queue string, max int) []Message {
	now := t.now()
	var msgs []Message
	for _, e := range t.queue(queue).entries {
		if len(msgs) == max {
			break
		}
		if e.visibleAt.After(now) {
			continue
		}
		e.receiveCount++
		e.receipt = uuid.NewString()
		e.visibleAt = now.Add(t.visibility)
		msgs = append(msgs, Message{
			ID:            e.id,
			Body:          e.body,
			ReceiptHandle: e.receipt,
			ReceiveCount:  e.receiveCount,
		})
	}
	return msgs
}

func (t *MemoryTransport) Delete(_ context.Context, queue, receiptHandle string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	q := t.queue(queue)
	for i, e := range q.entries {
		if e.receipt == receiptHandle {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}
	return ErrUnknownReceipt
}

// ExpireVisibility makes every in-flight message of queue visible again,
// as if its visibility timeout had elapsed.
func (t *MemoryTransport) ExpireVisibility(queue string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.queue(queue).entries {
		e.visibleAt = time.Time{}
	}
}

// Bodies returns the bodies of every undeleted message, visible or not.
func (t *MemoryTransport) Bodies(queue string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.queue(queue)
	out := make([]string, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e.body)
	}
	return out
}

// Len returns the number of undeleted messages in queue.
func (t *MemoryTransport) Len(queue string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue(queue).entries)
}
