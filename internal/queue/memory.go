package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
)

// Memory is an in-process Queue with the full delivery contract: visibility
// windows, redelivery counting, dead-lettering, and retention. It backs
// tests and single-node deployments; multi-node setups use the JetStream
// implementation.
type Memory struct {
	policy Policy

	mu      sync.Mutex
	entries map[string]*memEntry
	order   []string // enqueue order, oldest first
	dead    []DeadLetter

	clock   func() time.Time
	closeCh chan struct{}
	closed  bool
}

type memEntry struct {
	item models.WorkItem

	// invisibleUntil is the end of the current visibility window. Zero
	// while the item has never been delivered.
	invisibleUntil time.Time
}

// NewMemory creates an in-memory queue with the given policy. A janitor
// goroutine discards items past retention until Close is called.
func NewMemory(policy Policy) *Memory {
	q := &Memory{
		policy:  policy,
		entries: make(map[string]*memEntry),
		clock:   time.Now,
		closeCh: make(chan struct{}),
	}
	go q.janitor()
	return q
}

// Enqueue stores a new work item and makes it immediately visible.
func (q *Memory) Enqueue(_ context.Context, kind string, payload []byte) (*models.WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrUnavailable
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	item := models.WorkItem{
		ID:         id.String(),
		Kind:       kind,
		Payload:    append([]byte(nil), payload...),
		EnqueuedAt: q.clock().UTC(),
	}
	q.entries[item.ID] = &memEntry{item: item}
	q.order = append(q.order, item.ID)
	return &item, nil
}

// Receive returns up to maxBatch visible items, blocking up to wait when
// the queue is empty. Items due for delivery past the receive budget are
// dead-lettered instead of returned.
func (q *Memory) Receive(ctx context.Context, maxBatch int, wait time.Duration) ([]*Delivery, error) {
	if maxBatch <= 0 {
		maxBatch = 1
	}

	// The long-poll deadline is wall clock; q.clock only drives
	// visibility and retention arithmetic.
	deadline := time.Now().Add(wait)
	for {
		deliveries := q.collect(maxBatch)
		if len(deliveries) > 0 {
			return deliveries, nil
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.closeCh:
			return nil, ErrUnavailable
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (q *Memory) collect(maxBatch int) []*Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock()
	q.sweepLocked(now)

	var deliveries []*Delivery
	remaining := q.order[:0]
	for _, id := range q.order {
		e, ok := q.entries[id]
		if !ok {
			continue
		}
		if len(deliveries) >= maxBatch || now.Before(e.invisibleUntil) {
			remaining = append(remaining, id)
			continue
		}

		if e.item.DeliveryCount >= q.policy.MaxReceiveCount {
			// Redelivery budget exhausted: move verbatim to the
			// dead-letter queue instead of delivering.
			q.dead = append(q.dead, DeadLetter{
				Item:    e.item,
				Reason:  "max_receive_count_exceeded",
				MovedAt: now.UTC(),
			})
			delete(q.entries, id)
			continue
		}

		e.item.DeliveryCount++
		e.invisibleUntil = now.Add(q.policy.VisibilityWindow)
		item := e.item
		deliveries = append(deliveries, &Delivery{Item: item, receipt: id})
		remaining = append(remaining, id)
	}
	q.order = remaining
	return deliveries
}

// Ack removes the delivered item. Acking an item that already redelivered
// elsewhere, or was already acked, is a no-op.
func (q *Memory) Ack(_ context.Context, d *Delivery) error {
	id, ok := d.receipt.(string)
	if !ok {
		return ErrUnavailable
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, id)
	return nil
}

// DeadLetters lists dead-lettered items, oldest first.
func (q *Memory) DeadLetters(_ context.Context, limit int) ([]DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sweepLocked(q.clock())
	if limit <= 0 || limit > len(q.dead) {
		limit = len(q.dead)
	}
	out := make([]DeadLetter, limit)
	copy(out, q.dead[:limit])
	return out, nil
}

// PurgeDeadLetters drops all dead-lettered items.
func (q *Memory) PurgeDeadLetters(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = nil
	return nil
}

// Close stops the janitor and fails subsequent operations.
func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.closeCh)
	}
	return nil
}

// sweepLocked discards items and dead letters past retention.
func (q *Memory) sweepLocked(now time.Time) {
	cutoff := now.Add(-q.policy.Retention)
	for id, e := range q.entries {
		if e.item.EnqueuedAt.Before(cutoff) {
			delete(q.entries, id)
		}
	}
	kept := q.dead[:0]
	for _, dl := range q.dead {
		if !dl.Item.EnqueuedAt.Before(cutoff) {
			kept = append(kept, dl)
		}
	}
	q.dead = kept
}

func (q *Memory) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.mu.Lock()
			q.sweepLocked(q.clock())
			q.mu.Unlock()
		case <-q.closeCh:
			return
		}
	}
}
