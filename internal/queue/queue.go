// Package queue provides a durable work-item queue with at-least-once
// delivery, a visibility window, and a dead-letter path for items that
// exhaust their redelivery budget.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
)

// ErrUnavailable indicates a transient broker or store failure. Callers may
// retry the operation.
var ErrUnavailable = errors.New("queue unavailable")

// Policy holds the delivery contract of a queue. Values apply to the
// primary queue and its dead-letter queue alike.
type Policy struct {
	// VisibilityWindow is how long a delivered item stays invisible to
	// other receivers before it is redelivered.
	VisibilityWindow time.Duration

	// MaxReceiveCount bounds deliveries of one item. An item due for
	// delivery beyond this count is moved to the dead-letter queue
	// instead.
	MaxReceiveCount int

	// Retention is the hard upper bound on item age. Items older than
	// this are discarded regardless of delivery state.
	Retention time.Duration
}

// DefaultPolicy returns the standard delivery contract.
func DefaultPolicy() Policy {
	return Policy{
		VisibilityWindow: 30 * time.Second,
		MaxReceiveCount:  3,
		Retention:        14 * 24 * time.Hour,
	}
}

// Delivery is one received work item together with the broker handle needed
// to acknowledge it.
type Delivery struct {
	Item models.WorkItem

	// receipt is implementation-specific; only the queue that produced
	// the delivery can acknowledge it.
	receipt any
}

// DeadLetter is an item that exceeded its redelivery budget, kept verbatim
// for manual inspection.
type DeadLetter struct {
	Item    models.WorkItem `json:"item"`
	Reason  string          `json:"reason"`
	MovedAt time.Time       `json:"moved_at"`
}

// Queue delivers work items at least once. No ordering is guaranteed across
// items; concurrent receivers compete for deliveries.
type Queue interface {
	// Enqueue stores a new work item. It either succeeds or fails with a
	// transient error the caller may retry.
	Enqueue(ctx context.Context, kind string, payload []byte) (*models.WorkItem, error)

	// Receive blocks up to wait for available items and returns between
	// zero and maxBatch deliveries, or early with the context's error
	// once ctx is canceled. Each delivered item is invisible to other
	// receivers for the policy's visibility window.
	Receive(ctx context.Context, maxBatch int, wait time.Duration) ([]*Delivery, error)

	// Ack permanently removes a delivered item. Call only after the item
	// was processed successfully; unacked items redeliver when their
	// visibility window elapses.
	Ack(ctx context.Context, d *Delivery) error

	// DeadLetters lists items on the dead-letter queue, newest last.
	DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)

	// PurgeDeadLetters removes all dead-lettered items.
	PurgeDeadLetters(ctx context.Context) error

	// Close releases broker resources.
	Close() error
}
