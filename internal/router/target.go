package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/queue"
)

// DeliveryTarget receives change events matched by a subscription.
type DeliveryTarget interface {
	// Name identifies the target in logs and error messages.
	Name() string

	// Deliver hands one matched event to the target. A returned error
	// affects only this target; other targets for the same event are
	// unaffected.
	Deliver(ctx context.Context, event models.ChangeEvent) error
}

// QueueTarget enqueues one work item per delivered event.
type QueueTarget struct {
	q    queue.Queue
	kind string
}

// NewQueueTarget builds a target that enqueues work items of the given
// kind. The event's entity key becomes the campaign ID and the kind
// doubles as the record key the result will be stored under.
func NewQueueTarget(q queue.Queue, kind string) *QueueTarget {
	return &QueueTarget{q: q, kind: kind}
}

func (t *QueueTarget) Name() string { return "queue:" + t.kind }

func (t *QueueTarget) Deliver(ctx context.Context, event models.ChangeEvent) error {
	task := models.TaskPayload{
		CampaignID: event.EntityKey,
		RecordKey:  t.kind,
		Input:      event.Payload,
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	if _, err := t.q.Enqueue(ctx, t.kind, payload); err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", t.kind, err)
	}

	return nil
}

// ItemHandler processes a single work item synchronously.
type ItemHandler func(ctx context.Context, item *models.WorkItem) error

// DirectTarget invokes a handler inline instead of going through the
// durable queue. Direct deliveries get no retry budget; a failure is
// reported back to the router and the event is not redelivered.
type DirectTarget struct {
	kind    string
	handler ItemHandler
}

// NewDirectTarget builds a target that processes matched events in the
// calling goroutine.
func NewDirectTarget(kind string, handler ItemHandler) *DirectTarget {
	return &DirectTarget{kind: kind, handler: handler}
}

func (t *DirectTarget) Name() string { return "direct:" + t.kind }

func (t *DirectTarget) Deliver(ctx context.Context, event models.ChangeEvent) error {
	task := models.TaskPayload{
		CampaignID: event.EntityKey,
		RecordKey:  t.kind,
		Input:      event.Payload,
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	item := &models.WorkItem{
		ID:            uuid.NewString(),
		Kind:          t.kind,
		Payload:       payload,
		EnqueuedAt:    time.Now().UTC(),
		DeliveryCount: 1,
	}

	if err := t.handler(ctx, item); err != nil {
		return fmt.Errorf("direct %s invocation failed: %w", t.kind, err)
	}

	return nil
}
