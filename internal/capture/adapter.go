package capture

import (
	"context"
	"time"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/logging"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/metrics"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
)

// EventHandler consumes one normalized change event. Returning an error
// stops the adapter from advancing its checkpoint past the event, so the
// event is observed again after the next poll.
type EventHandler func(ctx context.Context, event models.ChangeEvent) error

// Config configures a capture adapter.
type Config struct {
	// SourceID names the capture source on emitted events and keys the
	// checkpoint.
	SourceID string

	// PollInterval is the sleep between fetches once the feed is caught
	// up.
	PollInterval time.Duration

	// FetchLimit bounds records per fetch.
	FetchLimit int
}

// Adapter tails a change feed and emits normalized events to a handler.
// Capture is asynchronous to the originating mutation: the adapter only
// reads the journal, so it can never block a writer. Per-entity relative
// order is preserved because records are processed in position order;
// cross-entity ordering is not guaranteed once events leave the handler.
type Adapter struct {
	cfg         Config
	feed        ChangeFeed
	checkpoints CheckpointStore
	handler     EventHandler
	log         *logging.Logger
}

// NewAdapter creates an adapter. The handler is typically a router's Route
// method.
func NewAdapter(cfg Config, feed ChangeFeed, checkpoints CheckpointStore, handler EventHandler, log *logging.Logger) *Adapter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 100
	}
	return &Adapter{
		cfg:         cfg,
		feed:        feed,
		checkpoints: checkpoints,
		handler:     handler,
		log:         log,
	}
}

// Run observes the feed until the context is canceled. It resumes from the
// stored checkpoint and advances it only past records that were handled or
// deliberately skipped, so a restart loses nothing beyond the at-least-once
// tolerance.
func (a *Adapter) Run(ctx context.Context) error {
	position, err := a.checkpoints.Load(ctx, a.cfg.SourceID)
	if err != nil {
		return err
	}
	a.log.Info("capture adapter starting",
		"source", a.cfg.SourceID,
		"position", position)

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		position = a.drain(ctx, position)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain fetches and handles records until the feed is caught up or a
// handler failure stops progress. It returns the new checkpoint position.
func (a *Adapter) drain(ctx context.Context, position int64) int64 {
	for {
		records, err := a.feed.Fetch(ctx, position, a.cfg.FetchLimit)
		if err != nil {
			a.log.Warn("change feed fetch failed", "source", a.cfg.SourceID, "error", err)
			return position
		}
		if len(records) == 0 {
			return position
		}

		for _, record := range records {
			event, ok := a.normalize(record)
			if ok {
				metrics.EventsObserved.WithLabelValues(a.cfg.SourceID, string(event.Kind)).Inc()
				if event.Kind == models.EventInsert {
					if err := a.handler(ctx, event); err != nil {
						// Leave the checkpoint at the last
						// handled record; the event is
						// re-observed next poll.
						a.log.Warn("event handling failed, will re-observe",
							"source", a.cfg.SourceID,
							"position", record.Position,
							"error", err)
						return position
					}
				}
			}

			position = record.Position
			if err := a.checkpoints.Save(ctx, a.cfg.SourceID, position); err != nil {
				a.log.Warn("checkpoint save failed", "source", a.cfg.SourceID, "error", err)
			}
		}
	}
}

// normalize converts a raw record into a change event. Records that cannot
// be normalized are skipped, never fatal.
func (a *Adapter) normalize(record Record) (models.ChangeEvent, bool) {
	kind := models.EventKind(record.Kind)
	if !kind.Valid() {
		metrics.EventsSkipped.Inc()
		a.log.Warn("skipping record with unknown event kind",
			"source", a.cfg.SourceID,
			"position", record.Position,
			"kind", record.Kind)
		return models.ChangeEvent{}, false
	}
	if record.EntityKey == "" {
		metrics.EventsSkipped.Inc()
		a.log.Warn("skipping record without entity key",
			"source", a.cfg.SourceID,
			"position", record.Position)
		return models.ChangeEvent{}, false
	}

	observed := record.ObservedAt
	if observed.IsZero() {
		observed = time.Now().UTC()
	}

	return models.ChangeEvent{
		SourceID:   a.cfg.SourceID,
		Kind:       kind,
		EntityKey:  record.EntityKey,
		Payload:    record.Fields,
		Position:   record.Position,
		ObservedAt: observed,
	}, true
}
