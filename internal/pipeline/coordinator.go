// Package pipeline wires the capture, routing, queue and worker stages
// together and owns their lifecycle.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/capture"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/logging"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/router"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/worker"
)

// Coordinator runs the capture adapter and the worker pool as one unit.
// Either half may also run alone in its own process; the coordinator
// exists for single-binary deployments and tests.
type Coordinator struct {
	adapter *capture.Adapter
	pool    *worker.Pool
	log     *logging.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Config assembles a coordinator from already-built stages. Adapter or
// Pool may be nil when a deployment runs only one half.
type Config struct {
	Adapter *capture.Adapter
	Pool    *worker.Pool
}

func NewCoordinator(cfg Config, log *logging.Logger) *Coordinator {
	return &Coordinator{
		adapter: cfg.Adapter,
		pool:    cfg.Pool,
		log:     log,
	}
}

// EventHandler builds the adapter handler that routes captured events
// and registers a pending campaign record before fan-out. A routing
// error keeps the checkpoint behind the event so capture retries it.
func EventHandler(r *router.Router, tracker CampaignCreator, log *logging.Logger) capture.EventHandler {
	return func(ctx context.Context, event models.ChangeEvent) error {
		if _, err := tracker.Create(ctx, event.EntityKey, nil); err != nil {
			return fmt.Errorf("failed to register campaign %s: %w", event.EntityKey, err)
		}

		delivered, err := r.Route(ctx, event)
		if err != nil {
			return fmt.Errorf("failed to route event at position %d: %w", event.Position, err)
		}

		log.DebugContext(ctx, "event routed",
			"entity_key", event.EntityKey,
			"position", event.Position,
			"targets", delivered)
		return nil
	}
}

// CampaignCreator is the slice of the status tracker the capture side
// needs.
type CampaignCreator interface {
	Create(ctx context.Context, campaignID string, requiredKeys []string) (*models.CampaignRecord, error)
}

// Start launches the configured stages.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("pipeline already running")
	}
	c.running = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	if c.pool != nil {
		if err := c.pool.Start(ctx); err != nil {
			return fmt.Errorf("failed to start worker pool: %w", err)
		}
	}

	if c.adapter != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.adapter.Run(ctx); err != nil && ctx.Err() == nil {
				c.log.ErrorContext(ctx, "capture adapter stopped", "error", err)
			}
		}()
	}

	c.log.InfoContext(ctx, "pipeline started")
	return nil
}

// Stop shuts the stages down and waits for them to drain.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return fmt.Errorf("pipeline not running")
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()

	if c.pool != nil {
		if err := c.pool.Stop(); err != nil {
			return fmt.Errorf("failed to stop worker pool: %w", err)
		}
	}

	c.log.Info("pipeline stopped")
	return nil
}
