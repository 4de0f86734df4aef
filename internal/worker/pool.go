// Package worker pulls work items off the durable queue and drives
// campaign operations to a tracked outcome.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/logging"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/metrics"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/operation"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/queue"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/status"
)

// Config configures the worker pool.
type Config struct {
	Concurrency      int
	ReceiveBatch     int
	ReceiveWait      time.Duration
	OperationTimeout time.Duration
}

// Pool runs competing consumers over one queue. The queue's visibility
// window is the only mutual-exclusion device: at most one worker holds a
// given item at a time, but two workers may hold different items for the
// same campaign, so all tracker writes go through conditional updates.
type Pool struct {
	queue    queue.Queue
	registry *operation.Registry
	tracker  *status.Tracker
	cfg      Config
	log      *logging.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPool creates a worker pool.
func NewPool(q queue.Queue, registry *operation.Registry, tracker *status.Tracker, cfg Config, log *logging.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ReceiveBatch <= 0 {
		cfg.ReceiveBatch = 10
	}
	if cfg.ReceiveWait <= 0 {
		cfg.ReceiveWait = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 25 * time.Second
	}

	return &Pool{
		queue:    q,
		registry: registry,
		tracker:  tracker,
		cfg:      cfg,
		log:      log,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("worker pool already running")
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	p.log.InfoContext(ctx, "worker pool starting",
		"concurrency", p.cfg.Concurrency,
		"operation_timeout", p.cfg.OperationTimeout)

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}

	return nil
}

// Stop drains the pool. In-flight items finish; unacknowledged items
// reappear after their visibility window.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("worker pool not running")
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	log := p.log.With("worker", id)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		default:
		}

		deliveries, err := p.queue.Receive(ctx, p.cfg.ReceiveBatch, p.cfg.ReceiveWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.ErrorContext(ctx, "receive failed", "error", err)
			select {
			case <-time.After(time.Second):
			case <-p.stopChan:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, delivery := range deliveries {
			p.handle(ctx, log, delivery)
		}
	}
}

// handle processes one delivery. Acknowledgment policy: permanent
// failures are acknowledged so the queue stops redelivering them;
// transient failures are left unacknowledged and reappear after the
// visibility window, counting against the item's delivery budget.
func (p *Pool) handle(ctx context.Context, log *logging.Logger, delivery *queue.Delivery) {
	item := &delivery.Item

	err := p.Process(ctx, item)
	switch {
	case err == nil:
		metrics.ItemsProcessed.WithLabelValues(item.Kind, "ok").Inc()
	case operation.IsPermanent(err):
		metrics.ItemsProcessed.WithLabelValues(item.Kind, "permanent_failure").Inc()
		log.WarnContext(ctx, "dropping item after permanent failure",
			"item_id", item.ID,
			"kind", item.Kind,
			"error", err)
	default:
		metrics.ItemsProcessed.WithLabelValues(item.Kind, "transient_failure").Inc()
		log.WarnContext(ctx, "item will be redelivered",
			"item_id", item.ID,
			"kind", item.Kind,
			"delivery_count", item.DeliveryCount,
			"error", err)
		return
	}

	if err := p.queue.Ack(ctx, delivery); err != nil {
		log.ErrorContext(ctx, "ack failed, item may be redelivered",
			"item_id", item.ID,
			"error", err)
	}
}

// Process runs one work item to a tracked outcome. It is also the entry
// point for direct-invoke delivery targets, which bypass the queue. The
// campaign advances only on a definitive outcome: a timed-out or
// otherwise transient operation failure leaves the record exactly as it
// was, so redelivery starts from a clean slate.
func (p *Pool) Process(ctx context.Context, item *models.WorkItem) error {
	var task models.TaskPayload
	if err := json.Unmarshal(item.Payload, &task); err != nil {
		return operation.Permanent(fmt.Errorf("failed to decode task payload: %w", err))
	}
	if task.CampaignID == "" || task.RecordKey == "" {
		return operation.Permanent(errors.New("task payload missing campaign_id or record_key"))
	}

	op, err := p.registry.Lookup(item.Kind)
	if err != nil {
		if markErr := p.tracker.MarkFailed(ctx, task.CampaignID, err.Error()); markErr != nil {
			return markErr
		}
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, p.cfg.OperationTimeout)
	start := time.Now()
	result, err := op.Invoke(opCtx, task.Input)
	cancel()
	metrics.OperationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if operation.IsPermanent(err) {
			if markErr := p.tracker.MarkFailed(ctx, task.CampaignID, err.Error()); markErr != nil {
				return markErr
			}
		}
		return fmt.Errorf("operation %s failed for campaign %s: %w", item.Kind, task.CampaignID, err)
	}

	if err := p.tracker.MarkProcessing(ctx, task.CampaignID); err != nil {
		return fmt.Errorf("failed to mark campaign %s processing: %w", task.CampaignID, err)
	}

	if err := p.tracker.ApplyResult(ctx, task.CampaignID, task.RecordKey, result.Fields); err != nil {
		return fmt.Errorf("failed to record result for campaign %s: %w", task.CampaignID, err)
	}

	return nil
}
