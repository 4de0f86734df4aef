package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/capture"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/logging"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/metrics"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
)

// Tracker applies lifecycle updates on top of the repository's guards.
// Stale transitions are swallowed here: a late or duplicate update is an
// expected consequence of at-least-once delivery, not an error.
type Tracker struct {
	repo    Repository
	journal capture.Journal
	ttl     time.Duration
	log     *logging.Logger
}

// NewTracker creates a tracker. ttl sets how long records live after
// creation.
func NewTracker(repo Repository, ttl time.Duration, log *logging.Logger) *Tracker {
	return &Tracker{repo: repo, ttl: ttl, log: log}
}

// WithJournal makes the tracker append every transition it applies to the
// change journal as an update event, so the tracker's store can itself be
// the capture source of a downstream pipeline. Creation is not journaled
// here; the submission surface writes the insert event.
func (t *Tracker) WithJournal(journal capture.Journal) *Tracker {
	t.journal = journal
	return t
}

// Create registers a pending record for a new campaign. Creating the
// same campaign twice is a no-op so redelivered change events cannot
// reset an in-flight record.
func (t *Tracker) Create(ctx context.Context, campaignID string, requiredKeys []string) (*models.CampaignRecord, error) {
	now := time.Now().UTC()
	record := &models.CampaignRecord{
		CampaignID:   campaignID,
		Status:       models.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(t.ttl),
		RequiredKeys: requiredKeys,
	}

	err := t.repo.Create(ctx, record)
	if errors.Is(err, ErrAlreadyExists) {
		return t.repo.Get(ctx, campaignID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign %s: %w", campaignID, err)
	}

	metrics.StatusTransitions.WithLabelValues(string(models.StatusPending)).Inc()
	return record, nil
}

// MarkProcessing moves the campaign to processing. Records missing from
// the store are created first, so a worker can run ahead of the capture
// adapter's create.
func (t *Tracker) MarkProcessing(ctx context.Context, campaignID string) error {
	err := t.repo.UpdateStatus(ctx, campaignID, models.StatusProcessing, "")
	if errors.Is(err, ErrNotFound) {
		if _, err := t.Create(ctx, campaignID, nil); err != nil {
			return err
		}
		err = t.repo.UpdateStatus(ctx, campaignID, models.StatusProcessing, "")
	}
	return t.finishTransition(ctx, campaignID, models.StatusProcessing, err)
}

// ApplyResult stores an operation result and completes the campaign once
// every required record key is present. Applying the same result twice
// converges on the same stored state.
func (t *Tracker) ApplyResult(ctx context.Context, campaignID, recordKey string, fields json.RawMessage) error {
	record, err := t.repo.ApplyResult(ctx, campaignID, recordKey, fields)
	if err != nil {
		return fmt.Errorf("failed to apply result for campaign %s: %w", campaignID, err)
	}

	if !record.Complete() {
		return nil
	}

	err = t.repo.UpdateStatus(ctx, campaignID, models.StatusCompleted, "")
	return t.finishTransition(ctx, campaignID, models.StatusCompleted, err)
}

// MarkFailed records a terminal failure with its reason.
func (t *Tracker) MarkFailed(ctx context.Context, campaignID, reason string) error {
	err := t.repo.UpdateStatus(ctx, campaignID, models.StatusFailed, reason)
	return t.finishTransition(ctx, campaignID, models.StatusFailed, err)
}

// Get returns the campaign record.
func (t *Tracker) Get(ctx context.Context, campaignID string) (*models.CampaignRecord, error) {
	return t.repo.Get(ctx, campaignID)
}

// List returns unexpired records, newest first.
func (t *Tracker) List(ctx context.Context, filter models.CampaignStatus, since time.Time, limit int) ([]*models.CampaignRecord, error) {
	return t.repo.List(ctx, filter, since, limit)
}

func (t *Tracker) finishTransition(ctx context.Context, campaignID string, to models.CampaignStatus, err error) error {
	if errors.Is(err, ErrStaleTransition) {
		metrics.StaleTransitions.Inc()
		t.log.DebugContext(ctx, "ignoring stale status transition",
			"campaign_id", campaignID,
			"to", string(to))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark campaign %s %s: %w", campaignID, to, err)
	}

	metrics.StatusTransitions.WithLabelValues(string(to)).Inc()

	if t.journal != nil {
		fields, _ := json.Marshal(map[string]string{"status": string(to)})
		if _, err := t.journal.Append(ctx, string(models.EventUpdate), campaignID, fields); err != nil {
			// The transition itself is already applied; a missed
			// journal row costs downstream observers one event.
			t.log.WarnContext(ctx, "failed to journal status transition",
				"campaign_id", campaignID,
				"to", string(to),
				"error", err)
		}
	}
	return nil
}
