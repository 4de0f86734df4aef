package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/capture"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/logging"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
)

func newTestTracker(t *testing.T) (*Tracker, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	return NewTracker(repo, time.Hour, newTestLogger()), repo
}

func newTestLogger() *logging.Logger {
	return logging.New(slog.LevelError, "text")
}

func TestTrackerCreateIsIdempotent(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	record, err := tracker.Create(ctx, "c1", []string{"sentiment"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, record.Status)
	assert.Equal(t, []string{"sentiment"}, record.RequiredKeys)
	assert.True(t, record.ExpiresAt.After(record.CreatedAt))

	require.NoError(t, tracker.MarkProcessing(ctx, "c1"))

	// A redelivered change event must not reset an in-flight record.
	record, err = tracker.Create(ctx, "c1", []string{"sentiment"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, record.Status)
}

func TestTrackerMonotonicTransitions(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.Create(ctx, "c1", nil)
	require.NoError(t, err)

	require.NoError(t, tracker.MarkProcessing(ctx, "c1"))
	require.NoError(t, tracker.ApplyResult(ctx, "c1", "sentiment", json.RawMessage(`{"score":0.9}`)))

	record, err := tracker.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, record.Status)

	// A delayed duplicate processing update is a silent no-op.
	require.NoError(t, tracker.MarkProcessing(ctx, "c1"))
	record, err = tracker.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, record.Status)

	// Terminal states never overwrite each other.
	require.NoError(t, tracker.MarkFailed(ctx, "c1", "late failure"))
	record, err = tracker.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, record.Status)
	assert.Empty(t, record.ErrorMessage)
}

func TestTrackerCompletionWaitsForRequiredKeys(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.Create(ctx, "c1", []string{"sentiment", "enrichment"})
	require.NoError(t, err)
	require.NoError(t, tracker.MarkProcessing(ctx, "c1"))

	require.NoError(t, tracker.ApplyResult(ctx, "c1", "sentiment", json.RawMessage(`{"score":0.9}`)))
	record, err := tracker.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, record.Status)

	require.NoError(t, tracker.ApplyResult(ctx, "c1", "enrichment", json.RawMessage(`{"topics":["launch"]}`)))
	record, err = tracker.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, record.Status)
	assert.Len(t, record.Results, 2)
}

func TestTrackerApplyResultIsIdempotent(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.Create(ctx, "c1", []string{"sentiment"})
	require.NoError(t, err)
	require.NoError(t, tracker.MarkProcessing(ctx, "c1"))

	payload := json.RawMessage(`{"score":0.7}`)
	require.NoError(t, tracker.ApplyResult(ctx, "c1", "sentiment", payload))
	require.NoError(t, tracker.ApplyResult(ctx, "c1", "sentiment", payload))

	record, err := tracker.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, record.Status)
	assert.JSONEq(t, `{"score":0.7}`, string(record.Results["sentiment"]))
}

func TestTrackerLastResultWins(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.Create(ctx, "c1", []string{"sentiment"})
	require.NoError(t, err)

	require.NoError(t, tracker.ApplyResult(ctx, "c1", "sentiment", json.RawMessage(`{"score":0.1}`)))
	require.NoError(t, tracker.ApplyResult(ctx, "c1", "sentiment", json.RawMessage(`{"score":0.8}`)))

	record, err := tracker.Get(ctx, "c1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":0.8}`, string(record.Results["sentiment"]))
}

func TestTrackerMarkProcessingCreatesMissingRecord(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.MarkProcessing(ctx, "unseen"))

	record, err := tracker.Get(ctx, "unseen")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, record.Status)
}

func TestTrackerFailureRecordsReason(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.Create(ctx, "c1", nil)
	require.NoError(t, err)
	require.NoError(t, tracker.MarkProcessing(ctx, "c1"))
	require.NoError(t, tracker.MarkFailed(ctx, "c1", "operation rejected input"))

	record, err := tracker.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, record.Status)
	assert.Equal(t, "operation rejected input", record.ErrorMessage)
	assert.Equal(t, 0, record.Status.Progress())
}

func TestTrackerJournalsTransitions(t *testing.T) {
	journal := capture.NewMemoryFeed()
	tracker := NewTracker(NewMemoryRepository(), time.Hour, newTestLogger()).WithJournal(journal)
	ctx := context.Background()

	// Creation is journaled by the submission surface, not the tracker.
	_, err := tracker.Create(ctx, "c1", nil)
	require.NoError(t, err)
	records, err := journal.Fetch(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, tracker.MarkProcessing(ctx, "c1"))
	require.NoError(t, tracker.ApplyResult(ctx, "c1", "sentiment", json.RawMessage(`{"score":0.9}`)))

	// A downstream adapter tailing the journal sees both transitions as
	// update events on the campaign's entity key.
	records, err = journal.Fetch(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, string(models.EventUpdate), r.Kind)
		assert.Equal(t, "c1", r.EntityKey)
	}
	assert.JSONEq(t, `{"status":"processing"}`, string(records[0].Fields))
	assert.JSONEq(t, `{"status":"completed"}`, string(records[1].Fields))

	// Swallowed stale transitions leave no journal row.
	require.NoError(t, tracker.MarkProcessing(ctx, "c1"))
	records, err = journal.Fetch(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestMemoryRepositoryExpiry(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, &models.CampaignRecord{
		CampaignID: "old",
		Status:     models.StatusCompleted,
		CreatedAt:  now.Add(-2 * time.Hour),
		ExpiresAt:  now.Add(-time.Hour),
	}))
	require.NoError(t, repo.Create(ctx, &models.CampaignRecord{
		CampaignID: "fresh",
		Status:     models.StatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}))

	_, err := repo.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)

	records, err := repo.List(ctx, "", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fresh", records[0].CampaignID)

	removed, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestMemoryRepositoryListOrderAndLimit(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, &models.CampaignRecord{
			CampaignID: id,
			Status:     models.StatusPending,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			ExpiresAt:  base.Add(time.Hour),
		}))
	}

	records, err := repo.List(ctx, "", time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].CampaignID)
	assert.Equal(t, "b", records[1].CampaignID)

	records, err = repo.List(ctx, "", records[1].CreatedAt, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].CampaignID)

	require.NoError(t, repo.UpdateStatus(ctx, "a", models.StatusProcessing, ""))
	records, err = repo.List(ctx, models.StatusProcessing, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].CampaignID)
}
