package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/logging"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/queue"
)

func testEvent(kind models.EventKind, payload string) models.ChangeEvent {
	return models.ChangeEvent{
		SourceID:   "campaign-records",
		Kind:       kind,
		EntityKey:  "campaign-123",
		Payload:    json.RawMessage(payload),
		Position:   42,
		ObservedAt: time.Now().UTC(),
	}
}

func TestPatternMatch(t *testing.T) {
	event := testEvent(models.EventInsert, `{"record_type":"comment","region":"eu-west-1"}`)

	t.Run("empty pattern matches everything", func(t *testing.T) {
		assert.True(t, Pattern{}.Match(event))
	})

	t.Run("source clause", func(t *testing.T) {
		assert.True(t, Pattern{Source: "campaign-records"}.Match(event))
		assert.False(t, Pattern{Source: "other-source"}.Match(event))
	})

	t.Run("kinds clause", func(t *testing.T) {
		assert.True(t, Pattern{Kinds: []string{"insert", "update"}}.Match(event))
		assert.False(t, Pattern{Kinds: []string{"remove"}}.Match(event))
	})

	t.Run("field predicates", func(t *testing.T) {
		assert.True(t, Pattern{Fields: map[string]string{"record_type": "comment"}}.Match(event))
		assert.False(t, Pattern{Fields: map[string]string{"record_type": "article"}}.Match(event))
		assert.False(t, Pattern{Fields: map[string]string{"missing": "x"}}.Match(event))
	})

	t.Run("all clauses must match", func(t *testing.T) {
		p := Pattern{
			Source: "campaign-records",
			Kinds:  []string{"insert"},
			Fields: map[string]string{"region": "eu-west-1"},
		}
		assert.True(t, p.Match(event))

		p.Fields["region"] = "us-east-1"
		assert.False(t, p.Match(event))
	})

	t.Run("unparseable payload fails field predicates", func(t *testing.T) {
		bad := testEvent(models.EventInsert, `not json`)
		assert.False(t, Pattern{Fields: map[string]string{"a": "b"}}.Match(bad))
		assert.True(t, Pattern{Kinds: []string{"insert"}}.Match(bad))
	})
}

func TestLoadSpecs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subscriptions.yaml")

	content := `subscriptions:
  - name: sentiment
    source: campaign-records
    kinds: [insert]
    fields:
      record_type: comment
    target:
      type: queue
      kind: sentiment
  - name: enrichment
    kinds: [insert]
    target:
      type: direct
      kind: enrichment
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	specs, err := LoadSpecs(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, "sentiment", specs[0].Name)
	assert.Equal(t, "campaign-records", specs[0].Pattern.Source)
	assert.Equal(t, []string{"insert"}, specs[0].Pattern.Kinds)
	assert.Equal(t, "comment", specs[0].Pattern.Fields["record_type"])
	assert.Equal(t, "queue", specs[0].Target.Type)
	assert.Equal(t, "sentiment", specs[0].Target.Kind)

	assert.Equal(t, "direct", specs[1].Target.Type)

	t.Run("rejects unknown target type", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("subscriptions:\n  - name: x\n    target:\n      type: webhook\n      kind: x\n"), 0o600))
		_, err := LoadSpecs(bad)
		assert.Error(t, err)
	})

	t.Run("rejects missing target kind", func(t *testing.T) {
		bad := filepath.Join(dir, "nokind.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("subscriptions:\n  - name: x\n    target:\n      type: queue\n"), 0o600))
		_, err := LoadSpecs(bad)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSpecs(filepath.Join(dir, "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestRouteFanOut(t *testing.T) {
	log := logging.New(slog.LevelError, "text")

	sentimentQ := queue.NewMemory(queue.DefaultPolicy())
	defer sentimentQ.Close()
	enrichQ := queue.NewMemory(queue.DefaultPolicy())
	defer enrichQ.Close()

	r := New([]Subscription{
		{
			Name:    "sentiment",
			Pattern: Pattern{Kinds: []string{"insert"}, Fields: map[string]string{"record_type": "comment"}},
			Target:  NewQueueTarget(sentimentQ, "sentiment"),
		},
		{
			Name:    "enrichment",
			Pattern: Pattern{Kinds: []string{"insert"}},
			Target:  NewQueueTarget(enrichQ, "enrichment"),
		},
	}, log)

	t.Run("insert matching both produces one item per target", func(t *testing.T) {
		delivered, err := r.Route(context.Background(), testEvent(models.EventInsert, `{"record_type":"comment"}`))
		require.NoError(t, err)
		assert.Equal(t, 2, delivered)

		deliveries, err := sentimentQ.Receive(context.Background(), 10, 50*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, deliveries, 1)

		var task models.TaskPayload
		require.NoError(t, json.Unmarshal(deliveries[0].Item.Payload, &task))
		assert.Equal(t, "campaign-123", task.CampaignID)
		assert.Equal(t, "sentiment", task.RecordKey)

		deliveries, err = enrichQ.Receive(context.Background(), 10, 50*time.Millisecond)
		require.NoError(t, err)
		assert.Len(t, deliveries, 1)
	})

	t.Run("partial match delivers only to matching targets", func(t *testing.T) {
		delivered, err := r.Route(context.Background(), testEvent(models.EventInsert, `{"record_type":"article"}`))
		require.NoError(t, err)
		assert.Equal(t, 1, delivered)
	})

	t.Run("remove event matches nothing", func(t *testing.T) {
		delivered, err := r.Route(context.Background(), testEvent(models.EventRemove, `{"record_type":"comment"}`))
		require.NoError(t, err)
		assert.Equal(t, 0, delivered)
	})
}

type failingTarget struct{ name string }

func (f *failingTarget) Name() string { return f.name }

func (f *failingTarget) Deliver(context.Context, models.ChangeEvent) error {
	return errors.New("target down")
}

func TestRoutePartialFailureIsolation(t *testing.T) {
	log := logging.New(slog.LevelError, "text")

	q := queue.NewMemory(queue.DefaultPolicy())
	defer q.Close()

	r := New([]Subscription{
		{Name: "broken", Pattern: Pattern{}, Target: &failingTarget{name: "direct:broken"}},
		{Name: "healthy", Pattern: Pattern{}, Target: NewQueueTarget(q, "enrichment")},
	}, log)

	delivered, err := r.Route(context.Background(), testEvent(models.EventInsert, `{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, 1, delivered)

	deliveries, err := q.Receive(context.Background(), 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, deliveries, 1)
}

func TestDirectTargetInvokesHandler(t *testing.T) {
	var got *models.WorkItem
	target := NewDirectTarget("enrichment", func(_ context.Context, item *models.WorkItem) error {
		got = item
		return nil
	})

	err := target.Deliver(context.Background(), testEvent(models.EventInsert, `{"record_type":"comment"}`))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "enrichment", got.Kind)
	assert.Equal(t, 1, got.DeliveryCount)

	var task models.TaskPayload
	require.NoError(t, json.Unmarshal(got.Payload, &task))
	assert.Equal(t, "campaign-123", task.CampaignID)
	assert.Equal(t, "enrichment", task.RecordKey)
}

func TestBuildResolvesTargets(t *testing.T) {
	log := logging.New(slog.LevelError, "text")
	specs := []SubscriptionSpec{
		{Name: "a", Target: TargetSpec{Type: "direct", Kind: "enrichment"}},
	}

	r, err := Build(specs, func(spec TargetSpec) (DeliveryTarget, error) {
		return NewDirectTarget(spec.Kind, func(context.Context, *models.WorkItem) error { return nil }), nil
	}, log)
	require.NoError(t, err)
	require.Len(t, r.subs, 1)

	_, err = Build(specs, func(TargetSpec) (DeliveryTarget, error) {
		return nil, errors.New("no such target")
	}, log)
	assert.Error(t, err)
}
