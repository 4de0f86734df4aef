package pipeline

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
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/operation"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/queue"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/router"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/status"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/worker"
)

type fixedOperation struct {
	kind   string
	fields string
}

func (f *fixedOperation) Kind() string { return f.kind }

func (f *fixedOperation) Invoke(context.Context, json.RawMessage) (operation.Result, error) {
	return operation.Result{Fields: json.RawMessage(f.fields)}, nil
}

// Exercises the full chain: journal append, capture, routing, queueing,
// worker processing and status completion.
func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	log := logging.New(slog.LevelError, "text")

	feed := capture.NewMemoryFeed()
	checkpoints := capture.NewMemoryCheckpoints()

	q := queue.NewMemory(queue.DefaultPolicy())
	defer q.Close()

	tracker := status.NewTracker(status.NewMemoryRepository(), time.Hour, log)

	registry := operation.NewRegistry()
	registry.Register(&fixedOperation{kind: "sentiment", fields: `{"sentiment":"positive","score":0.93}`})
	registry.Register(&fixedOperation{kind: "enrichment", fields: `{"topics":["product","launch"]}`})

	r := router.New([]router.Subscription{
		{
			Name:    "sentiment",
			Pattern: router.Pattern{Kinds: []string{"insert"}},
			Target:  router.NewQueueTarget(q, "sentiment"),
		},
		{
			Name:    "enrichment",
			Pattern: router.Pattern{Kinds: []string{"insert"}},
			Target:  router.NewQueueTarget(q, "enrichment"),
		},
	}, log)

	adapter := capture.NewAdapter(capture.Config{
		SourceID:     "campaign-records",
		PollInterval: 10 * time.Millisecond,
		FetchLimit:   10,
	}, feed, checkpoints, EventHandler(r, tracker, log), log)

	pool := worker.NewPool(q, registry, tracker, worker.Config{
		Concurrency: 2,
		ReceiveWait: 50 * time.Millisecond,
	}, log)

	coord := NewCoordinator(Config{Adapter: adapter, Pool: pool}, log)
	require.NoError(t, coord.Start(ctx))
	defer func() { require.NoError(t, coord.Stop()) }()

	// Submission path: record registered with its required keys, then the
	// change lands in the journal.
	_, err := tracker.Create(ctx, "c1", []string{"sentiment", "enrichment"})
	require.NoError(t, err)
	_, err = feed.Append(ctx, "insert", "c1", []byte(`{"record_type":"comment","text":"great launch"}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		record, err := tracker.Get(ctx, "c1")
		require.NoError(t, err)
		return record.Status == models.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	record, err := tracker.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, record.Results, 2)
	assert.JSONEq(t, `{"sentiment":"positive","score":0.93}`, string(record.Results["sentiment"]))
	assert.JSONEq(t, `{"topics":["product","launch"]}`, string(record.Results["enrichment"]))

	t.Run("remove events do not produce work", func(t *testing.T) {
		_, err := feed.Append(ctx, "remove", "c1", []byte(`{}`))
		require.NoError(t, err)

		// Give the adapter time to observe and skip the record.
		require.Eventually(t, func() bool {
			pos, err := checkpoints.Load(ctx, "campaign-records")
			require.NoError(t, err)
			return pos >= 2
		}, 2*time.Second, 10*time.Millisecond)

		record, err := tracker.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, record.Status)
	})
}

func TestCoordinatorLifecycle(t *testing.T) {
	log := logging.New(slog.LevelError, "text")
	coord := NewCoordinator(Config{}, log)

	require.NoError(t, coord.Start(context.Background()))
	assert.Error(t, coord.Start(context.Background()))
	require.NoError(t, coord.Stop())
	assert.Error(t, coord.Stop())
}
