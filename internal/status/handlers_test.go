package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/capture"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
)

func newTestHandler(t *testing.T) (*Handler, *Tracker, *capture.MemoryFeed) {
	t.Helper()
	tracker := NewTracker(NewMemoryRepository(), time.Hour, newTestLogger())
	feed := capture.NewMemoryFeed()
	return NewHandler(tracker, feed, newTestLogger()), tracker, feed
}

func TestSubmitCampaign(t *testing.T) {
	handler, _, feed := newTestHandler(t)

	fields, err := json.Marshal(map[string]string{
		"product": gofakeit.ProductName(),
		"text":    "launch announcement",
	})
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{
		"fields":   json.RawMessage(fields),
		"required": []string{"sentiment", "enrichment"},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()

	handler.Campaigns(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	campaignID, _ := resp["campaign_id"].(string)
	assert.NotEmpty(t, campaignID)
	assert.Equal(t, string(models.StatusPending), resp["status"])
	assert.Equal(t, float64(0), resp["progress"])

	// The submission lands in the change journal for the capture adapter.
	records, err := feed.Fetch(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(models.EventInsert), records[0].Kind)
	assert.Equal(t, campaignID, records[0].EntityKey)
}

func TestSubmitCampaignValidation(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		handler.Campaigns(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns", strings.NewReader(`{"required":["sentiment"]}`))
		rec := httptest.NewRecorder()
		handler.Campaigns(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetCampaign(t *testing.T) {
	handler, tracker, _ := newTestHandler(t)
	ctx := context.Background()

	_, err := tracker.Create(ctx, "c1", []string{"sentiment"})
	require.NoError(t, err)
	require.NoError(t, tracker.MarkProcessing(ctx, "c1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/c1", nil)
	rec := httptest.NewRecorder()
	handler.CampaignByID(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "c1", resp["campaign_id"])
	assert.Equal(t, string(models.StatusProcessing), resp["status"])
	assert.Equal(t, float64(20), resp["progress"])

	t.Run("unknown campaign", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/nope", nil)
		rec := httptest.NewRecorder()
		handler.CampaignByID(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListCampaigns(t *testing.T) {
	handler, tracker, _ := newTestHandler(t)
	ctx := context.Background()

	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := tracker.Create(ctx, id, nil)
		require.NoError(t, err)
	}
	require.NoError(t, tracker.MarkProcessing(ctx, "c2"))

	t.Run("filter by status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns?status=processing", nil)
		rec := httptest.NewRecorder()
		handler.Campaigns(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Campaigns []map[string]any `json:"campaigns"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Campaigns, 1)
		assert.Equal(t, "c2", resp.Campaigns[0]["campaign_id"])
	})

	t.Run("limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns?limit=2", nil)
		rec := httptest.NewRecorder()
		handler.Campaigns(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Campaigns []map[string]any `json:"campaigns"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Campaigns, 2)
	})

	t.Run("since cursor", func(t *testing.T) {
		cursor := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns?since="+cursor, nil)
		rec := httptest.NewRecorder()
		handler.Campaigns(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Campaigns []map[string]any `json:"campaigns"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Campaigns, 3)

		req = httptest.NewRequest(http.MethodGet, "/api/v1/campaigns?since=2020-01-01T00:00:00Z", nil)
		rec = httptest.NewRecorder()
		handler.Campaigns(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Campaigns)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns?status=bogus", nil)
		rec := httptest.NewRecorder()
		handler.Campaigns(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("caps oversized limit", func(t *testing.T) {
		capped, capTracker, _ := newTestHandler(t)
		for i := 0; i < maxListLimit+5; i++ {
			_, err := capTracker.Create(ctx, fmt.Sprintf("bulk-%03d", i), nil)
			require.NoError(t, err)
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns?limit=1000000", nil)
		rec := httptest.NewRecorder()
		capped.Campaigns(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Campaigns []map[string]any `json:"campaigns"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Campaigns, maxListLimit)
	})

	t.Run("rejects malformed since", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns?since=yesterday", nil)
		rec := httptest.NewRecorder()
		handler.Campaigns(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
