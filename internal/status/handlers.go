package status

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/capture"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/httputil"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/logging"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler serves the campaign HTTP API: submission, per-campaign status
// and listing.
type Handler struct {
	tracker *Tracker
	journal capture.Journal
	log     *logging.Logger
}

func NewHandler(tracker *Tracker, journal capture.Journal, log *logging.Logger) *Handler {
	return &Handler{tracker: tracker, journal: journal, log: log}
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type submitRequest struct {
	Fields   json.RawMessage `json:"fields"`
	Required []string        `json:"required"`
}

// Campaigns handles POST /campaigns (submit) and GET /campaigns (list).
func (h *Handler) Campaigns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.submit(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// submit registers a pending record and lands the submission in the
// change journal; the capture adapter picks it up from there. The 202
// reflects that processing is asynchronous.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Fields) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "fields is required")
		return
	}

	campaignID := uuid.NewString()

	record, err := h.tracker.Create(r.Context(), campaignID, req.Required)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to create campaign record", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create campaign")
		return
	}

	if _, err := h.journal.Append(r.Context(), string(models.EventInsert), campaignID, req.Fields); err != nil {
		h.log.ErrorContext(r.Context(), "failed to journal campaign submission",
			"campaign_id", campaignID,
			"error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to accept campaign")
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, recordView(record))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := models.CampaignStatus(r.URL.Query().Get("status"))
	if filter != "" && filter.Rank() < 0 {
		httputil.WriteError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(parsed, maxListLimit)
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = parsed
	}

	records, err := h.tracker.List(r.Context(), filter, since, limit)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to list campaigns", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list campaigns")
		return
	}

	views := make([]map[string]any, 0, len(records))
	for _, record := range records {
		views = append(views, recordView(record))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"campaigns": views})
}

// CampaignByID handles GET /campaigns/{id}.
func (h *Handler) CampaignByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	campaignID := strings.TrimPrefix(r.URL.Path, "/api/v1/campaigns/")
	if campaignID == "" || strings.Contains(campaignID, "/") {
		httputil.WriteError(w, http.StatusBadRequest, "invalid campaign ID")
		return
	}

	record, err := h.tracker.Get(r.Context(), campaignID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "campaign not found")
			return
		}
		h.log.ErrorContext(r.Context(), "failed to get campaign", "campaign_id", campaignID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to get campaign")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, recordView(record))
}

func recordView(record *models.CampaignRecord) map[string]any {
	view := map[string]any{
		"campaign_id": record.CampaignID,
		"status":      record.Status,
		"progress":    record.Status.Progress(),
		"created_at":  record.CreatedAt,
		"updated_at":  record.UpdatedAt,
		"expires_at":  record.ExpiresAt,
	}
	if len(record.RequiredKeys) > 0 {
		view["required_keys"] = record.RequiredKeys
	}
	if len(record.Results) > 0 {
		view["results"] = record.Results
	}
	if record.ErrorMessage != "" {
		view["error_message"] = record.ErrorMessage
	}
	return view
}
