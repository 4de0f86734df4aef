package status

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
)

// MemoryRepository is the in-process fallback store, used in tests and
// when no Postgres connection is configured. It applies the same
// transition guard as the Postgres implementation.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*models.CampaignRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*models.CampaignRecord)}
}

func (r *MemoryRepository) Close() {}

func (r *MemoryRepository) Create(_ context.Context, record *models.CampaignRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[record.CampaignID]; ok && !existing.Expired(time.Now()) {
		return ErrAlreadyExists
	}

	r.records[record.CampaignID] = cloneRecord(record)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, campaignID string) (*models.CampaignRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[campaignID]
	if !ok || record.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return cloneRecord(record), nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, campaignID string, to models.CampaignStatus, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[campaignID]
	if !ok || record.Expired(time.Now()) {
		return ErrNotFound
	}

	if !record.Status.CanTransitionTo(to) {
		return ErrStaleTransition
	}

	record.Status = to
	record.UpdatedAt = time.Now().UTC()
	record.ErrorMessage = errorMessage
	return nil
}

func (r *MemoryRepository) ApplyResult(_ context.Context, campaignID, recordKey string, fields json.RawMessage) (*models.CampaignRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[campaignID]
	if !ok || record.Expired(time.Now()) {
		return nil, ErrNotFound
	}

	if record.Results == nil {
		record.Results = make(map[string]json.RawMessage)
	}
	record.Results[recordKey] = append(json.RawMessage(nil), fields...)
	record.UpdatedAt = time.Now().UTC()

	return cloneRecord(record), nil
}

func (r *MemoryRepository) List(_ context.Context, filter models.CampaignStatus, since time.Time, limit int) ([]*models.CampaignRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var records []*models.CampaignRecord
	for _, record := range r.records {
		if record.Expired(now) {
			continue
		}
		if filter != "" && record.Status != filter {
			continue
		}
		if !since.IsZero() && !record.CreatedAt.Before(since) {
			continue
		}
		records = append(records, cloneRecord(record))
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (r *MemoryRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, record := range r.records {
		if record.Expired(now) {
			delete(r.records, id)
			removed++
		}
	}
	return removed, nil
}

func cloneRecord(record *models.CampaignRecord) *models.CampaignRecord {
	clone := *record
	clone.RequiredKeys = append([]string(nil), record.RequiredKeys...)
	if record.Results != nil {
		clone.Results = make(map[string]json.RawMessage, len(record.Results))
		for k, v := range record.Results {
			clone.Results[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &clone
}
