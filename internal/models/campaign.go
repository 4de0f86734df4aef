package models

import (
	"encoding/json"
	"time"
)

// CampaignStatus is the lifecycle state of a campaign record.
type CampaignStatus string

const (
	StatusPending    CampaignStatus = "pending"
	StatusProcessing CampaignStatus = "processing"
	StatusCompleted  CampaignStatus = "completed"
	StatusFailed     CampaignStatus = "failed"
)

// statusRank orders statuses for the monotonic transition guard. Completed
// and failed share the terminal rank so neither overwrites the other.
var statusRank = map[CampaignStatus]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// Rank returns the transition rank of s, or -1 for unknown statuses.
func (s CampaignStatus) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// CanTransitionTo reports whether moving from s to next advances the state
// machine. Same-rank or backward transitions are stale and must be no-ops.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	return next.Rank() > s.Rank()
}

// Progress returns the completion percentage the dashboard shows for a
// status.
func (s CampaignStatus) Progress() int {
	switch s {
	case StatusProcessing:
		return 20
	case StatusCompleted:
		return 100
	default:
		return 0
	}
}

// CampaignRecord tracks the lifecycle of one campaign. Results are keyed by
// record key so applying the same operation result twice stores the same
// state. Records are never deleted explicitly; they expire after ExpiresAt.
type CampaignRecord struct {
	CampaignID   string                     `json:"campaign_id"`
	Status       CampaignStatus             `json:"status"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
	ExpiresAt    time.Time                  `json:"expires_at"`
	RequiredKeys []string                   `json:"required_keys,omitempty"`
	Results      map[string]json.RawMessage `json:"results,omitempty"`
	ErrorMessage string                     `json:"error_message,omitempty"`
}

// Complete reports whether every required record key has a stored result.
// A record with no required keys completes on the first applied result.
func (r *CampaignRecord) Complete() bool {
	if len(r.RequiredKeys) == 0 {
		return len(r.Results) > 0
	}
	for _, key := range r.RequiredKeys {
		if _, ok := r.Results[key]; !ok {
			return false
		}
	}
	return true
}

// Expired reports whether the record is past its time-to-live at now.
func (r *CampaignRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
