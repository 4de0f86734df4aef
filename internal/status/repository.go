// Package status tracks campaign lifecycle records and serves the query
// surface over them.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
)

var (
	ErrNotFound        = errors.New("campaign record not found")
	ErrAlreadyExists   = errors.New("campaign record already exists")
	ErrStaleTransition = errors.New("stale status transition")
)

// Repository persists campaign records. Implementations enforce the
// monotonic transition guard so concurrent writers cannot move a record
// backwards.
type Repository interface {
	// Create inserts a new record. ErrAlreadyExists if the campaign ID is
	// taken.
	Create(ctx context.Context, record *models.CampaignRecord) error

	// Get returns the record, or ErrNotFound if absent or expired.
	Get(ctx context.Context, campaignID string) (*models.CampaignRecord, error)

	// UpdateStatus moves the record to the target status. The update only
	// applies when the current status has a strictly lower rank;
	// otherwise ErrStaleTransition is returned and the record is
	// untouched. errorMessage is stored only for failed transitions.
	UpdateStatus(ctx context.Context, campaignID string, to models.CampaignStatus, errorMessage string) error

	// ApplyResult stores an operation result under recordKey,
	// overwriting any previous result for the same key, and returns the
	// updated record.
	ApplyResult(ctx context.Context, campaignID, recordKey string, fields json.RawMessage) (*models.CampaignRecord, error)

	// List returns unexpired records, newest first. An empty status
	// matches all statuses. A non-zero since restricts the listing to
	// records created strictly before it, which pages through results
	// using the previous page's oldest created_at as the cursor.
	List(ctx context.Context, filter models.CampaignStatus, since time.Time, limit int) ([]*models.CampaignRecord, error)

	// DeleteExpired removes records past their expiry and reports how
	// many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	Close()
}
