package models

import (
	"encoding/json"
	"time"
)

// WorkItem is a unit of work owned by the durable queue from enqueue until
// it is acknowledged or dead-lettered.
type WorkItem struct {
	ID         string          `json:"item_id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	// DeliveryCount increments on every delivery, including the first.
	// The queue moves the item to the dead-letter path once the count
	// exceeds the configured maximum.
	DeliveryCount int `json:"delivery_count"`
}

// TaskPayload is the decoded body of a campaign work item. Operations
// receive the raw payload; workers only need the routing fields.
type TaskPayload struct {
	CampaignID string          `json:"campaign_id"`
	RecordKey  string          `json:"record_key"`
	Input      json.RawMessage `json:"input,omitempty"`
}
