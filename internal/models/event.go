// Package models defines the data types shared across the pipeline stages.
package models

import (
	"encoding/json"
	"time"
)

// EventKind classifies a mutation observed on a source record store.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventRemove EventKind = "remove"
)

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventInsert, EventUpdate, EventRemove:
		return true
	}
	return false
}

// ChangeEvent is a normalized mutation event emitted by the capture adapter.
// It is immutable once emitted. Only insert events are actionable downstream;
// other kinds are observed and discarded.
type ChangeEvent struct {
	SourceID   string          `json:"source_id"`
	Kind       EventKind       `json:"event_kind"`
	EntityKey  string          `json:"entity_key"`
	Payload    json.RawMessage `json:"payload"`
	Position   int64           `json:"position"`
	ObservedAt time.Time       `json:"observed_at"`
}
