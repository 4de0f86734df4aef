// Package capture observes mutations on a source record store and emits
// normalized change events, restartable from a stream position checkpoint.
package capture

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Record is one raw tuple from a change feed. Position increases
// monotonically within a source; records for the same entity key appear in
// mutation order.
type Record struct {
	Position   int64
	Kind       string
	EntityKey  string
	Fields     json.RawMessage
	ObservedAt time.Time
}

// ChangeFeed is the boundary to the source store's change journal. The
// pipeline never mutates the source through this interface.
type ChangeFeed interface {
	// Fetch returns up to limit records with positions strictly greater
	// than after, in position order. An empty slice means the feed is
	// caught up.
	Fetch(ctx context.Context, after int64, limit int) ([]Record, error)
}

// Journal is the write side of a change feed, used by the submission
// surface to land new source mutations.
type Journal interface {
	// Append writes one record and returns its assigned position.
	Append(ctx context.Context, kind, entityKey string, fields []byte) (int64, error)
}

// MemoryFeed is an in-process journal and feed used in tests and when no
// Postgres connection is configured.
type MemoryFeed struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryFeed creates an empty in-memory feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{}
}

func (f *MemoryFeed) Append(_ context.Context, kind, entityKey string, fields []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	position := int64(len(f.records) + 1)
	f.records = append(f.records, Record{
		Position:   position,
		Kind:       kind,
		EntityKey:  entityKey,
		Fields:     append([]byte(nil), fields...),
		ObservedAt: time.Now().UTC(),
	})
	return position, nil
}

func (f *MemoryFeed) Fetch(_ context.Context, after int64, limit int) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Record
	for _, r := range f.records {
		if r.Position <= after {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
