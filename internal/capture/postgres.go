package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresFeed reads and appends to the append-only campaign_events
// journal. Submissions land here as insert events and the status tracker
// journals every transition it applies as an update event, so a tracker
// store can itself be the capture source of a downstream pipeline.
type PostgresFeed struct {
	pool *pgxpool.Pool
}

// NewPostgresFeed creates a change feed over an existing connection pool.
func NewPostgresFeed(pool *pgxpool.Pool) *PostgresFeed {
	return &PostgresFeed{pool: pool}
}

// Append writes one journal row and returns its assigned position.
func (f *PostgresFeed) Append(ctx context.Context, kind, entityKey string, fields []byte) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO campaign_events (event_kind, entity_key, payload, observed_at)
		VALUES ($1, $2, $3, $4)
		RETURNING position
	`

	var position int64
	err := f.pool.QueryRow(ctx, query, kind, entityKey, fields, time.Now().UTC()).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("failed to append change record: %w", err)
	}

	return position, nil
}

// Fetch returns journal rows after the given position, oldest first.
func (f *PostgresFeed) Fetch(ctx context.Context, after int64, limit int) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT position, event_kind, entity_key, payload, observed_at
		FROM campaign_events
		WHERE position > $1
		ORDER BY position
		LIMIT $2
	`

	rows, err := f.pool.Query(ctx, query, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch change records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Position, &r.Kind, &r.EntityKey, &r.Fields, &r.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan change record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read change records: %w", err)
	}

	return records, nil
}
