package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
)

// PostgresRepository stores campaign records in the campaign_status
// table. Results live in a JSONB column keyed by record key, so applying
// the same result twice leaves the row unchanged.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the underlying connection pool so other stores can share
// it.
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) Create(ctx context.Context, record *models.CampaignRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	results, err := json.Marshal(record.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	query := `
		INSERT INTO campaign_status
		(campaign_id, status, created_at, updated_at, expires_at, required_keys, results, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.pool.Exec(ctx, query,
		record.CampaignID,
		record.Status,
		record.CreatedAt,
		record.UpdatedAt,
		record.ExpiresAt,
		record.RequiredKeys,
		results,
		record.ErrorMessage,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create campaign record: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, campaignID string) (*models.CampaignRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT campaign_id, status, created_at, updated_at, expires_at, required_keys, results, error_message
		FROM campaign_status
		WHERE campaign_id = $1 AND expires_at > $2
	`

	record, err := scanRecord(r.pool.QueryRow(ctx, query, campaignID, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get campaign record: %w", err)
	}

	return record, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, campaignID string, to models.CampaignStatus, errorMessage string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// The rank guard runs inside the UPDATE so concurrent writers race on
	// the row, not on a read-modify-write in Go.
	query := `
		UPDATE campaign_status
		SET status = $2, updated_at = $3, error_message = $4
		WHERE campaign_id = $1 AND status = ANY($5)
	`

	tag, err := r.pool.Exec(ctx, query,
		campaignID,
		to,
		time.Now().UTC(),
		errorMessage,
		lowerRanked(to),
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, campaignID); err != nil {
			return err
		}
		return ErrStaleTransition
	}

	return nil
}

func (r *PostgresRepository) ApplyResult(ctx context.Context, campaignID, recordKey string, fields json.RawMessage) (*models.CampaignRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		UPDATE campaign_status
		SET results = COALESCE(results, '{}'::jsonb) || jsonb_build_object($2::text, $3::jsonb),
		    updated_at = $4
		WHERE campaign_id = $1 AND expires_at > $4
		RETURNING campaign_id, status, created_at, updated_at, expires_at, required_keys, results, error_message
	`

	record, err := scanRecord(r.pool.QueryRow(ctx, query, campaignID, recordKey, fields, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to apply operation result: %w", err)
	}

	return record, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter models.CampaignStatus, since time.Time, limit int) ([]*models.CampaignRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT campaign_id, status, created_at, updated_at, expires_at, required_keys, results, error_message
		FROM campaign_status
		WHERE ($1 = '' OR status = $1) AND expires_at > $2 AND ($3 OR created_at < $4)
		ORDER BY created_at DESC
		LIMIT $5
	`

	rows, err := r.pool.Query(ctx, query, string(filter), time.Now().UTC(), since.IsZero(), since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign records: %w", err)
	}
	defer rows.Close()

	var records []*models.CampaignRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read campaign records: %w", err)
	}

	return records, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM campaign_status WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired records: %w", err)
	}

	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.CampaignRecord, error) {
	var (
		record  models.CampaignRecord
		results []byte
	)

	err := row.Scan(
		&record.CampaignID,
		&record.Status,
		&record.CreatedAt,
		&record.UpdatedAt,
		&record.ExpiresAt,
		&record.RequiredKeys,
		&results,
		&record.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	if len(results) > 0 {
		if err := json.Unmarshal(results, &record.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results: %w", err)
		}
	}

	return &record, nil
}

// lowerRanked returns the statuses a record may hold for a transition to
// target to apply.
func lowerRanked(target models.CampaignStatus) []string {
	var from []string
	for _, s := range []models.CampaignStatus{
		models.StatusPending,
		models.StatusProcessing,
		models.StatusCompleted,
		models.StatusFailed,
	} {
		if s.CanTransitionTo(target) {
			from = append(from, string(s))
		}
	}
	return from
}
