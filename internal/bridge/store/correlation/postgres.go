package correlation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bugbridge/internal/bridge/models"
	"bugbridge/pkg/platform/sentinel"
)

// PostgresStore persists correlations in a single table. INSERT ... ON
// CONFLICT DO NOTHING provides the atomic create-if-absent; the unique
// constraint on source_id is the real arbiter of the race.
//
// Schema:
//
//	CREATE TABLE IF NOT EXISTS correlations (
//	    source_id  TEXT PRIMARY KEY,
//	    target_id  TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, sourceID string) (models.CorrelationRecord, error) {
	var rec models.CorrelationRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT source_id, target_id, created_at FROM correlations WHERE source_id = $1`,
		sourceID,
	).Scan(&rec.SourceID, &rec.TargetID, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CorrelationRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.CorrelationRecord{}, fmt.Errorf("select correlation: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, sourceID, targetID string) (models.CorrelationRecord, bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO correlations (source_id, target_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (source_id) DO NOTHING`,
		sourceID, targetID, now,
	)
	if err != nil {
		return models.CorrelationRecord{}, false, fmt.Errorf("insert correlation: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return models.CorrelationRecord{}, false, fmt.Errorf("insert correlation rows: %w", err)
	}
	if inserted == 1 {
		return models.CorrelationRecord{SourceID: sourceID, TargetID: targetID, CreatedAt: now}, true, nil
	}

	existing, err := s.Get(ctx, sourceID)
	if err != nil {
		return models.CorrelationRecord{}, false, err
	}
	return existing, false, nil
}

// Health verifies database connectivity for readiness reporting.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
