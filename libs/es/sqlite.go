package es

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/storefront/libs/db"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLiteStore keeps streams in an embedded SQLite database. Timestamps are
// stored as unix milliseconds.
type SQLiteStore struct {
	sqlDB *sql.DB
}

func NewSQLiteStore(sqlDB *sql.DB) *SQLiteStore {
	return &SQLiteStore{sqlDB: sqlDB}
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.sqlDB.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply event store schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, aggregateID string, expectedVersion int, events []Envelope) (int, error) {
	if err := checkBatch(aggregateID, expectedVersion, events); err != nil {
		return 0, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM es_events WHERE aggregate_id = ?
	`, aggregateID).Scan(&current); err != nil {
		return 0, err
	}
	if current != expectedVersion {
		return 0, &VersionConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: current}
	}

	for _, e := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO es_events (event_id, aggregate_id, aggregate_type, version, event_type, event_timestamp, payload, trace_id, span_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.EventID, e.AggregateID, e.AggregateType, e.Version, e.EventType, e.Timestamp.UTC().UnixMilli(), string(e.Payload), e.Tracing.TraceID, e.Tracing.SpanID)
		if err != nil {
			if db.IsSQLiteConstraint(err) {
				return 0, &VersionConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: -1}
			}
			return 0, fmt.Errorf("insert event %s: %w", e.EventID, err)
		}
		for _, c := range e.Claims {
			if err := claimSQLite(ctx, tx, aggregateID, c); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return expectedVersion + len(events), nil
}

func claimSQLite(ctx context.Context, tx *sql.Tx, aggregateID string, c UniqueClaim) error {
	value := NormalizeValue(c.Value)
	var owner string
	err := tx.QueryRowContext(ctx, `
		SELECT aggregate_id FROM es_unique_values WHERE field = ? AND value = ?
	`, c.Field, value).Scan(&owner)
	switch {
	case err == nil:
		if owner != aggregateID {
			return DuplicateValue(c.Field, c.Value)
		}
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("lookup %s owner: %w", c.Field, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO es_unique_values (field, value, aggregate_id, created_at) VALUES (?, ?, ?, ?)
	`, c.Field, value, aggregateID, time.Now().UTC().UnixMilli()); err != nil {
		if db.IsSQLiteConstraint(err) {
			return DuplicateValue(c.Field, c.Value)
		}
		return fmt.Errorf("claim %s: %w", c.Field, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, aggregateID string) ([]Envelope, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT event_id, aggregate_id, aggregate_type, version, event_type, event_timestamp, payload, trace_id, span_id
		FROM es_events
		WHERE aggregate_id = ?
		ORDER BY version
	`, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Envelope
	for rows.Next() {
		var e Envelope
		var millis int64
		var payload string
		if err := rows.Scan(&e.EventID, &e.AggregateID, &e.AggregateType, &e.Version, &e.EventType, &millis, &payload, &e.Tracing.TraceID, &e.Tracing.SpanID); err != nil {
			return nil, err
		}
		e.Timestamp = time.UnixMilli(millis).UTC()
		e.Payload = []byte(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) ExistsByField(ctx context.Context, field string, value string) (bool, error) {
	var exists int
	if err := s.sqlDB.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM es_unique_values WHERE field = ? AND value = ?)
	`, field, NormalizeValue(value)).Scan(&exists); err != nil {
		return false, err
	}
	return exists == 1, nil
}
