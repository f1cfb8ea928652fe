package es

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/storefront/libs/db"
)

//go:embed schema/postgres.sql
var postgresSchema string

// PostgresStore keeps streams in the es_events table.
type PostgresStore struct {
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply event store schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, aggregateID string, expectedVersion int, events []Envelope) (int, error) {
	if err := checkBatch(aggregateID, expectedVersion, events); err != nil {
		return 0, err
	}

	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		var current int
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(version), 0) FROM es_events WHERE aggregate_id = $1
		`, aggregateID).Scan(&current); err != nil {
			return err
		}
		if current != expectedVersion {
			return &VersionConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: current}
		}

		for _, e := range events {
			_, err := tx.Exec(ctx, `
				INSERT INTO es_events (event_id, aggregate_id, aggregate_type, version, event_type, event_timestamp, payload, trace_id, span_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, e.EventID, e.AggregateID, e.AggregateType, e.Version, e.EventType, e.Timestamp.UTC(), []byte(e.Payload), e.Tracing.TraceID, e.Tracing.SpanID)
			if err != nil {
				if name, ok := db.UniqueViolation(err); ok && name == "es_events_stream_version_key" {
					return &VersionConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: -1}
				}
				return fmt.Errorf("insert event %s: %w", e.EventID, err)
			}
			for _, c := range e.Claims {
				if err := claimPostgres(ctx, tx, aggregateID, c); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expectedVersion + len(events), nil
}

func claimPostgres(ctx context.Context, tx pgx.Tx, aggregateID string, c UniqueClaim) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO es_unique_values (field, value, aggregate_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (field, value) DO NOTHING
	`, c.Field, NormalizeValue(c.Value), aggregateID)
	if err != nil {
		return fmt.Errorf("claim %s: %w", c.Field, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var owner string
	if err := tx.QueryRow(ctx, `
		SELECT aggregate_id FROM es_unique_values WHERE field = $1 AND value = $2
	`, c.Field, NormalizeValue(c.Value)).Scan(&owner); err != nil {
		return fmt.Errorf("lookup %s owner: %w", c.Field, err)
	}
	if owner != aggregateID {
		return DuplicateValue(c.Field, c.Value)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, aggregateID string) ([]Envelope, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, aggregate_id, aggregate_type, version, event_type, event_timestamp, payload, trace_id, span_id
		FROM es_events
		WHERE aggregate_id = $1
		ORDER BY version
	`, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Envelope
	for rows.Next() {
		var e Envelope
		var payload []byte
		if err := rows.Scan(&e.EventID, &e.AggregateID, &e.AggregateType, &e.Version, &e.EventType, &e.Timestamp, &payload, &e.Tracing.TraceID, &e.Tracing.SpanID); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		e.Payload = payload
		events = append(events, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

func (s *PostgresStore) ExistsByField(ctx context.Context, field string, value string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM es_unique_values WHERE field = $1 AND value = $2)
	`, field, NormalizeValue(value)).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	return exists, nil
}
