package dlq

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/storefront/libs/db"
)

//go:embed schema/postgres.sql
var postgresSchema string

const recordColumns = `message_id, original_topic, message_key, kafka_partition, message_offset, payload, headers, error_message, status, retry_count, reason, created_at, updated_at`

type PostgresStore struct {
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply dlq schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec Record) (bool, error) {
	if err := CheckTransition("", rec.Status); err != nil {
		return false, err
	}
	headers, err := json.Marshal(headersOrEmpty(rec.Headers))
	if err != nil {
		return false, err
	}

	inserted := false
	err = s.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO dlq_messages (message_id, original_topic, message_key, kafka_partition, message_offset, payload, headers, error_message, status, retry_count, reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (message_id) DO NOTHING
		`, rec.MessageID, rec.OriginalTopic, rec.MessageKey, rec.Partition, rec.Offset, payloadOrEmpty(rec.Payload), headers, rec.ErrorMessage, string(rec.Status), rec.RetryCount, rec.Reason)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			_, err := tx.Exec(ctx, `
				UPDATE dlq_messages SET error_message = $2, updated_at = now() WHERE message_id = $1
			`, rec.MessageID, rec.ErrorMessage)
			return err
		}
		inserted = true
		_, err = tx.Exec(ctx, `
			INSERT INTO dlq_transitions (message_id, from_status, to_status, reason, retry_count)
			VALUES ($1, '', $2, $3, $4)
		`, rec.MessageID, string(rec.Status), rec.Reason, rec.RetryCount)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("insert dlq message %s: %w", rec.MessageID, err)
	}
	return inserted, nil
}

func (s *PostgresStore) NextAttempt(ctx context.Context, messageID string) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO dlq_attempts (message_id, attempts)
		VALUES ($1, 1)
		ON CONFLICT (message_id) DO UPDATE SET attempts = dlq_attempts.attempts + 1, updated_at = now()
		RETURNING attempts
	`, messageID).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("count dlq attempt %s: %w", messageID, err)
	}
	return attempts - 1, nil
}

func (s *PostgresStore) Transition(ctx context.Context, t Transition) error {
	if err := CheckTransition(t.From, t.To); err != nil {
		return err
	}
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE dlq_messages
			SET status = $3, retry_count = $4, reason = $5, updated_at = now()
			WHERE message_id = $1 AND status = $2
		`, t.MessageID, string(t.From), string(t.To), t.RetryCount, t.Reason)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM dlq_messages WHERE message_id = $1)`, t.MessageID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrStaleTransition
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO dlq_transitions (message_id, from_status, to_status, reason, retry_count)
			VALUES ($1, $2, $3, $4, $5)
		`, t.MessageID, string(t.From), string(t.To), t.Reason, t.RetryCount)
		return err
	})
}

func (s *PostgresStore) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	return s.query(ctx, `
		SELECT `+recordColumns+`
		FROM dlq_messages
		WHERE status = $1
		ORDER BY created_at, message_id
		LIMIT $2
	`, string(StatusPendingRetry), normalizeLimit(limit))
}

func (s *PostgresStore) Get(ctx context.Context, messageID string) (Record, error) {
	records, err := s.query(ctx, `SELECT `+recordColumns+` FROM dlq_messages WHERE message_id = $1`, messageID)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, ErrNotFound
	}
	return records[0], nil
}

func (s *PostgresStore) History(ctx context.Context, messageID string) ([]Transition, error) {
	if _, err := s.Get(ctx, messageID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT message_id, from_status, to_status, reason, retry_count, created_at
		FROM dlq_transitions
		WHERE message_id = $1
		ORDER BY id
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var from, to string
		if err := rows.Scan(&t.MessageID, &from, &to, &t.Reason, &t.RetryCount, &t.At); err != nil {
			return nil, err
		}
		t.From, t.To = Status(from), Status(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) List(ctx context.Context, status Status, limit int) ([]Record, error) {
	if status == "" {
		return s.query(ctx, `
			SELECT `+recordColumns+` FROM dlq_messages ORDER BY created_at DESC, message_id DESC LIMIT $1
		`, normalizeLimit(limit))
	}
	return s.query(ctx, `
		SELECT `+recordColumns+` FROM dlq_messages WHERE status = $1 ORDER BY created_at DESC, message_id DESC LIMIT $2
	`, string(status), normalizeLimit(limit))
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM dlq_messages GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]Record, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var status string
		var headers []byte
		if err := rows.Scan(&rec.MessageID, &rec.OriginalTopic, &rec.MessageKey, &rec.Partition, &rec.Offset, &rec.Payload, &headers, &rec.ErrorMessage, &status, &rec.RetryCount, &rec.Reason, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		if err := decodeHeaders(headers, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func headersOrEmpty(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}

func decodeHeaders(raw []byte, rec *Record) error {
	if len(raw) == 0 {
		return nil
	}
	var headers map[string]string
	if err := json.Unmarshal(raw, &headers); err != nil {
		return fmt.Errorf("decode headers of %s: %w", rec.MessageID, err)
	}
	if len(headers) > 0 {
		rec.Headers = headers
	}
	return nil
}
