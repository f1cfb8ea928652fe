package dlq

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLiteStore stores timestamps as unix milliseconds.
type SQLiteStore struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func NewSQLiteStore(sqlDB *sql.DB) *SQLiteStore {
	return &SQLiteStore{sqlDB: sqlDB, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.sqlDB.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply dlq schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec Record) (bool, error) {
	if err := CheckTransition("", rec.Status); err != nil {
		return false, err
	}
	headers, err := json.Marshal(headersOrEmpty(rec.Headers))
	if err != nil {
		return false, err
	}
	now := s.now().UnixMilli()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO dlq_messages (message_id, original_topic, message_key, kafka_partition, message_offset, payload, headers, error_message, status, retry_count, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING
	`, rec.MessageID, rec.OriginalTopic, rec.MessageKey, rec.Partition, rec.Offset, payloadOrEmpty(rec.Payload), string(headers), rec.ErrorMessage, string(rec.Status), rec.RetryCount, rec.Reason, now, now)
	if err != nil {
		return false, fmt.Errorf("insert dlq message %s: %w", rec.MessageID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if affected == 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE dlq_messages SET error_message = ?, updated_at = ? WHERE message_id = ?
		`, rec.ErrorMessage, now, rec.MessageID); err != nil {
			return false, err
		}
		return false, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dlq_transitions (message_id, from_status, to_status, reason, retry_count, created_at)
		VALUES (?, '', ?, ?, ?, ?)
	`, rec.MessageID, string(rec.Status), rec.Reason, rec.RetryCount, now); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *SQLiteStore) NextAttempt(ctx context.Context, messageID string) (int, error) {
	var attempts int
	err := s.sqlDB.QueryRowContext(ctx, `
		INSERT INTO dlq_attempts (message_id, attempts, updated_at)
		VALUES (?, 1, ?)
		ON CONFLICT (message_id) DO UPDATE SET attempts = attempts + 1, updated_at = excluded.updated_at
		RETURNING attempts
	`, messageID, s.now().UnixMilli()).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("count dlq attempt %s: %w", messageID, err)
	}
	return attempts - 1, nil
}

func (s *SQLiteStore) Transition(ctx context.Context, t Transition) error {
	if err := CheckTransition(t.From, t.To); err != nil {
		return err
	}
	now := s.now().UnixMilli()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE dlq_messages
		SET status = ?, retry_count = ?, reason = ?, updated_at = ?
		WHERE message_id = ? AND status = ?
	`, string(t.To), t.RetryCount, t.Reason, now, t.MessageID, string(t.From))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM dlq_messages WHERE message_id = ?)`, t.MessageID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrStaleTransition
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dlq_transitions (message_id, from_status, to_status, reason, retry_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.MessageID, string(t.From), string(t.To), t.Reason, t.RetryCount, now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	return s.query(ctx, `
		SELECT `+recordColumns+`
		FROM dlq_messages
		WHERE status = ?
		ORDER BY created_at, message_id
		LIMIT ?
	`, string(StatusPendingRetry), normalizeLimit(limit))
}

func (s *SQLiteStore) Get(ctx context.Context, messageID string) (Record, error) {
	records, err := s.query(ctx, `SELECT `+recordColumns+` FROM dlq_messages WHERE message_id = ?`, messageID)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, ErrNotFound
	}
	return records[0], nil
}

func (s *SQLiteStore) History(ctx context.Context, messageID string) ([]Transition, error) {
	if _, err := s.Get(ctx, messageID); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT message_id, from_status, to_status, reason, retry_count, created_at
		FROM dlq_transitions
		WHERE message_id = ?
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
		var at int64
		if err := rows.Scan(&t.MessageID, &from, &to, &t.Reason, &t.RetryCount, &at); err != nil {
			return nil, err
		}
		t.From, t.To, t.At = Status(from), Status(to), time.UnixMilli(at).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) List(ctx context.Context, status Status, limit int) ([]Record, error) {
	if status == "" {
		return s.query(ctx, `
			SELECT `+recordColumns+` FROM dlq_messages ORDER BY created_at DESC, message_id DESC LIMIT ?
		`, normalizeLimit(limit))
	}
	return s.query(ctx, `
		SELECT `+recordColumns+` FROM dlq_messages WHERE status = ? ORDER BY created_at DESC, message_id DESC LIMIT ?
	`, string(status), normalizeLimit(limit))
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT status, COUNT(*) FROM dlq_messages GROUP BY status`)
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

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var status, headers string
		var created, updated int64
		if err := rows.Scan(&rec.MessageID, &rec.OriginalTopic, &rec.MessageKey, &rec.Partition, &rec.Offset, &rec.Payload, &headers, &rec.ErrorMessage, &status, &rec.RetryCount, &rec.Reason, &created, &updated); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		rec.CreatedAt = time.UnixMilli(created).UTC()
		rec.UpdatedAt = time.UnixMilli(updated).UTC()
		if err := decodeHeaders([]byte(headers), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*PostgresStore)(nil)
var _ Store = (*MemoryStore)(nil)
