package es

import (
	"context"
	"errors"
	"fmt"
)

// EventStore is the append-only event log. Append is the only concurrency
// control primitive: it succeeds only when the stream is at expectedVersion.
type EventStore interface {
	Append(ctx context.Context, aggregateID string, expectedVersion int, events []Envelope) (int, error)
	Load(ctx context.Context, aggregateID string) ([]Envelope, error)
	ExistsByField(ctx context.Context, field string, value string) (bool, error)
}

func checkBatch(aggregateID string, expectedVersion int, events []Envelope) error {
	if expectedVersion < 0 {
		return fmt.Errorf("expected version must not be negative, got %d", expectedVersion)
	}
	if len(events) == 0 {
		return errors.New("append requires at least one event")
	}
	for i, e := range events {
		if e.AggregateID != aggregateID {
			return fmt.Errorf("event %s belongs to %s, not %s", e.EventID, e.AggregateID, aggregateID)
		}
		if want := expectedVersion + i + 1; e.Version != want {
			return fmt.Errorf("%w: expected %d got %d", ErrSequenceGap, want, e.Version)
		}
		if e.EventType == "" || e.EventID == "" {
			return fmt.Errorf("event at version %d is missing id or type", e.Version)
		}
	}
	return nil
}
