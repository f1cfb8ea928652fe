package es

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/storefront/libs/otel"
)

// Root carries the bookkeeping every aggregate shares: identity, version and
// the buffer of events raised since the last successful save. Domain
// aggregates embed it.
type Root struct {
	id            string
	aggregateType string
	version       int
	uncommitted   []Envelope
}

func NewRoot(id string, aggregateType string) Root {
	return Root{id: id, aggregateType: aggregateType}
}

func (r *Root) ID() string            { return r.id }
func (r *Root) AggregateType() string { return r.aggregateType }

// Version counts replayed plus uncommitted events.
func (r *Root) Version() int { return r.version }

// CommittedVersion is the stream version the uncommitted events build on.
func (r *Root) CommittedVersion() int { return r.version - len(r.uncommitted) }

func (r *Root) Uncommitted() []Envelope {
	out := make([]Envelope, len(r.uncommitted))
	for i, e := range r.uncommitted {
		out[i] = cloneEnvelope(e)
	}
	return out
}

func (r *Root) ClearUncommitted() { r.uncommitted = nil }

// NewEvent builds the next envelope without recording it, so a command can
// still abandon the change if encoding fails.
func (r *Root) NewEvent(ctx context.Context, eventType string, payload any, claims ...UniqueClaim) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", eventType, err)
	}
	traceID, spanID := otelx.SpanIDs(ctx)
	return Envelope{
		EventID:       uuid.NewString(),
		AggregateID:   r.id,
		AggregateType: r.aggregateType,
		Version:       r.version + 1,
		Timestamp:     time.Now().UTC().Truncate(time.Millisecond),
		EventType:     eventType,
		Tracing:       Tracing{TraceID: traceID, SpanID: spanID},
		Payload:       raw,
		Claims:        claims,
	}, nil
}

// Record appends an envelope built by NewEvent to the uncommitted buffer.
func (r *Root) Record(e Envelope) {
	r.uncommitted = append(r.uncommitted, e)
	r.version = e.Version
}

// Replayed advances the version for a stored event, rejecting gaps.
func (r *Root) Replayed(e Envelope) error {
	if e.Version != r.version+1 {
		return fmt.Errorf("%w: expected %d got %d", ErrSequenceGap, r.version+1, e.Version)
	}
	r.version = e.Version
	return nil
}

// CloneRoot deep copies the bookkeeping for aggregate Clone methods.
func (r *Root) CloneRoot() Root {
	out := *r
	out.uncommitted = r.Uncommitted()
	if len(out.uncommitted) == 0 {
		out.uncommitted = nil
	}
	return out
}
