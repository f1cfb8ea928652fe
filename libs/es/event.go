// Package es holds the event-sourcing core shared by the write services:
// event envelopes, the append-only event log contract and its backends, the
// aggregate root helper, and the caching aggregate repository.
package es

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Envelope is one immutable fact in an aggregate's stream. Payload holds the
// event specific fields as a JSON object.
type Envelope struct {
	EventID       string
	AggregateID   string
	AggregateType string
	Version       int
	Timestamp     time.Time
	EventType     string
	Tracing       Tracing
	Payload       json.RawMessage

	// Claims are unique values this event establishes. They are written to
	// the secondary index with the append and are not part of the stream.
	Claims []UniqueClaim
}

type Tracing struct {
	TraceID string `json:"traceId,omitempty"`
	SpanID  string `json:"spanId,omitempty"`
}

// UniqueClaim reserves Value for Field across all aggregates of a store.
type UniqueClaim struct {
	Field string
	Value string
}

// NormalizeValue is the comparison form of unique values.
func NormalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

type wireHeader struct {
	EventID       string    `json:"eventId"`
	AggregateID   string    `json:"aggregateId"`
	AggregateType string    `json:"aggregateType"`
	Version       int       `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"eventType"`
	Tracing       *Tracing  `json:"tracing,omitempty"`
}

var wireHeaderKeys = []string{"eventId", "aggregateId", "aggregateType", "version", "timestamp", "eventType", "tracing"}

// MarshalWire renders the flat broker record: header fields plus the event
// fields at the top level.
func MarshalWire(e Envelope) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &fields); err != nil {
			return nil, fmt.Errorf("event payload must be a JSON object: %w", err)
		}
	}

	header := wireHeader{
		EventID:       e.EventID,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Version:       e.Version,
		Timestamp:     e.Timestamp.UTC(),
		EventType:     e.EventType,
	}
	if e.Tracing != (Tracing{}) {
		tracing := e.Tracing
		header.Tracing = &tracing
	}
	raw, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	var headerFields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &headerFields); err != nil {
		return nil, err
	}
	for k, v := range headerFields {
		fields[k] = v
	}
	return json.Marshal(fields)
}

// UnmarshalWire splits a broker record back into header and payload.
func UnmarshalWire(data []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Envelope{}, fmt.Errorf("decode event record: %w", err)
	}

	headerFields := map[string]json.RawMessage{}
	for _, k := range wireHeaderKeys {
		if v, ok := fields[k]; ok {
			headerFields[k] = v
			delete(fields, k)
		}
	}
	raw, err := json.Marshal(headerFields)
	if err != nil {
		return Envelope{}, err
	}
	var header wireHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return Envelope{}, fmt.Errorf("decode event header: %w", err)
	}
	if header.EventType == "" {
		return Envelope{}, errors.New("event record has no eventType")
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return Envelope{}, err
	}
	e := Envelope{
		EventID:       header.EventID,
		AggregateID:   header.AggregateID,
		AggregateType: header.AggregateType,
		Version:       header.Version,
		Timestamp:     header.Timestamp,
		EventType:     header.EventType,
		Payload:       payload,
	}
	if header.Tracing != nil {
		e.Tracing = *header.Tracing
	}
	return e, nil
}

// DecodePayload unmarshals the event fields into dst.
func DecodePayload(e Envelope, dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s v%d of %s: %w", e.EventType, e.Version, e.AggregateID, err)
	}
	return nil
}

func cloneEnvelope(e Envelope) Envelope {
	out := e
	out.Payload = append(json.RawMessage(nil), e.Payload...)
	out.Claims = append([]UniqueClaim(nil), e.Claims...)
	return out
}
