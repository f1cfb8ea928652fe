package es_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/md-rashed-zaman/storefront/libs/es"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireRecordIsFlat(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	env := es.Envelope{
		EventID:       "evt-1",
		AggregateID:   "vendor-1",
		AggregateType: "Vendor",
		Version:       3,
		Timestamp:     ts,
		EventType:     "VendorStatusChangedEvent",
		Tracing:       es.Tracing{TraceID: "t1", SpanID: "s1"},
		Payload:       json.RawMessage(`{"oldStatus":"ACTIVE","newStatus":"SUSPENDED"}`),
	}

	raw, err := es.MarshalWire(env)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.Equal(t, "VendorStatusChangedEvent", flat["eventType"])
	assert.Equal(t, "SUSPENDED", flat["newStatus"])
	assert.Equal(t, float64(3), flat["version"])
	assert.Equal(t, map[string]any{"traceId": "t1", "spanId": "s1"}, flat["tracing"])

	back, err := es.UnmarshalWire(raw)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, back.EventID)
	assert.Equal(t, env.Version, back.Version)
	assert.True(t, ts.Equal(back.Timestamp))
	assert.Equal(t, env.Tracing, back.Tracing)
	assert.JSONEq(t, string(env.Payload), string(back.Payload))
}

func TestUnmarshalWireRequiresEventType(t *testing.T) {
	_, err := es.UnmarshalWire([]byte(`{"eventId":"x","version":1}`))
	require.Error(t, err)
}

func TestMarshalWireRejectsNonObjectPayload(t *testing.T) {
	_, err := es.MarshalWire(es.Envelope{EventType: "X", Payload: json.RawMessage(`[1,2]`)})
	require.Error(t, err)
}
