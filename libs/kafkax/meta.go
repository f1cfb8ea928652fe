package kafkax

import (
	"strconv"
	"strings"

	"github.com/segmentio/kafka-go"
)

// Header keys stamped on every published event.
const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
	HeaderEventVersion  = "event_version"
)

// EventMeta is what a consumer can learn about an event without decoding it.
type EventMeta struct {
	EventID       string
	EventType     string
	AggregateID   string
	AggregateType string
	Version       int
}

// ExtractEventMeta reads the event headers. Messages from producers that do
// not stamp them fall back to the key and the topic.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:       HeaderValue(msg.Headers, HeaderEventID),
		EventType:     HeaderValue(msg.Headers, HeaderEventType),
		AggregateID:   string(msg.Key),
		AggregateType: HeaderValue(msg.Headers, HeaderAggregateType),
	}
	if meta.EventType == "" {
		meta.EventType = OriginalTopic(msg.Topic)
	}
	if v, err := strconv.Atoi(HeaderValue(msg.Headers, HeaderEventVersion)); err == nil {
		meta.Version = v
	}
	return meta
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// HeaderMap flattens headers; later duplicates win.
func HeaderMap(headers []kafka.Header) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
