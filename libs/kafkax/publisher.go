package kafkax

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/md-rashed-zaman/storefront/libs/es"
	otelx "github.com/md-rashed-zaman/storefront/libs/otel"
	"github.com/segmentio/kafka-go"
)

// TopicFunc resolves the topic of an event type.
type TopicFunc func(eventType string) (string, bool)

// FailureHandler receives messages the broker did not accept. Unsent
// messages have no broker position, so Partition is -1 and Offset carries
// the event version.
type FailureHandler func(ctx context.Context, msg kafka.Message, cause error)

// EventPublisher writes committed events as flat wire records, one topic per
// event type, keyed by aggregate id.
type EventPublisher struct {
	writer    MessageWriter
	topics    TopicFunc
	onFailure FailureHandler
	logger    *slog.Logger
}

func NewEventPublisher(writer MessageWriter, topics TopicFunc, onFailure FailureHandler, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{writer: writer, topics: topics, onFailure: onFailure, logger: logger}
}

func (p *EventPublisher) Publish(ctx context.Context, events []es.Envelope) error {
	msgs := make([]kafka.Message, 0, len(events))
	var errs []error
	for _, e := range events {
		msg, err := p.message(ctx, e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return errors.Join(errs...)
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	if err == nil {
		return errors.Join(errs...)
	}

	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) && len(writeErrs) == len(msgs) {
		for i, werr := range writeErrs {
			if werr != nil {
				p.fail(ctx, msgs[i], werr)
			}
		}
	} else {
		for _, msg := range msgs {
			p.fail(ctx, msg, err)
		}
	}
	return errors.Join(append(errs, fmt.Errorf("publish %d events: %w", len(msgs), err))...)
}

func (p *EventPublisher) message(ctx context.Context, e es.Envelope) (kafka.Message, error) {
	topic, ok := p.topics(e.EventType)
	if !ok {
		return kafka.Message{}, fmt.Errorf("no topic registered for %s", e.EventType)
	}
	value, err := es.MarshalWire(e)
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(e.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(e.EventID)},
			{Key: HeaderEventType, Value: []byte(e.EventType)},
			{Key: HeaderAggregateType, Value: []byte(e.AggregateType)},
			{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(e.Version))},
		},
	}
	msgCtx := otelx.ContextWithSpanIDs(ctx, e.Tracing.TraceID, e.Tracing.SpanID)
	msg.Headers = InjectTraceHeaders(msgCtx, msg.Headers)
	return msg, nil
}

func (p *EventPublisher) fail(ctx context.Context, msg kafka.Message, cause error) {
	meta := ExtractEventMeta(msg)
	p.logger.Error("event delivery failed", "err", cause, "topic", msg.Topic, "event_id", meta.EventID, "aggregate_id", meta.AggregateID)
	if p.onFailure == nil {
		return
	}
	msg.Partition = -1
	msg.Offset = int64(meta.Version)
	p.onFailure(ctx, msg, cause)
}
