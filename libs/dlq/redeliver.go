package dlq

import (
	"context"
	"strconv"

	"github.com/md-rashed-zaman/storefront/libs/kafkax"
	otelx "github.com/md-rashed-zaman/storefront/libs/otel"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// KafkaRedeliverer republishes a parked message to its original topic.
type KafkaRedeliverer struct {
	writer kafkax.MessageWriter
}

func NewKafkaRedeliverer(writer kafkax.MessageWriter) *KafkaRedeliverer {
	return &KafkaRedeliverer{writer: writer}
}

func (r *KafkaRedeliverer) Redeliver(ctx context.Context, rec Record) error {
	msg := kafka.Message{
		Topic: rec.OriginalTopic,
		Value: rec.Payload,
	}
	if rec.MessageKey != "" {
		msg.Key = []byte(rec.MessageKey)
	}
	for k, v := range rec.Headers {
		if k == "traceparent" || k == "tracestate" {
			continue
		}
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	msg.Headers = append(msg.Headers,
		kafka.Header{Key: "dlq_message_id", Value: []byte(rec.MessageID)},
		kafka.Header{Key: "dlq_retry_attempt", Value: []byte(strconv.Itoa(rec.RetryCount + 1))},
	)
	msgCtx := otelx.ContextWithTraceContext(ctx, rec.Headers["traceparent"], rec.Headers["tracestate"])
	msgCtx, span := kafkax.StartProduceSpan(msgCtx, "dlq", "dlq.redeliver", rec.OriginalTopic)
	defer span.End()
	span.SetAttributes(attribute.String("dlq.message_id", rec.MessageID), attribute.Int("dlq.retry_attempt", rec.RetryCount+1))

	msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
