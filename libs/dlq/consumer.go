package dlq

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/storefront/libs/db"
	"github.com/md-rashed-zaman/storefront/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"
)

type ConsumerConfig struct {
	Brokers string
	GroupID string
	// Topics are the original topics; their dead-letter topics are consumed.
	Topics []string
}

// Consumer ingests messages that downstream consumers routed to dead-letter
// topics. Offsets are committed only after the record is stored.
type Consumer struct {
	reader   *kafka.Reader
	ingestor *Ingestor
	logger   *slog.Logger
}

func NewConsumer(logger *slog.Logger, ingestor *Ingestor, cfg ConsumerConfig) *Consumer {
	topics := make([]string, 0, len(cfg.Topics))
	for _, t := range cfg.Topics {
		topics = append(topics, kafkax.DLTTopic(t))
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{reader: reader, ingestor: ingestor, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		if !c.ingest(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// ingest stores msg, retrying transient errors until it succeeds or ctx
// ends. A message the store rejects outright is logged and skipped so it
// cannot hold up the partition.
func (c *Consumer) ingest(ctx context.Context, msg kafka.Message) bool {
	ctxSpan, span := kafkax.StartConsumeSpan(ctx, "dlq", "dlq.ingest", msg)
	defer span.End()

	backoff := time.Second
	for {
		_, err := c.ingestor.Ingest(ctxSpan, FailureFromMessage(msg))
		if err == nil {
			return true
		}
		span.RecordError(err)
		if permanent(err) {
			span.SetStatus(codes.Error, "dlq message rejected")
			c.logger.Error("dlq message rejected, skipping", "err", err, "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
			return true
		}
		c.logger.Error("dlq ingest failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func permanent(err error) bool {
	return db.IsIntegrityViolation(err) || errors.Is(err, ErrInvalidTransition)
}

// FailureFromMessage reads a dead-letter message. Producers that record the
// source topic or failure reason in headers take precedence.
func FailureFromMessage(msg kafka.Message) Failure {
	topic := msg.Topic
	if original := kafkax.HeaderValue(msg.Headers, "kafka_dlt-original-topic"); original != "" {
		topic = original
	}
	errMsg := kafkax.HeaderValue(msg.Headers, "error_message")
	if errMsg == "" {
		errMsg = kafkax.HeaderValue(msg.Headers, "kafka_dlt-exception-message")
	}
	return Failure{
		Topic:     topic,
		Key:       string(msg.Key),
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Payload:   msg.Value,
		Headers:   kafkax.HeaderMap(msg.Headers),
		Error:     errMsg,
	}
}

// FailureFromPublish adapts a failed event publish for Ingest.
func FailureFromPublish(msg kafka.Message, cause error) Failure {
	f := FailureFromMessage(msg)
	if cause != nil {
		f.Error = cause.Error()
	}
	return f
}
