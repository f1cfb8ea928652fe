package kafkax

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer producers depend on.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// publishBatchTimeout bounds how long a write waits for more messages. Events
// are published on the command path, so a batch is flushed almost at once.
const publishBatchTimeout = 10 * time.Millisecond

// NewWriter builds a key-hashed writer; messages carry their own topic.
func NewWriter(brokers string) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:      SplitBrokers(brokers),
		Balancer:     &kafka.Hash{},
		RequiredAcks: int(kafka.RequireAll),
		BatchTimeout: publishBatchTimeout,
	})
}
