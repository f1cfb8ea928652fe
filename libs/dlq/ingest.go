package dlq

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/md-rashed-zaman/storefront/libs/kafkax"
)

// Failure describes one failed delivery as seen by the broker side.
type Failure struct {
	Topic     string
	Key       string
	Partition int
	Offset    int64
	Payload   []byte
	Headers   map[string]string
	Error     string
}

type IngestorConfig struct {
	MaxAttempts int
}

// Ingestor classifies failed deliveries and persists them. Classification
// of one message id is serialized with its attempt counter update.
type Ingestor struct {
	store       Store
	logger      *slog.Logger
	maxAttempts int
	metrics     *metrics
	locks       [64]sync.Mutex
}

func NewIngestor(store Store, logger *slog.Logger, cfg IngestorConfig) *Ingestor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Ingestor{
		store:       store,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		metrics:     newMetrics(),
	}
}

// Ingest records f. A message whose id has already been classified
// maxAttempts times is parked as FAILED_PERMANENTLY straight away.
func (i *Ingestor) Ingest(ctx context.Context, f Failure) (Record, error) {
	topic := kafkax.OriginalTopic(f.Topic)
	id := MessageID(topic, f.Key, f.Partition, f.Offset)

	lock := i.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	prev, err := i.store.NextAttempt(ctx, id)
	if err != nil {
		return Record{}, err
	}

	status := StatusPendingRetry
	reason := "queued for retry"
	if prev >= i.maxAttempts {
		status = StatusFailedPermanently
		reason = fmt.Sprintf("delivery failed %d times, max attempts is %d", prev+1, i.maxAttempts)
	}

	rec := Record{
		MessageID:     id,
		OriginalTopic: topic,
		MessageKey:    f.Key,
		Partition:     f.Partition,
		Offset:        f.Offset,
		Payload:       payloadOrEmpty(f.Payload),
		Headers:       f.Headers,
		ErrorMessage:  f.Error,
		Status:        status,
		Reason:        reason,
	}
	inserted, err := i.store.Insert(ctx, rec)
	if err != nil {
		return Record{}, err
	}
	if !inserted {
		existing, err := i.store.Get(ctx, id)
		if err != nil {
			return Record{}, err
		}
		if status == StatusFailedPermanently && existing.Status == StatusPendingRetry {
			return i.park(ctx, existing, prev+1)
		}
		i.logger.Info("dlq message already tracked", "message_id", id, "status", string(existing.Status))
		return existing, nil
	}

	i.metrics.ingested(ctx, topic, status)
	i.logger.Warn("dlq message stored", "message_id", id, "topic", topic, "status", string(status), "error", f.Error)
	return i.store.Get(ctx, id)
}

// park moves a queued record whose failure was delivered again past the
// attempt budget to FAILED_PERMANENTLY. The repeated delivery counts as the
// attempt, so the record passes through RETRY_IN_PROGRESS like a sweep would.
// A sweep that claimed the record first wins and the record is left alone.
func (i *Ingestor) park(ctx context.Context, rec Record, deliveries int) (Record, error) {
	err := i.store.Transition(ctx, Transition{
		MessageID:  rec.MessageID,
		From:       StatusPendingRetry,
		To:         StatusRetryInProgress,
		Reason:     fmt.Sprintf("failure delivered again (%d of %d)", deliveries, i.maxAttempts),
		RetryCount: rec.RetryCount,
	})
	if errors.Is(err, ErrStaleTransition) {
		return i.store.Get(ctx, rec.MessageID)
	}
	if err != nil {
		return Record{}, err
	}
	err = i.store.Transition(ctx, Transition{
		MessageID:  rec.MessageID,
		From:       StatusRetryInProgress,
		To:         StatusFailedPermanently,
		Reason:     fmt.Sprintf("delivery failed %d times, max attempts is %d", deliveries, i.maxAttempts),
		RetryCount: rec.RetryCount,
	})
	if err != nil {
		return Record{}, err
	}
	i.metrics.ingested(ctx, rec.OriginalTopic, StatusFailedPermanently)
	i.logger.Error("dlq message failed permanently", "message_id", rec.MessageID, "topic", rec.OriginalTopic, "deliveries", deliveries)
	return i.store.Get(ctx, rec.MessageID)
}

// payloadOrEmpty keeps tombstones and empty-bodied failures storable.
func payloadOrEmpty(p []byte) []byte {
	if p == nil {
		return []byte{}
	}
	return p
}

func (i *Ingestor) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &i.locks[h.Sum32()%uint32(len(i.locks))]
}
