package dlq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var ErrSweepInProgress = errors.New("dlq sweep already running")

// Redeliverer attempts to deliver a parked message again.
type Redeliverer interface {
	Redeliver(ctx context.Context, rec Record) error
}

type RedelivererFunc func(ctx context.Context, rec Record) error

func (f RedelivererFunc) Redeliver(ctx context.Context, rec Record) error { return f(ctx, rec) }

type SweeperConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Concurrency int
}

// SweepResult tallies one sweep.
type SweepResult struct {
	Fetched   int `json:"fetched"`
	Succeeded int `json:"succeeded"`
	Requeued  int `json:"requeued"`
	Exhausted int `json:"exhausted"`
	Skipped   int `json:"skipped"`
}

// Sweeper periodically retries PENDING_RETRY records. At most one sweep
// runs at a time, whether started by the ticker or by an operator.
type Sweeper struct {
	store       Store
	redeliverer Redeliverer
	logger      *slog.Logger
	metrics     *metrics
	interval    time.Duration
	batchSize   int
	maxAttempts int
	concurrency int
	running     atomic.Bool
}

func NewSweeper(store Store, redeliverer Redeliverer, logger *slog.Logger, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Sweeper{
		store:       store,
		redeliverer: redeliverer,
		logger:      logger,
		metrics:     newMetrics(),
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		concurrency: cfg.Concurrency,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	if err := s.Recover(ctx); err != nil {
		s.logger.Error("dlq recovery of interrupted retries failed", "err", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.Sweep(ctx)
			if err != nil {
				if !errors.Is(err, ErrSweepInProgress) {
					s.logger.Error("dlq sweep failed", "err", err)
				}
				continue
			}
			if res.Fetched > 0 {
				s.logger.Info("dlq sweep finished",
					"fetched", res.Fetched,
					"succeeded", res.Succeeded,
					"requeued", res.Requeued,
					"exhausted", res.Exhausted,
					"skipped", res.Skipped,
				)
			}
		}
	}
}

func (s *Sweeper) Running() bool { return s.running.Load() }

// Sweep runs one recovery pass, or returns ErrSweepInProgress.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return SweepResult{}, ErrSweepInProgress
	}
	defer s.running.Store(false)
	defer s.metrics.swept(ctx, time.Now())

	records, err := s.store.FetchPending(ctx, s.batchSize)
	if err != nil {
		return SweepResult{}, fmt.Errorf("fetch pending dlq messages: %w", err)
	}

	res := SweepResult{Fetched: len(records)}
	outcomes := make([]outcome, len(records))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, rec := range records {
		g.Go(func() error {
			outcomes[i] = s.attempt(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch o {
		case outcomeSucceeded:
			res.Succeeded++
		case outcomeRequeued:
			res.Requeued++
		case outcomeExhausted:
			res.Exhausted++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSucceeded
	outcomeRequeued
	outcomeExhausted
)

func (s *Sweeper) attempt(ctx context.Context, rec Record) outcome {
	// Status writes outlive a cancelled sweep so no record is stranded in progress.
	writeCtx := context.WithoutCancel(ctx)
	attempt := rec.RetryCount + 1

	err := s.store.Transition(writeCtx, Transition{
		MessageID:  rec.MessageID,
		From:       StatusPendingRetry,
		To:         StatusRetryInProgress,
		Reason:     fmt.Sprintf("retry attempt %d of %d started", attempt, s.maxAttempts),
		RetryCount: rec.RetryCount,
	})
	if err != nil {
		if !errors.Is(err, ErrStaleTransition) {
			s.logger.Error("dlq transition failed", "err", err, "message_id", rec.MessageID)
		}
		return outcomeSkipped
	}

	deliverErr := s.redeliverer.Redeliver(ctx, rec)

	next := Transition{MessageID: rec.MessageID, From: StatusRetryInProgress, RetryCount: attempt}
	result := outcomeSucceeded
	switch {
	case deliverErr == nil:
		next.To = StatusRetrySucceeded
		next.Reason = fmt.Sprintf("retry attempt %d succeeded", attempt)
	case attempt >= s.maxAttempts:
		next.To = StatusFailedPermanently
		next.Reason = fmt.Sprintf("retry attempts exhausted (%d of %d): %v", attempt, s.maxAttempts, deliverErr)
		result = outcomeExhausted
	default:
		next.To = StatusPendingRetry
		next.Reason = fmt.Sprintf("retry attempt %d of %d failed: %v", attempt, s.maxAttempts, deliverErr)
		result = outcomeRequeued
	}
	s.metrics.attempted(writeCtx, rec.OriginalTopic, deliverErr, result == outcomeExhausted)

	if err := s.store.Transition(writeCtx, next); err != nil {
		s.logger.Error("dlq transition failed", "err", err, "message_id", rec.MessageID, "to", string(next.To))
		return outcomeSkipped
	}
	if result == outcomeExhausted {
		s.logger.Error("dlq message failed permanently", "message_id", rec.MessageID, "topic", rec.OriginalTopic, "attempts", attempt)
	}
	return result
}

// Recover returns records left RETRY_IN_PROGRESS by an interrupted process
// to PENDING_RETRY. The interrupted attempt is not counted.
func (s *Sweeper) Recover(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSweepInProgress
	}
	defer s.running.Store(false)

	stuck, err := s.store.List(ctx, StatusRetryInProgress, 500)
	if err != nil {
		return err
	}
	for _, rec := range stuck {
		err := s.store.Transition(ctx, Transition{
			MessageID:  rec.MessageID,
			From:       StatusRetryInProgress,
			To:         StatusPendingRetry,
			Reason:     "retry interrupted by shutdown, requeued",
			RetryCount: rec.RetryCount,
		})
		if err != nil && !errors.Is(err, ErrStaleTransition) {
			return err
		}
	}
	if len(stuck) > 0 {
		s.logger.Warn("dlq requeued interrupted retries", "count", len(stuck))
	}
	return nil
}
