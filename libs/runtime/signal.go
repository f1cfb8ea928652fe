package runtime

import (
	"context"
	"log/slog"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
)

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// Workers runs background loops that stop with their context. A panicking
// worker is logged and does not take the process down.
type Workers struct {
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewWorkers(logger *slog.Logger) *Workers {
	return &Workers{logger: logger}
}

func (w *Workers) Go(ctx context.Context, name string, fn func(context.Context)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				w.logger.Error("worker panic", "worker", name, "panic", rec, "stack", string(debug.Stack()))
			}
		}()
		w.logger.Info("worker started", "worker", name)
		fn(ctx)
		w.logger.Info("worker stopped", "worker", name)
	}()
}

// Wait blocks until every worker returned.
func (w *Workers) Wait() {
	w.wg.Wait()
}
