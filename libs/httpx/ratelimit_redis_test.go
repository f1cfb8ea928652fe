package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeScripter counts hits per key the way the window script does.
type fakeScripter struct {
	redis.Scripter
	hits map[string]int64
	err  error
}

func (f *fakeScripter) EvalSha(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.Eval(ctx, "", keys, args...)
}

func (f *fakeScripter) Eval(_ context.Context, _ string, keys []string, _ ...any) *redis.Cmd {
	if f.err != nil {
		return redis.NewCmdResult(nil, f.err)
	}
	f.hits[keys[0]]++
	return redis.NewCmdResult([]any{f.hits[keys[0]], int64(42_000)}, nil)
}

func serveRedisLimited(t *testing.T, h http.Handler, n int) *httptest.ResponseRecorder {
	t.Helper()
	var rec *httptest.ResponseRecorder
	for range n {
		rec = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/vendors", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		h.ServeHTTP(rec, req)
	}
	return rec
}

func TestRedisRateLimiterSharesWindow(t *testing.T) {
	fake := &fakeScripter{hits: map[string]int64{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
	h := NewRedisRateLimiter(fake, 2, time.Minute, "vendor-write").Middleware(logger, true)(ok)

	rec := serveRedisLimited(t, h, 2)
	if rec.Code != http.StatusAccepted || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected last allowed request, got %d %v", rec.Code, rec.Header())
	}
	rec = serveRedisLimited(t, h, 1)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "42" {
		t.Fatalf("expected 429 with ttl based Retry-After, got %d %v", rec.Code, rec.Header())
	}
	if fake.hits["ratelimit:vendor-write:192.0.2.7"] != 3 {
		t.Fatalf("unexpected keys %v", fake.hits)
	}
}

func TestRedisRateLimiterFailureModes(t *testing.T) {
	fake := &fakeScripter{hits: map[string]int64{}, err: errors.New("connection refused")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })

	open := NewRedisRateLimiter(fake, 1, time.Minute, "x").Middleware(logger, true)(ok)
	if rec := serveRedisLimited(t, open, 1); rec.Code != http.StatusAccepted {
		t.Fatalf("fail open should pass, got %d", rec.Code)
	}
	closed := NewRedisRateLimiter(fake, 1, time.Minute, "x").Middleware(logger, false)(ok)
	if rec := serveRedisLimited(t, closed, 1); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("fail closed should reject, got %d", rec.Code)
	}
}
