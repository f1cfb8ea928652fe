package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter keeps the fixed-window counters in Redis so all replicas
// of a write service draw from one budget per client.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
}

// The script returns the hit count and the remaining window in milliseconds.
var windowHitScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {hits, redis.call("PTTL", KEYS[1])}
`)

func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, service string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if service == "" {
		service = "storefront"
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: "ratelimit:" + service + ":"}
}

// Middleware enforces the limit. When Redis is unreachable the request is let
// through if failOpen is set and rejected with 503 otherwise.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits, ttl, err := rl.hit(r.Context(), rl.prefix+clientKey(r))
			if err != nil {
				logger.Warn("redis rate limiter unavailable", "err", err, "fail_open", failOpen)
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, r, http.StatusServiceUnavailable, "rate-limiter-unavailable", "rate limiter unavailable")
				return
			}
			remaining := max(int64(rl.limit)-hits, 0)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if hits > int64(rl.limit) {
				if ttl <= 0 {
					ttl = rl.window
				}
				tooManyRequests(w, r, ttl.Round(time.Second))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RedisRateLimiter) hit(ctx context.Context, key string) (int64, time.Duration, error) {
	res, err := windowHitScript.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("rate limit script returned %d values", len(res))
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}
