// Package writeside wires the infrastructure shared by the event-sourced
// write services: storage, event publishing, DLQ recovery, the admin API,
// rate limiting and the HTTP server lifecycle.
package writeside

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/storefront/libs/auth"
	"github.com/md-rashed-zaman/storefront/libs/config"
	"github.com/md-rashed-zaman/storefront/libs/dlq"
	"github.com/md-rashed-zaman/storefront/libs/es"
	"github.com/md-rashed-zaman/storefront/libs/httpx"
	"github.com/md-rashed-zaman/storefront/libs/kafkax"
	"github.com/md-rashed-zaman/storefront/libs/runtime"
	"github.com/md-rashed-zaman/storefront/libs/storage"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8080"`
	storage.Config

	AggregateCacheSize int           `env:"AGGREGATE_CACHE_SIZE" envDefault:"10000"`
	KafkaBrokers       string        `env:"KAFKA_BROKERS"`
	PublishTimeout     time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"10s"`

	DLQ       DLQConfig
	RateLimit RateLimitConfig

	AdminJWTSecret string `env:"ADMIN_JWT_SECRET"`
	AdminJWTIssuer string `env:"ADMIN_JWT_ISSUER"`

	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	MaxBodyBytes       int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
}

// Validate rejects settings New could only fail on later.
func (c *Config) Validate() error {
	if err := config.ValidPort("PORT", c.Port); err != nil {
		return err
	}
	if c.RateLimit.PerMinute <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.DLQ.Enabled && c.DLQ.MaxAttempts <= 0 {
		return errors.New("DLQ_MAX_ATTEMPTS must be positive")
	}
	if c.AggregateCacheSize < 0 {
		return errors.New("AGGREGATE_CACHE_SIZE must not be negative")
	}
	return nil
}

type DLQConfig struct {
	Enabled       bool          `env:"DLQ_ENABLED" envDefault:"true"`
	MaxAttempts   int           `env:"DLQ_MAX_ATTEMPTS" envDefault:"5"`
	SweepInterval time.Duration `env:"DLQ_SWEEP_INTERVAL" envDefault:"60s"`
	BatchSize     int           `env:"DLQ_BATCH_SIZE" envDefault:"20"`
	Concurrency   int           `env:"DLQ_CONCURRENCY" envDefault:"4"`
	GroupID       string        `env:"DLQ_GROUP_ID"`
}

type RateLimitConfig struct {
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	PerMinute     int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
}

// Topics describes the event topics a service publishes.
type Topics struct {
	Resolve kafkax.TopicFunc
	All     []string
}

// Service is the runtime a write service mounts its command routes on.
type Service struct {
	Name      string
	Logger    *slog.Logger
	Config    Config
	Backend   *storage.Backend
	Publisher es.Publisher
	Ingestor  *dlq.Ingestor
	Sweeper   *dlq.Sweeper

	consumer *dlq.Consumer
	writer   *kafka.Writer
	rdb      *redis.Client
	limiter  httpx.Middleware
	guard    httpx.Middleware
	checks   []runtime.ReadyCheck
}

func New(ctx context.Context, name string, logger *slog.Logger, cfg Config, topics Topics) (*Service, error) {
	backend, err := storage.Open(ctx, cfg.Config)
	if err != nil {
		return nil, err
	}
	s := &Service{
		Name:    name,
		Logger:  logger,
		Config:  cfg,
		Backend: backend,
		checks:  []runtime.ReadyCheck{backend.Ready},
	}

	if cfg.DLQ.Enabled {
		s.Ingestor = dlq.NewIngestor(backend.DeadLetters, logger, dlq.IngestorConfig{MaxAttempts: cfg.DLQ.MaxAttempts})
	}

	if cfg.KafkaBrokers != "" {
		s.writer = kafkax.NewWriter(cfg.KafkaBrokers)
		s.Publisher = kafkax.NewEventPublisher(s.writer, topics.Resolve, s.publishFailed, logger)
		s.checks = append(s.checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
		if cfg.DLQ.Enabled {
			s.Sweeper = dlq.NewSweeper(backend.DeadLetters, dlq.NewKafkaRedeliverer(s.writer), logger, dlq.SweeperConfig{
				Interval:    cfg.DLQ.SweepInterval,
				BatchSize:   cfg.DLQ.BatchSize,
				MaxAttempts: cfg.DLQ.MaxAttempts,
				Concurrency: cfg.DLQ.Concurrency,
			})
			groupID := cfg.DLQ.GroupID
			if groupID == "" {
				groupID = name + "-dlq"
			}
			s.consumer = dlq.NewConsumer(logger, s.Ingestor, dlq.ConsumerConfig{
				Brokers: cfg.KafkaBrokers,
				GroupID: groupID,
				Topics:  topics.All,
			})
		}
	} else {
		logger.Warn("KAFKA_BROKERS not set, event publishing disabled")
	}

	if cfg.RateLimit.RedisAddr != "" {
		s.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		s.limiter = httpx.NewRedisRateLimiter(s.rdb, cfg.RateLimit.PerMinute, time.Minute, name).Middleware(logger, true)
		s.checks = append(s.checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return s.rdb.Ping(ctx).Err()
		}})
	} else {
		s.limiter = httpx.NewRateLimiter(cfg.RateLimit.PerMinute, time.Minute).Middleware()
	}

	if cfg.AdminJWTSecret != "" {
		s.guard = auth.RequireRole(auth.NewVerifier(cfg.AdminJWTSecret, cfg.AdminJWTIssuer), "operator", "admin")
	} else {
		logger.Warn("ADMIN_JWT_SECRET not set, dlq admin api disabled")
	}
	return s, nil
}

// RepositoryConfig is the aggregate repository setup for this service.
func (s *Service) RepositoryConfig() es.RepositoryConfig {
	return es.RepositoryConfig{
		CacheSize:      s.Config.AggregateCacheSize,
		PublishTimeout: s.Config.PublishTimeout,
		Publisher:      s.Publisher,
		Logger:         s.Logger,
	}
}

// Mux returns the base mux with health, readiness and the DLQ admin routes.
func (s *Service) Mux() *http.ServeMux {
	mux := runtime.NewBaseMuxWithReady(s.checks...)
	if s.guard != nil {
		dlq.NewAdmin(s.Backend.DeadLetters, s.Sweeper, s.Logger).Register(mux, s.guard)
	}
	return mux
}

// Commands wraps a command handler with the request rate limit.
func (s *Service) Commands(h http.Handler) http.Handler {
	return s.limiter(h)
}

// Handler applies the shared middleware chain and server instrumentation.
func (s *Service) Handler(mux *http.ServeMux) http.Handler {
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(s.Logger),
		httpx.WithRecover(s.Logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: s.Config.CORSAllowedOrigins, MaxAge: 10 * time.Minute}),
		httpx.WithBodyLimit(s.Config.MaxBodyBytes),
		httpx.WithTimeout(s.Config.RequestTimeout),
	)
	return otelhttp.NewHandler(handler, s.Name)
}

// Run starts the DLQ workers and serves HTTP until ctx is cancelled.
func (s *Service) Run(ctx context.Context, mux *http.ServeMux) error {
	ctx, stop := context.WithCancel(ctx)
	workers := runtime.NewWorkers(s.Logger)
	defer workers.Wait()
	defer stop()
	if s.Sweeper != nil {
		workers.Go(ctx, "dlq-sweeper", s.Sweeper.Run)
	}
	if s.consumer != nil {
		workers.Go(ctx, "dlq-consumer", s.consumer.Run)
	}

	srv := &http.Server{
		Addr:              ":" + s.Config.Port,
		Handler:           s.Handler(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("http server starting", "addr", srv.Addr, "storage", s.Backend.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.Logger.Error("http server shutdown error", "err", err)
	}
	s.Logger.Info("http server stopped")
	return nil
}

// Close releases the broker writer, redis and storage. The DLQ consumer
// closes its reader when Run's context ends.
func (s *Service) Close() {
	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			s.Logger.Error("kafka writer close failed", "err", err)
		}
	}
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	s.Backend.Close()
}

// publishFailed parks an event the broker did not accept.
func (s *Service) publishFailed(ctx context.Context, msg kafka.Message, cause error) {
	if s.Ingestor == nil {
		s.Logger.Error("event publish failed and dlq is disabled", "err", cause, "topic", msg.Topic, "key", string(msg.Key))
		return
	}
	rec, err := s.Ingestor.Ingest(ctx, dlq.FailureFromPublish(msg, cause))
	if err != nil {
		s.Logger.Error("dlq ingest of failed publish failed", "err", err, "topic", msg.Topic, "event_version", msg.Offset)
		return
	}
	s.Logger.Warn("event publish failed, parked in dlq", "message_id", rec.MessageID, "status", rec.Status)
}
