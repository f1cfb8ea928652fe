package main

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/storefront/libs/config"
	otelx "github.com/md-rashed-zaman/storefront/libs/otel"
	"github.com/md-rashed-zaman/storefront/libs/runtime"
	"github.com/md-rashed-zaman/storefront/libs/writeside"
	"github.com/md-rashed-zaman/storefront/services/vendor-write/internal/app"
	"github.com/md-rashed-zaman/storefront/services/vendor-write/internal/handlers"
	"github.com/md-rashed-zaman/storefront/services/vendor-write/internal/vendor"
)

func main() {
	service := config.String("SERVICE_NAME", "vendor-write")
	logger := runtime.NewLogger(service)

	cfg := writeside.Config{}
	if err := config.Parse(&cfg); err != nil {
		panic(err)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelCfg, err := otelx.ConfigFromEnv(service)
	if err != nil {
		panic(err)
	}
	otelShutdown, err := otelx.Setup(ctx, otelCfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	svc, err := writeside.New(ctx, service, logger, cfg, writeside.Topics{Resolve: vendor.Topic, All: vendor.Topics()})
	if err != nil {
		logger.Error("service setup failed", "err", err)
		panic(err)
	}
	defer svc.Close()

	repo, err := app.NewRepository(svc.Backend.Events, svc.RepositoryConfig())
	if err != nil {
		panic(err)
	}

	mux := svc.Mux()
	handlers.New(app.NewService(repo), logger).Register(mux, svc.Commands)

	if err := svc.Run(ctx, mux); err != nil {
		logger.Error("http server error", "err", err)
	}
}
