// Package main запускает HTTP-сервер сервиса приёма заказов.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/albinvayalil/emartCheck/internal/cache"
	"github.com/albinvayalil/emartCheck/internal/config"
	"github.com/albinvayalil/emartCheck/internal/dispatch"
	"github.com/albinvayalil/emartCheck/internal/handler"
	"github.com/albinvayalil/emartCheck/internal/ledger"
	"github.com/albinvayalil/emartCheck/internal/messaging"
	"github.com/albinvayalil/emartCheck/internal/metrics"
	"github.com/albinvayalil/emartCheck/internal/publisher"
	"github.com/albinvayalil/emartCheck/internal/repository"
	"github.com/albinvayalil/emartCheck/internal/scenario"
	"github.com/albinvayalil/emartCheck/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := repository.NewPostgresRepository(ctx, cfg.DatabaseURI, logger)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var repo service.Repository = pg
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisTTL)
		if err != nil {
			sugar.Warnw("redis unavailable, user details are not cached", "addr", cfg.RedisAddr, "error", err.Error())
		} else {
			repo = repository.NewCachedRepository(pg, rc, logger)
		}
	}

	scenarios, err := scenario.Load(cfg.ScenarioConfig)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		sugar.Warnw("scenario config not found, all users follow the normal flow", "path", cfg.ScenarioConfig)
		scenarios = scenario.New(nil, scenario.DefaultLoginDelay)
	case err != nil:
		sugar.Fatalw("scenario config error", "error", err.Error())
	default:
		sugar.Infow("scenario config loaded", "path", cfg.ScenarioConfig, "users", scenarios.Len())
	}

	var (
		m              *metrics.Metrics
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		metricsHandler = m.Handler()
	}

	ledgerClient := ledger.NewClient(cfg.LedgerURL, cfg.LedgerTimeout)
	dispatcher := dispatch.NewDispatcher(ledgerClient, logger,
		dispatch.WithTrailingBackoff(cfg.LedgerTrailingBackoff),
		dispatch.WithRateLimit(cfg.LedgerRateLimit),
		dispatch.WithMetrics(m),
	)

	opts := []service.Option{
		service.WithScenarios(scenarios),
		service.WithWorkers(cfg.DispatchWorkers),
		service.WithMetrics(m),
	}

	if cfg.AMQPURL != "" {
		broker, err := messaging.NewRabbitMQ(cfg.AMQPURL)
		if err != nil {
			sugar.Warnw("rabbitmq unavailable, exhausted records are only logged", "error", err.Error())
		} else {
			defer broker.Close()

			sink, err := publisher.NewExhaustedPublisher(broker)
			if err != nil {
				sugar.Fatalw("exhausted queue declaration error", "error", err.Error())
			}
			opts = append(opts, service.WithExhaustedSink(sink))
		}
	}

	svc := service.NewService(repo, dispatcher, logger, opts...)
	defer svc.Close()

	h := handler.NewHandler(svc, logger, metricsHandler)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting order processor",
			"addr", cfg.RunAddress,
			"ledger", cfg.LedgerURL,
			"workers", cfg.DispatchWorkers,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
