package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"verified-checkout/internal/config"
	"verified-checkout/internal/database"
	"verified-checkout/internal/events"
	"verified-checkout/internal/infrastructure/payment"
	"verified-checkout/internal/repo"
	"verified-checkout/internal/service"
	"verified-checkout/internal/worker"

	"github.com/nats-io/nats.go"
)

// app owns every long-lived client. Components receive what they need at
// construction; nothing is reached through package globals.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db        database.Service
	nc        *nats.Conn
	publisher events.Publisher
	gateway   payment.Gateway
	mock      *payment.MockGateway

	payments   repo.PaymentRepo
	users      repo.UserRepo
	sessions   service.SessionService
	reconciler service.ReconcileService
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg)
	return cfg, logger, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pool, err := database.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, db: database.New(pool, logger)}
	logger.Info("connected to database")

	a.publisher = events.Noop{}
	if cfg.Nats.URL != "" {
		nc, err := events.Connect(cfg.Nats.URL, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.nc = nc
		a.publisher = events.NewNatsPublisher(nc, cfg.Nats.SubjectPrefix)
		logger.Info("publishing outcome events", "url", cfg.Nats.URL, "prefix", cfg.Nats.SubjectPrefix)
	}

	a.buildGateway()

	a.payments = repo.NewPaymentRepo(pool)
	a.users = repo.NewUserRepo(pool)
	a.sessions = service.NewSessionService(a.payments, a.gateway, service.SessionConfig{
		Namespace:     cfg.TxRefNamespace,
		PublicBaseURL: cfg.PublicBaseURL,
		ReturnURL:     cfg.Gateway.ReturnURL,
	}, logger)
	a.reconciler = service.NewReconcileService(repo.NewTxRunner(pool), a.payments, a.users, a.gateway, a.publisher, logger)
	return a, nil
}

// buildGateway layers retry over the circuit breaker over the transport, so
// an open breaker fails fast instead of being retried.
func (a *app) buildGateway() {
	gc := a.cfg.Gateway

	var base payment.Gateway
	switch gc.Mode {
	case "mock":
		a.mock = payment.NewMockGateway("success")
		base = a.mock
		a.logger.Warn("using in-memory mock gateway")
	default:
		base = payment.NewChapaClient(&http.Client{}, payment.ChapaConfig{
			BaseURL:   gc.BaseURL,
			SecretKey: gc.SecretKey,
			Logger:    a.logger,
		})
	}

	breaker := payment.NewCircuitBreakerGateway(base, payment.CircuitBreakerConfig{
		FailureThreshold: gc.FailureThreshold,
		OpenTimeout:      gc.OpenTimeout,
	})
	a.gateway = payment.NewRetryGateway(breaker, payment.RetryConfig{
		Timeout:    gc.Timeout,
		MaxRetries: gc.MaxRetries,
		Logger:     a.logger,
	})
}

func (a *app) sweeper() *worker.ReconciliationWorker {
	sc := a.cfg.Sweeper
	return worker.NewReconciliationWorker(a.payments, a.reconciler, sc.Interval, sc.OlderThan, sc.BatchSize, a.logger)
}

func (a *app) Close() {
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.logger.Error("drain nats connection", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("close database", "error", err)
		}
	}
}
