package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type RetryConfig struct {
	// Timeout bounds each attempt, not the whole call.
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          *slog.Logger
}

// RetryGateway bounds every gateway attempt with a timeout and retries
// transient failures with exponential backoff.
type RetryGateway struct {
	next   Gateway
	cfg    RetryConfig
	logger *slog.Logger
}

func NewRetryGateway(next Gateway, cfg RetryConfig) *RetryGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryGateway{next: next, cfg: cfg, logger: logger}
}

// Initialize is retried like Verify. A retried attempt reuses the same
// tx_ref, so the gateway sees one reference even if an earlier attempt
// reached it before timing out.
func (g *RetryGateway) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	return retry(ctx, g, "initialize", req.TxRef, func(ctx context.Context) (*InitializeResponse, error) {
		return g.next.Initialize(ctx, req)
	})
}

func (g *RetryGateway) Verify(ctx context.Context, txRef string) (*VerifyResponse, error) {
	return retry(ctx, g, "verify", txRef, func(ctx context.Context) (*VerifyResponse, error) {
		return g.next.Verify(ctx, txRef)
	})
}

func (g *RetryGateway) policy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.cfg.InitialInterval
	eb.MaxInterval = g.cfg.MaxInterval
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(g.cfg.MaxRetries)), ctx)
}

func retry[T any](ctx context.Context, g *RetryGateway, op, txRef string, call func(context.Context) (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()

		out, err := call(attemptCtx)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil || !Retryable(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}
	notify := func(err error, wait time.Duration) {
		g.logger.Warn("gateway call failed, retrying", "op", op, "tx_ref", txRef, "attempt", attempt, "wait", wait, "error", err)
	}
	return backoff.RetryNotifyWithData(operation, g.policy(ctx), notify)
}
