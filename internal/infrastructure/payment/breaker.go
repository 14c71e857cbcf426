package payment

import (
	"context"
	"sync"
	"time"
)

type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
	IsFailure        func(error) bool
}

// CircuitBreakerGateway stops calling the gateway after FailureThreshold
// consecutive upstream failures and lets a single trial call through once
// OpenTimeout has passed.
type CircuitBreakerGateway struct {
	next Gateway
	cfg  CircuitBreakerConfig
	now  func() time.Time

	mu           sync.Mutex
	state        int
	failures     int
	successes    int
	openedAt     time.Time
	halfInFlight bool
}

const (
	cbClosed = iota
	cbOpen
	cbHalfOpen
)

func NewCircuitBreakerGateway(next Gateway, cfg CircuitBreakerConfig) *CircuitBreakerGateway {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = Retryable
	}
	return &CircuitBreakerGateway{next: next, cfg: cfg, now: time.Now, state: cbClosed}
}

func (g *CircuitBreakerGateway) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	if err := g.beforeCall(); err != nil {
		return nil, err
	}
	resp, err := g.next.Initialize(ctx, req)
	g.afterCall(err)
	return resp, err
}

func (g *CircuitBreakerGateway) Verify(ctx context.Context, txRef string) (*VerifyResponse, error) {
	if err := g.beforeCall(); err != nil {
		return nil, err
	}
	resp, err := g.next.Verify(ctx, txRef)
	g.afterCall(err)
	return resp, err
}

// Open reports whether calls are currently being short-circuited.
func (g *CircuitBreakerGateway) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == cbOpen && g.now().Sub(g.openedAt) < g.cfg.OpenTimeout
}

func (g *CircuitBreakerGateway) beforeCall() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case cbClosed:
		return nil
	case cbOpen:
		if g.now().Sub(g.openedAt) >= g.cfg.OpenTimeout {
			g.state = cbHalfOpen
			g.successes = 0
			g.halfInFlight = false
		} else {
			return ErrCircuitOpen
		}
		fallthrough
	case cbHalfOpen:
		if g.halfInFlight {
			return ErrCircuitOpen
		}
		g.halfInFlight = true
		return nil
	default:
		return ErrCircuitOpen
	}
}

func (g *CircuitBreakerGateway) afterCall(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == cbHalfOpen {
		g.halfInFlight = false
	}

	if err == nil || !g.cfg.IsFailure(err) {
		switch g.state {
		case cbClosed:
			g.failures = 0
		case cbHalfOpen:
			g.successes++
			if g.successes >= g.cfg.SuccessThreshold {
				g.state = cbClosed
				g.failures = 0
				g.successes = 0
			}
		}
		return
	}

	switch g.state {
	case cbClosed:
		g.failures++
		if g.failures >= g.cfg.FailureThreshold {
			g.trip()
		}
	case cbHalfOpen:
		g.trip()
	}
}

func (g *CircuitBreakerGateway) trip() {
	g.state = cbOpen
	g.openedAt = g.now()
	g.failures = g.cfg.FailureThreshold
	g.successes = 0
	g.halfInFlight = false
}
