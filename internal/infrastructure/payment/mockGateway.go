package payment

import (
	"context"
	"fmt"
	"sync"
)

// MockGateway is an in-memory gateway for local runs and tests. Sessions
// verify with DefaultOutcome until Complete records a different one.
type MockGateway struct {
	mu             sync.RWMutex
	sessions       map[string]InitializeRequest
	outcomes       map[string]string
	defaultOutcome string
	initErr        error
	verifyErr      error
	initCalls      int
	verifyCalls    int
}

func NewMockGateway(defaultOutcome string) *MockGateway {
	return &MockGateway{
		sessions:       make(map[string]InitializeRequest),
		outcomes:       make(map[string]string),
		defaultOutcome: defaultOutcome,
	}
}

func (g *MockGateway) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.initErr != nil {
		return nil, g.initErr
	}

	resp := &InitializeResponse{Status: statusSuccess, Message: "Hosted Link"}
	resp.Data.CheckoutURL = fmt.Sprintf("https://checkout.mock.local/%s", req.TxRef)
	g.sessions[req.TxRef] = req
	return resp, nil
}

func (g *MockGateway) Verify(ctx context.Context, txRef string) (*VerifyResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}

	if _, exists := g.sessions[txRef]; !exists {
		return &VerifyResponse{Status: "failed", Message: "Invalid transaction or Transaction not found"}, nil
	}

	outcome, ok := g.outcomes[txRef]
	if !ok {
		outcome = g.defaultOutcome
	}
	return &VerifyResponse{
		Status:  statusSuccess,
		Message: "Payment details",
		Data:    VerifyData{Status: outcome, TxRef: txRef, Reference: "mock-" + txRef},
	}, nil
}

// Complete records what the payer did on the hosted page.
func (g *MockGateway) Complete(txRef, outcome string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.sessions[txRef]; !exists {
		g.sessions[txRef] = InitializeRequest{TxRef: txRef}
	}
	g.outcomes[txRef] = outcome
}

func (g *MockGateway) FailInitialize(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initErr = err
}

func (g *MockGateway) FailVerify(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyErr = err
}

func (g *MockGateway) Session(txRef string) (InitializeRequest, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	req, ok := g.sessions[txRef]
	return req, ok
}

func (g *MockGateway) Calls() (initialize, verify int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.initCalls, g.verifyCalls
}
