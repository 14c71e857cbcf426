package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"time"

	"verified-checkout/internal/domain"
	"verified-checkout/internal/events"
	"verified-checkout/internal/infrastructure/payment"
	"verified-checkout/internal/repo"

	"github.com/stretchr/testify/mock"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type PaymentRepoMock struct {
	mock.Mock
	repo.PaymentRepo
}

func (m *PaymentRepoMock) CreatePayment(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	args := m.Called(ctx, tx, p)
	return args.Error(0)
}

func (m *PaymentRepoMock) FindByTxRef(ctx context.Context, txRef string) (*domain.Payment, error) {
	args := m.Called(ctx, txRef)
	p, _ := args.Get(0).(*domain.Payment)
	return p, args.Error(1)
}

func (m *PaymentRepoMock) MarkSucceeded(ctx context.Context, tx *sql.Tx, txRef string) (bool, error) {
	args := m.Called(ctx, tx, txRef)
	return args.Bool(0), args.Error(1)
}

func (m *PaymentRepoMock) MarkFailed(ctx context.Context, tx *sql.Tx, txRef string, status domain.PaymentStatus) (bool, error) {
	args := m.Called(ctx, tx, txRef, status)
	return args.Bool(0), args.Error(1)
}

func (m *PaymentRepoMock) FindPendingBefore(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error) {
	args := m.Called(ctx, before, limit)
	p, _ := args.Get(0).([]domain.Payment)
	return p, args.Error(1)
}

type UserRepoMock struct {
	mock.Mock
	repo.UserRepo
}

func (m *UserRepoMock) MarkVerified(ctx context.Context, tx *sql.Tx, userID string) error {
	args := m.Called(ctx, tx, userID)
	return args.Error(0)
}

// TxRunnerMock runs fn with a nil tx and returns its error.
type TxRunnerMock struct {
	mock.Mock
}

func (m *TxRunnerMock) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	m.Called(ctx)
	return fn(nil)
}

type GatewayMock struct {
	mock.Mock
	payment.Gateway
}

func (m *GatewayMock) Initialize(ctx context.Context, req payment.InitializeRequest) (*payment.InitializeResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*payment.InitializeResponse)
	return resp, args.Error(1)
}

func (m *GatewayMock) Verify(ctx context.Context, txRef string) (*payment.VerifyResponse, error) {
	args := m.Called(ctx, txRef)
	resp, _ := args.Get(0).(*payment.VerifyResponse)
	return resp, args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, evt events.OutcomeEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func initOK(url string) *payment.InitializeResponse {
	resp := &payment.InitializeResponse{Status: "success", Message: "Hosted Link"}
	resp.Data.CheckoutURL = url
	return resp
}

func verifyWith(status, outcome string) *payment.VerifyResponse {
	return &payment.VerifyResponse{Status: status, Data: payment.VerifyData{Status: outcome}}
}
