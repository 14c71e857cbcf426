package payment

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type GatewayMock struct {
	mock.Mock
	Gateway
}

func (m *GatewayMock) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*InitializeResponse)
	return resp, args.Error(1)
}

func (m *GatewayMock) Verify(ctx context.Context, txRef string) (*VerifyResponse, error) {
	args := m.Called(ctx, txRef)
	resp, _ := args.Get(0).(*VerifyResponse)
	return resp, args.Error(1)
}
