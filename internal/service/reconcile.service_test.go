package service

import (
	"context"
	"testing"

	"verified-checkout/internal/domain"
	"verified-checkout/internal/events"
	"verified-checkout/internal/infrastructure/payment"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testTxRef = "yetuga_u1_1000"

func pendingRecord() *domain.Payment {
	return &domain.Payment{TxRef: testTxRef, UserID: "u1", Amount: "100.00", Currency: "ETB", Status: domain.PaymentPending}
}

type reconcileDeps struct {
	txs      *TxRunnerMock
	payments *PaymentRepoMock
	users    *UserRepoMock
	gateway  *GatewayMock
	pub      *PublisherMock
}

func newReconcileDeps() *reconcileDeps {
	return &reconcileDeps{
		txs:      new(TxRunnerMock),
		payments: new(PaymentRepoMock),
		users:    new(UserRepoMock),
		gateway:  new(GatewayMock),
		pub:      new(PublisherMock),
	}
}

func (d *reconcileDeps) service() ReconcileService {
	return NewReconcileService(d.txs, d.payments, d.users, d.gateway, d.pub, discardLogger)
}

func TestReconcileService_Reconcile(t *testing.T) {
	ctx := context.Background()

	var tests = []struct {
		name        string
		payload     string
		setup       func(d *reconcileDeps)
		expected    *ReconcileResult
		expectedErr error
		assert      func(t *testing.T, d *reconcileDeps)
	}{
		{
			name:        "invalid json",
			payload:     `{"tx_ref":`,
			setup:       func(d *reconcileDeps) {},
			expectedErr: domain.ErrBadRequest,
		},
		{
			name:        "missing tx_ref",
			payload:     `{"status":"success"}`,
			setup:       func(d *reconcileDeps) {},
			expectedErr: domain.ErrBadRequest,
			assert: func(t *testing.T, d *reconcileDeps) {
				d.gateway.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
			},
		},
		{
			name:    "unknown tx_ref mutates nothing",
			payload: `{"tx_ref":"nope"}`,
			setup: func(d *reconcileDeps) {
				d.payments.On("FindByTxRef", ctx, "nope").Return((*domain.Payment)(nil), domain.ErrNotFound)
			},
			expectedErr: domain.ErrNotFound,
			assert: func(t *testing.T, d *reconcileDeps) {
				d.users.AssertNotCalled(t, "MarkVerified", mock.Anything, mock.Anything, mock.Anything)
				d.payments.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name:    "store failure on lookup",
			payload: `{"tx_ref":"` + testTxRef + `"}`,
			setup: func(d *reconcileDeps) {
				d.payments.On("FindByTxRef", ctx, testTxRef).Return((*domain.Payment)(nil), domain.ErrConflict)
			},
			expectedErr: domain.ErrInternal,
		},
		{
			name:    "gateway verify failure",
			payload: `{"tx_ref":"` + testTxRef + `"}`,
			setup: func(d *reconcileDeps) {
				d.payments.On("FindByTxRef", ctx, testTxRef).Return(pendingRecord(), nil)
				d.gateway.On("Verify", ctx, testTxRef).Return((*payment.VerifyResponse)(nil), payment.ErrServer)
			},
			expectedErr: domain.ErrGateway,
		},
		{
			name:    "success verifies the stored owner, not the payload's",
			payload: `{"tx_ref":"` + testTxRef + `","status":"failed","userId":"attacker"}`,
			setup: func(d *reconcileDeps) {
				d.payments.On("FindByTxRef", ctx, testTxRef).Return(pendingRecord(), nil)
				d.gateway.On("Verify", ctx, testTxRef).Return(verifyWith("success", "success"), nil)
				d.txs.On("WithinTx", ctx)
				d.users.On("MarkVerified", ctx, mock.Anything, "u1").Return(nil)
				d.payments.On("MarkSucceeded", ctx, mock.Anything, testTxRef).Return(true, nil)
				d.pub.On("Publish", ctx, mock.MatchedBy(func(e events.OutcomeEvent) bool {
					return e.TxRef == testTxRef && e.UserID == "u1" && e.Verified
				})).Return(nil)
			},
			expected: &ReconcileResult{TxRef: testTxRef, UserID: "u1", Status: domain.PaymentSuccess, Applied: true},
			assert: func(t *testing.T, d *reconcileDeps) {
				d.users.AssertNotCalled(t, "MarkVerified", mock.Anything, mock.Anything, "attacker")
				d.pub.AssertNumberOfCalls(t, "Publish", 1)
			},
		},
		{
			name:    "replayed success is idempotent and silent",
			payload: `{"tx_ref":"` + testTxRef + `"}`,
			setup: func(d *reconcileDeps) {
				rec := pendingRecord()
				rec.Status = domain.PaymentSuccess
				d.payments.On("FindByTxRef", ctx, testTxRef).Return(rec, nil)
				d.gateway.On("Verify", ctx, testTxRef).Return(verifyWith("success", "success"), nil)
				d.txs.On("WithinTx", ctx)
				d.users.On("MarkVerified", ctx, mock.Anything, "u1").Return(nil)
				d.payments.On("MarkSucceeded", ctx, mock.Anything, testTxRef).Return(false, nil)
			},
			expected: &ReconcileResult{TxRef: testTxRef, UserID: "u1", Status: domain.PaymentSuccess, Applied: false},
			assert: func(t *testing.T, d *reconcileDeps) {
				d.pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
			},
		},
		{
			name:    "nested status decides, not top level",
			payload: `{"tx_ref":"` + testTxRef + `"}`,
			setup: func(d *reconcileDeps) {
				d.payments.On("FindByTxRef", ctx, testTxRef).Return(pendingRecord(), nil)
				d.gateway.On("Verify", ctx, testTxRef).Return(verifyWith("success", "declined"), nil)
				d.payments.On("MarkFailed", ctx, mock.Anything, testTxRef, domain.PaymentStatus("declined")).Return(true, nil)
				d.pub.On("Publish", ctx, mock.Anything).Return(nil)
			},
			expected: &ReconcileResult{TxRef: testTxRef, UserID: "u1", Status: "declined", Applied: true},
			assert: func(t *testing.T, d *reconcileDeps) {
				d.users.AssertNotCalled(t, "MarkVerified", mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name:    "missing gateway status falls back to sentinel",
			payload: `{"tx_ref":"` + testTxRef + `"}`,
			setup: func(d *reconcileDeps) {
				d.payments.On("FindByTxRef", ctx, testTxRef).Return(pendingRecord(), nil)
				d.gateway.On("Verify", ctx, testTxRef).Return(verifyWith("failed", ""), nil)
				d.payments.On("MarkFailed", ctx, mock.Anything, testTxRef, domain.PaymentFailedVerification).Return(true, nil)
				d.pub.On("Publish", ctx, mock.Anything).Return(nil)
			},
			expected: &ReconcileResult{TxRef: testTxRef, UserID: "u1", Status: domain.PaymentFailedVerification, Applied: true},
		},
		{
			name:    "nested success on a failed reply is a failed verification",
			payload: `{"tx_ref":"` + testTxRef + `"}`,
			setup: func(d *reconcileDeps) {
				d.payments.On("FindByTxRef", ctx, testTxRef).Return(pendingRecord(), nil)
				d.gateway.On("Verify", ctx, testTxRef).Return(verifyWith("failed", "success"), nil)
				d.payments.On("MarkFailed", ctx, mock.Anything, testTxRef, domain.PaymentFailedVerification).Return(true, nil)
				d.pub.On("Publish", ctx, mock.Anything).Return(nil)
			},
			expected: &ReconcileResult{TxRef: testTxRef, UserID: "u1", Status: domain.PaymentFailedVerification, Applied: true},
			assert: func(t *testing.T, d *reconcileDeps) {
				d.users.AssertNotCalled(t, "MarkVerified", mock.Anything, mock.Anything, mock.Anything)
				d.payments.AssertNotCalled(t, "MarkSucceeded", mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name:    "stale failure does not downgrade success",
			payload: `{"tx_ref":"` + testTxRef + `"}`,
			setup: func(d *reconcileDeps) {
				rec := pendingRecord()
				rec.Status = domain.PaymentSuccess
				d.payments.On("FindByTxRef", ctx, testTxRef).Return(rec, nil)
				d.gateway.On("Verify", ctx, testTxRef).Return(verifyWith("success", "failed"), nil)
				d.payments.On("MarkFailed", ctx, mock.Anything, testTxRef, domain.PaymentStatus("failed")).Return(false, nil)
			},
			expected: &ReconcileResult{TxRef: testTxRef, UserID: "u1", Status: domain.PaymentSuccess, Applied: false},
		},
		{
			name:    "gateway still pending writes nothing",
			payload: `{"trx_ref":"` + testTxRef + `"}`,
			setup: func(d *reconcileDeps) {
				d.payments.On("FindByTxRef", ctx, testTxRef).Return(pendingRecord(), nil)
				d.gateway.On("Verify", ctx, testTxRef).Return(verifyWith("success", "pending"), nil)
			},
			expected: &ReconcileResult{TxRef: testTxRef, UserID: "u1", Status: domain.PaymentPending, InProgress: true},
			assert: func(t *testing.T, d *reconcileDeps) {
				d.payments.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
				d.payments.AssertNotCalled(t, "MarkSucceeded", mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name:    "write failure is internal",
			payload: `{"tx_ref":"` + testTxRef + `"}`,
			setup: func(d *reconcileDeps) {
				d.payments.On("FindByTxRef", ctx, testTxRef).Return(pendingRecord(), nil)
				d.gateway.On("Verify", ctx, testTxRef).Return(verifyWith("success", "success"), nil)
				d.txs.On("WithinTx", ctx)
				d.users.On("MarkVerified", ctx, mock.Anything, "u1").Return(domain.ErrConflict)
			},
			expectedErr: domain.ErrInternal,
		},
		{
			name:    "publish failure does not fail reconciliation",
			payload: `{"tx_ref":"` + testTxRef + `"}`,
			setup: func(d *reconcileDeps) {
				d.payments.On("FindByTxRef", ctx, testTxRef).Return(pendingRecord(), nil)
				d.gateway.On("Verify", ctx, testTxRef).Return(verifyWith("success", "cancelled"), nil)
				d.payments.On("MarkFailed", ctx, mock.Anything, testTxRef, domain.PaymentStatus("cancelled")).Return(true, nil)
				d.pub.On("Publish", ctx, mock.Anything).Return(context.DeadlineExceeded)
			},
			expected: &ReconcileResult{TxRef: testTxRef, UserID: "u1", Status: "cancelled", Applied: true},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := newReconcileDeps()
			tt.setup(d)

			res, err := d.service().Reconcile(ctx, []byte(tt.payload))
			if tt.assert != nil {
				tt.assert(t, d)
			}
			if tt.expectedErr != nil {
				require.Error(t, err)
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, res)
		})
	}
}

func TestReconcileService_LostRaceReportsWinner(t *testing.T) {
	ctx := context.Background()
	d := newReconcileDeps()

	won := pendingRecord()
	won.Status = domain.PaymentSuccess
	d.payments.On("FindByTxRef", ctx, testTxRef).Return(pendingRecord(), nil).Once()
	d.payments.On("FindByTxRef", ctx, testTxRef).Return(won, nil).Once()
	d.gateway.On("Verify", ctx, testTxRef).Return(verifyWith("success", "failed"), nil)
	d.payments.On("MarkFailed", ctx, mock.Anything, testTxRef, domain.PaymentStatus("failed")).Return(false, nil)

	res, err := d.service().ReconcileTxRef(ctx, testTxRef)
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.Equal(t, domain.PaymentSuccess, res.Status)
}

func TestTxRefFromPayload(t *testing.T) {
	ref, err := TxRefFromPayload([]byte(`{"tx_ref":" t1 ","trx_ref":"t2"}`))
	require.NoError(t, err)
	require.Equal(t, "t1", ref)

	ref, err = TxRefFromPayload([]byte(`{"trx_ref":"t2"}`))
	require.NoError(t, err)
	require.Equal(t, "t2", ref)

	_, err = TxRefFromPayload([]byte(`null`))
	require.ErrorIs(t, err, domain.ErrBadRequest)

	_, err = TxRefFromPayload([]byte(`["t1"]`))
	require.ErrorIs(t, err, domain.ErrBadRequest)
}
