package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"verified-checkout/internal/domain"
	"verified-checkout/internal/events"
	"verified-checkout/internal/infrastructure/payment"
	"verified-checkout/internal/repo"
)

type ReconcileService interface {
	// Reconcile handles an already-authenticated notification body.
	Reconcile(ctx context.Context, payload []byte) (*ReconcileResult, error)
	// ReconcileTxRef re-derives the outcome for a known reference.
	ReconcileTxRef(ctx context.Context, txRef string) (*ReconcileResult, error)
}

type ReconcileResult struct {
	TxRef  string
	UserID string
	Status domain.PaymentStatus
	// Applied is false when the stored record already reflected the outcome
	// or the guard refused the transition.
	Applied bool
	// InProgress means the gateway has no outcome yet; nothing was written.
	InProgress bool
}

type reconcileService struct {
	txs         repo.TxRunner
	paymentRepo repo.PaymentRepo
	userRepo    repo.UserRepo
	gateway     payment.Gateway
	publisher   events.Publisher
	logger      *slog.Logger
}

func NewReconcileService(
	txs repo.TxRunner,
	paymentRepo repo.PaymentRepo,
	userRepo repo.UserRepo,
	gateway payment.Gateway,
	publisher events.Publisher,
	logger *slog.Logger,
) ReconcileService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &reconcileService{
		txs:         txs,
		paymentRepo: paymentRepo,
		userRepo:    userRepo,
		gateway:     gateway,
		publisher:   publisher,
		logger:      logger,
	}
}

type notification struct {
	TxRef  string `json:"tx_ref"`
	TrxRef string `json:"trx_ref"`
}

// TxRefFromPayload extracts the reference. The notification's own status
// and user fields are deliberately not read.
func TxRefFromPayload(payload []byte) (string, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return "", fmt.Errorf("%w: payload is not a JSON object: %w", domain.ErrBadRequest, err)
	}
	ref := strings.TrimSpace(n.TxRef)
	if ref == "" {
		ref = strings.TrimSpace(n.TrxRef)
	}
	if ref == "" {
		return "", fmt.Errorf("%w: tx_ref is required", domain.ErrBadRequest)
	}
	return ref, nil
}

func (s *reconcileService) Reconcile(ctx context.Context, payload []byte) (*ReconcileResult, error) {
	txRef, err := TxRefFromPayload(payload)
	if err != nil {
		s.logger.Warn("rejected notification payload", "error", err)
		return nil, err
	}
	return s.ReconcileTxRef(ctx, txRef)
}

func (s *reconcileService) ReconcileTxRef(ctx context.Context, txRef string) (*ReconcileResult, error) {
	record, err := s.paymentRepo.FindByTxRef(ctx, txRef)
	if err != nil {
		if domain.IsNotFound(err) {
			s.logger.Warn("notification for unknown payment", "tx_ref", txRef)
			return nil, err
		}
		s.logger.Error("load payment failed", "tx_ref", txRef, "error", err)
		return nil, fmt.Errorf("%w: load %s: %w", domain.ErrInternal, txRef, err)
	}

	verify, err := s.gateway.Verify(ctx, txRef)
	if err != nil {
		s.logger.Error("gateway verify failed", "tx_ref", txRef, "error", err)
		return nil, fmt.Errorf("%w: verify %s: %w", domain.ErrGateway, txRef, err)
	}

	result := &ReconcileResult{TxRef: txRef, UserID: record.UserID}
	switch {
	case verify.Succeeded():
		err = s.applySuccess(ctx, record, result)
	case verify.InProgress():
		result.Status = record.Status
		result.InProgress = true
		s.logger.Info("payment still in progress at gateway", "tx_ref", txRef, "stored_status", record.Status)
		return result, nil
	default:
		err = s.applyFailure(ctx, record, domain.OutcomeStatus(verify.Data.Status, false), result)
	}
	if err != nil {
		s.logger.Error("record reconciliation outcome failed", "tx_ref", txRef, "user_id", record.UserID, "error", err)
		return nil, fmt.Errorf("%w: record outcome %s: %w", domain.ErrInternal, txRef, err)
	}

	s.logger.Info("payment reconciled",
		"tx_ref", txRef,
		"user_id", record.UserID,
		"previous_status", record.Status,
		"status", result.Status,
		"applied", result.Applied,
	)

	if result.Applied {
		evt := events.NewOutcomeEvent(txRef, record.UserID, result.Status)
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.Error("publish outcome event failed", "tx_ref", txRef, "event_id", evt.ID, "error", err)
		}
	}
	return result, nil
}

// applySuccess marks the owner verified and the record successful in one
// transaction. Both writes are idempotent, so a replay is harmless.
func (s *reconcileService) applySuccess(ctx context.Context, record *domain.Payment, result *ReconcileResult) error {
	if record.Status.IsTerminal() && record.Status != domain.PaymentSuccess {
		s.logger.Warn("gateway reports success for a failed payment, upgrading", "tx_ref", record.TxRef, "stored_status", record.Status)
	}
	result.Status = domain.PaymentSuccess
	return s.txs.WithinTx(ctx, func(tx *sql.Tx) error {
		if err := s.userRepo.MarkVerified(ctx, tx, record.UserID); err != nil {
			return err
		}
		changed, err := s.paymentRepo.MarkSucceeded(ctx, tx, record.TxRef)
		if err != nil {
			return err
		}
		result.Applied = changed
		return nil
	})
}

// applyFailure only moves a pending record; terminal records keep their status.
func (s *reconcileService) applyFailure(ctx context.Context, record *domain.Payment, status domain.PaymentStatus, result *ReconcileResult) error {
	changed, err := s.paymentRepo.MarkFailed(ctx, nil, record.TxRef, status)
	if err != nil {
		return err
	}
	result.Applied = changed
	result.Status = status
	if !changed {
		result.Status = record.Status
		if record.Status == domain.PaymentPending {
			// Lost a race with another delivery; report what won.
			if current, err := s.paymentRepo.FindByTxRef(ctx, record.TxRef); err == nil {
				result.Status = current.Status
			}
		}
	}
	return nil
}
