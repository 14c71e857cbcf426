package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/url"
	"regexp"
	"strings"
	"time"

	"verified-checkout/internal/domain"
	"verified-checkout/internal/infrastructure/payment"
	"verified-checkout/internal/repo"

	"github.com/google/uuid"
)

type SessionService interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error)
}

type CreateSessionRequest struct {
	Amount      string
	Currency    string
	Email       string
	FirstName   string
	LastName    string
	UserID      string
	Description string
	Phone       string
}

type Session struct {
	CheckoutURL string
	TxRef       string
}

type SessionConfig struct {
	Namespace     string
	PublicBaseURL string
	ReturnURL     string
}

type sessionService struct {
	paymentRepo repo.PaymentRepo
	gateway     payment.Gateway
	cfg         SessionConfig
	logger      *slog.Logger
	now         func() time.Time
	suffix      func() string
}

func NewSessionService(
	paymentRepo repo.PaymentRepo,
	gateway payment.Gateway,
	cfg SessionConfig,
	logger *slog.Logger,
) SessionService {
	return &sessionService{
		paymentRepo: paymentRepo,
		gateway:     gateway,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		suffix:      randomSuffix,
	}
}

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

func (r CreateSessionRequest) normalize() CreateSessionRequest {
	r.Amount = strings.TrimSpace(r.Amount)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	r.Email = strings.TrimSpace(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.UserID = strings.TrimSpace(r.UserID)
	r.Description = strings.TrimSpace(r.Description)
	r.Phone = strings.TrimSpace(r.Phone)
	return r
}

// Validate reports every missing required field at once.
func (r CreateSessionRequest) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"amount", r.Amount},
		{"currency", r.Currency},
		{"email", r.Email},
		{"firstName", r.FirstName},
		{"lastName", r.LastName},
		{"userId", r.UserID},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", domain.ErrValidation, strings.Join(missing, ", "))
	}

	if !decimalPattern.MatchString(r.Amount) {
		return fmt.Errorf("%w: amount %q is not a decimal number", domain.ErrValidation, r.Amount)
	}
	if amt, ok := new(big.Rat).SetString(r.Amount); !ok || amt.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", domain.ErrValidation)
	}
	return nil
}

func (s *sessionService) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	req = req.normalize()
	if err := req.Validate(); err != nil {
		s.logger.Info("rejected payment session request", "user_id", req.UserID, "error", err)
		return nil, err
	}

	txRef := s.newTxRef(req.UserID)
	initReq := payment.InitializeRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		TxRef:       txRef,
		CallbackURL: s.callbackURL(req.UserID, txRef),
		ReturnURL:   s.cfg.ReturnURL,
	}
	if req.Description != "" {
		initReq.Customization = &payment.Customization{Title: "Account verification", Description: req.Description}
	}

	resp, err := s.gateway.Initialize(ctx, initReq)
	if err != nil {
		s.logger.Error("gateway initialize failed", "tx_ref", txRef, "user_id", req.UserID, "error", err)
		return nil, fmt.Errorf("%w: initialize %s: %w", domain.ErrGateway, txRef, err)
	}
	if !resp.OK() {
		s.logger.Error("gateway rejected session", "tx_ref", txRef, "user_id", req.UserID, "status", resp.Status, "message", resp.Message)
		return nil, fmt.Errorf("%w: initialize %s: %s", domain.ErrGateway, txRef, rejectionReason(resp))
	}

	record := &domain.Payment{
		TxRef:       txRef,
		UserID:      req.UserID,
		DisplayName: strings.TrimSpace(req.FirstName + " " + req.LastName),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Status:      domain.PaymentPending,
	}
	if err := s.paymentRepo.CreatePayment(ctx, nil, record); err != nil {
		// The checkout session exists on the gateway but has no record; the
		// webhook for it will 404 until an operator intervenes.
		s.logger.Error("persist payment after gateway session failed", "tx_ref", txRef, "user_id", req.UserID, "checkout_url", resp.Data.CheckoutURL, "error", err)
		return nil, fmt.Errorf("%w: persist %s: %w", domain.ErrInternal, txRef, err)
	}

	s.logger.Info("payment session created", "tx_ref", txRef, "user_id", req.UserID, "amount", req.Amount, "currency", req.Currency)
	return &Session{CheckoutURL: resp.Data.CheckoutURL, TxRef: txRef}, nil
}

// newTxRef combines the namespace, the user and the creation time with a
// random suffix so concurrent requests from one user in the same
// millisecond still get distinct references.
func (s *sessionService) newTxRef(userID string) string {
	return fmt.Sprintf("%s_%s_%d_%s", s.cfg.Namespace, userID, s.now().UnixMilli(), s.suffix())
}

func (s *sessionService) callbackURL(userID, txRef string) string {
	q := url.Values{}
	q.Set("userId", userID)
	q.Set("txRef", txRef)
	return s.cfg.PublicBaseURL + "/webhook?" + q.Encode()
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func rejectionReason(resp *payment.InitializeResponse) string {
	switch {
	case resp == nil:
		return "empty response"
	case resp.Message != "":
		return resp.Message
	case resp.Data.CheckoutURL == "":
		return "no checkout url in response"
	default:
		return "status " + resp.Status
	}
}
