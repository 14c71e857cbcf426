package payment

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrTimeout     = errors.New("gateway timeout")
	ErrUnavailable = errors.New("gateway unreachable")
	ErrServer      = errors.New("gateway 5xx")
	ErrClient      = errors.New("gateway 4xx")
	ErrThrottled   = errors.New("gateway rate limited")
	ErrMalformed   = errors.New("gateway malformed response")
	ErrCircuitOpen = errors.New("circuit open")
)

const statusSuccess = "success"

// Gateway is the hosted-checkout provider. Initialize opens a checkout
// session for a caller-supplied reference; Verify is the authoritative
// answer about what happened to it.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error)
	Verify(ctx context.Context, txRef string) (*VerifyResponse, error)
}

type InitializeRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone_number,omitempty"`
	TxRef       string `json:"tx_ref"`
	CallbackURL string `json:"callback_url"`
	ReturnURL   string `json:"return_url,omitempty"`

	Customization *Customization `json:"customization,omitempty"`
}

type Customization struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type InitializeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		CheckoutURL string `json:"checkout_url"`
	} `json:"data"`
}

// OK reports whether the session exists on the gateway side.
func (r *InitializeResponse) OK() bool {
	return r != nil && strings.EqualFold(r.Status, statusSuccess) && r.Data.CheckoutURL != ""
}

type VerifyResponse struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	Data    VerifyData `json:"data"`
}

type VerifyData struct {
	Status    string `json:"status"`
	TxRef     string `json:"tx_ref"`
	Reference string `json:"reference"`
	Currency  string `json:"currency"`
}

// Succeeded is true only when both the call and the nested transaction
// outcome report success.
func (r *VerifyResponse) Succeeded() bool {
	return r != nil && strings.EqualFold(r.Status, statusSuccess) && strings.EqualFold(r.Data.Status, statusSuccess)
}

// InProgress reports a transaction the payer has not finished yet.
func (r *VerifyResponse) InProgress() bool {
	return r != nil && strings.EqualFold(r.Data.Status, "pending")
}

// Retryable marks the failures worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrServer) ||
		errors.Is(err, ErrThrottled) ||
		errors.Is(err, context.DeadlineExceeded)
}
