package domain

import (
	"strings"
	"time"
)

type PaymentStatus string

const (
	PaymentPending            PaymentStatus = "pending"
	PaymentSuccess            PaymentStatus = "success"
	PaymentFailedVerification PaymentStatus = "failed_verification"
)

// IsTerminal reports whether no reconciliation should move the record
// toward a weaker outcome. Anything other than pending is terminal.
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentPending
}

// Payment is one checkout attempt, keyed by TxRef.
type Payment struct {
	TxRef       string
	UserID      string
	DisplayName string
	Amount      string
	Currency    string
	Status      PaymentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OutcomeStatus maps the gateway's nested verification status onto a
// record status. A failed reply whose nested status is empty, or reads as
// success or pending, becomes the failed_verification sentinel so a failure
// never lands as a non-failure status.
func OutcomeStatus(gatewayStatus string, succeeded bool) PaymentStatus {
	if succeeded {
		return PaymentSuccess
	}
	s := strings.TrimSpace(gatewayStatus)
	if s == "" || strings.EqualFold(s, string(PaymentSuccess)) || strings.EqualFold(s, string(PaymentPending)) {
		return PaymentFailedVerification
	}
	return PaymentStatus(s)
}
