package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"verified-checkout/internal/domain"
	"verified-checkout/internal/service"
	"verified-checkout/internal/webhook"

	"github.com/gin-gonic/gin"
)

const maxBodySize = 1 << 20 // 1MB

// flexString accepts a JSON string or number, keeping the number's exact
// text so decimal amounts are not rounded through float64.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("must be a string or a number")
	}
	*f = flexString(n.String())
	return nil
}

type createSessionBody struct {
	Amount      flexString `json:"amount"`
	Currency    string     `json:"currency"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	UserID      string     `json:"userId"`
	Description string     `json:"description"`
	Phone       flexString `json:"phone"`
}

func (s *Server) handleCreatePaymentSession(c *gin.Context) {
	var body createSessionBody
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	// A payer closing the tab must not strand a session the gateway already
	// opened, so initiation outlives the request.
	ctx := context.WithoutCancel(c.Request.Context())
	session, err := s.sessions.CreateSession(ctx, service.CreateSessionRequest{
		Amount:      string(body.Amount),
		Currency:    body.Currency,
		Email:       body.Email,
		FirstName:   body.FirstName,
		LastName:    body.LastName,
		UserID:      body.UserID,
		Description: body.Description,
		Phone:       string(body.Phone),
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"checkoutUrl": session.CheckoutURL, "txRef": session.TxRef})
	case domain.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case domain.IsGateway(err):
		// Session creation reports upstream failures as 500, not 502.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create payment session", "details": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if err := s.auth.Verify(body, webhook.SignatureFromHeader(c.Request.Header)); err != nil {
		s.logger.Warn("rejected webhook", "error", err, "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	res, err := s.reconciler.Reconcile(c.Request.Context(), body)
	if err != nil {
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"txRef":      res.TxRef,
		"status":     res.Status,
		"applied":    res.Applied,
		"inProgress": res.InProgress,
	})
}

type paymentView struct {
	TxRef     string    `json:"txRef"`
	UserID    string    `json:"userId"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleGetPayment(c *gin.Context) {
	p, err := s.payments.FindByTxRef(c.Request.Context(), c.Param("txRef"))
	if err != nil {
		if domain.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		s.logger.Error("load payment failed", "tx_ref", c.Param("txRef"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, paymentView{
		TxRef:     p.TxRef,
		UserID:    p.UserID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
	})
}

func (s *Server) handleHealthz(c *gin.Context) {
	stats := s.health.Health(c.Request.Context())
	if stats["status"] != "up" {
		c.JSON(http.StatusServiceUnavailable, stats)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case domain.IsValidation(err), domain.IsBadRequest(err):
		return http.StatusBadRequest
	case domain.IsUnauthorized(err):
		return http.StatusUnauthorized
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsGateway(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
