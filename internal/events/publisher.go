package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"verified-checkout/internal/domain"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// OutcomeEvent announces that reconciliation changed a payment record.
type OutcomeEvent struct {
	ID       string    `json:"id"`
	TxRef    string    `json:"tx_ref"`
	UserID   string    `json:"user_id"`
	Status   string    `json:"status"`
	Verified bool      `json:"verified"`
	At       time.Time `json:"at"`
}

func NewOutcomeEvent(txRef, userID string, status domain.PaymentStatus) OutcomeEvent {
	return OutcomeEvent{
		ID:       uuid.NewString(),
		TxRef:    txRef,
		UserID:   userID,
		Status:   string(status),
		Verified: status == domain.PaymentSuccess,
		At:       time.Now().UTC(),
	}
}

// Kind is the subject suffix: succeeded or failed.
func (e OutcomeEvent) Kind() string {
	if e.Verified {
		return "succeeded"
	}
	return "failed"
}

type Publisher interface {
	Publish(ctx context.Context, evt OutcomeEvent) error
}

type Noop struct{}

func (Noop) Publish(context.Context, OutcomeEvent) error { return nil }

type NatsPublisher struct {
	nc     *nats.Conn
	prefix string
}

func NewNatsPublisher(nc *nats.Conn, prefix string) *NatsPublisher {
	return &NatsPublisher{nc: nc, prefix: prefix}
}

func (p *NatsPublisher) Subject(evt OutcomeEvent) string {
	return p.prefix + "." + evt.Kind()
}

func (p *NatsPublisher) Publish(ctx context.Context, evt OutcomeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode outcome event %s: %w", evt.TxRef, err)
	}
	msg := nats.NewMsg(p.Subject(evt))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, evt.ID)
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish outcome event %s: %w", evt.TxRef, err)
	}
	return nil
}

// Connect dials NATS with reconnects enabled; a dropped connection buffers
// publishes until it comes back.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(
		url,
		nats.Name("verified-checkout"),
		nats.ReconnectWait(3*time.Second),
		nats.MaxReconnects(-1),
		nats.MaxPingsOutstanding(5),
		nats.PingInterval(10*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}
