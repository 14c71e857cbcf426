package server

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"verified-checkout/internal/domain"
)

// memStore stands in for both repositories and the transaction runner.
// It applies the same conditional transitions as the SQL statements.
type memStore struct {
	mu       sync.Mutex
	payments map[string]domain.Payment
	verified map[string]bool
	writes   int
}

func newMemStore() *memStore {
	return &memStore{payments: map[string]domain.Payment{}, verified: map[string]bool{}}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

func (m *memStore) CreatePayment(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.TxRef]; ok {
		return fmt.Errorf("%w: payment %s already exists", domain.ErrConflict, p.TxRef)
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	m.payments[p.TxRef] = *p
	m.writes++
	return nil
}

func (m *memStore) FindByTxRef(ctx context.Context, txRef string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[txRef]
	if !ok {
		return nil, fmt.Errorf("%w: payment %s", domain.ErrNotFound, txRef)
	}
	return &p, nil
}

func (m *memStore) MarkSucceeded(ctx context.Context, tx *sql.Tx, txRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[txRef]
	if !ok || p.Status == domain.PaymentSuccess {
		return false, nil
	}
	p.Status = domain.PaymentSuccess
	m.payments[txRef] = p
	m.writes++
	return true, nil
}

func (m *memStore) MarkFailed(ctx context.Context, tx *sql.Tx, txRef string, status domain.PaymentStatus) (bool, error) {
	if !status.IsTerminal() || status == domain.PaymentSuccess {
		return false, fmt.Errorf("%w: %q is not a failure status", domain.ErrInternal, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[txRef]
	if !ok || p.Status != domain.PaymentPending {
		return false, nil
	}
	p.Status = status
	m.payments[txRef] = p
	m.writes++
	return true, nil
}

func (m *memStore) FindPendingBefore(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error) {
	return nil, nil
}

func (m *memStore) MarkVerified(ctx context.Context, tx *sql.Tx, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.verified[userID] {
		m.verified[userID] = true
		m.writes++
	}
	return nil
}

func (m *memStore) FindById(ctx context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &domain.User{ID: userID, Verified: m.verified[userID]}, nil
}

func (m *memStore) put(p domain.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.TxRef] = p
}

func (m *memStore) status(txRef string) domain.PaymentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[txRef].Status
}

func (m *memStore) isVerified(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verified[userID]
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

type stubHealth map[string]string

func (s stubHealth) Health(context.Context) map[string]string { return s }
