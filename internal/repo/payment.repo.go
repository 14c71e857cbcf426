package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"verified-checkout/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

type PaymentRepo interface {
	// CreatePayment inserts a new record; CreatedAt and UpdatedAt are set by the server.
	CreatePayment(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error
	FindByTxRef(ctx context.Context, txRef string) (*domain.Payment, error)
	// MarkSucceeded moves any non-success record to success. It reports
	// whether a row changed; false on an already-successful record.
	MarkSucceeded(ctx context.Context, tx *sql.Tx, txRef string) (bool, error)
	// MarkFailed moves a pending record to status. Terminal records are left alone.
	MarkFailed(ctx context.Context, tx *sql.Tx, txRef string, status domain.PaymentStatus) (bool, error)
	FindPendingBefore(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error)
}

type paymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) PaymentRepo {
	return &paymentRepo{db: db}
}

const paymentColumns = `tx_ref, user_id, display_name, amount, currency, status, created_at, updated_at`

func (r *paymentRepo) CreatePayment(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (tx_ref, user_id, display_name, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at
	`
	err := pick(r.db, tx).QueryRowContext(
		ctx, query, payment.TxRef, payment.UserID, payment.DisplayName, payment.Amount, payment.Currency, payment.Status,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: payment %s already exists", domain.ErrConflict, payment.TxRef)
	}
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", payment.TxRef, err)
	}
	return nil
}

func (r *paymentRepo) FindByTxRef(ctx context.Context, txRef string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE tx_ref = $1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, txRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: payment %s", domain.ErrNotFound, txRef)
	}
	if err != nil {
		return nil, fmt.Errorf("find payment %s: %w", txRef, err)
	}
	return p, nil
}

func (r *paymentRepo) MarkSucceeded(ctx context.Context, tx *sql.Tx, txRef string) (bool, error) {
	query := `
		UPDATE payments
		SET status = $2,
		    updated_at = now()
		WHERE tx_ref = $1 AND status <> $2
	`
	return r.exec(ctx, tx, query, txRef, domain.PaymentSuccess)
}

func (r *paymentRepo) MarkFailed(ctx context.Context, tx *sql.Tx, txRef string, status domain.PaymentStatus) (bool, error) {
	if status == domain.PaymentPending || status == domain.PaymentSuccess {
		return false, fmt.Errorf("%w: %q is not a failure status", domain.ErrInternal, status)
	}
	query := `
		UPDATE payments
		SET status = $2,
		    updated_at = now()
		WHERE tx_ref = $1 AND status = $3
	`
	return r.exec(ctx, tx, query, txRef, status, domain.PaymentPending)
}

func (r *paymentRepo) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	res, err := pick(r.db, tx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update payment rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *paymentRepo) FindPendingBefore(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + ` FROM payments
		WHERE status = $1
		AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, domain.PaymentPending, before, limit)
	if err != nil {
		return nil, fmt.Errorf("find pending payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.TxRef,
		&p.UserID,
		&p.DisplayName,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
