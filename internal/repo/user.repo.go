package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"verified-checkout/internal/domain"
)

type UserRepo interface {
	// MarkVerified sets verified = true. Applying it twice is a no-op; it
	// never clears the flag.
	MarkVerified(ctx context.Context, tx *sql.Tx, userID string) error
	FindById(ctx context.Context, userID string) (*domain.User, error)
}

type userRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

func (r *userRepo) MarkVerified(ctx context.Context, tx *sql.Tx, userID string) error {
	query := `
		INSERT INTO users (id, verified, updated_at)
		VALUES ($1, TRUE, now())
		ON CONFLICT (id) DO UPDATE
		SET verified = TRUE,
		    updated_at = now()
		WHERE users.verified = FALSE
	`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("mark user %s verified: %w", userID, err)
	}
	return nil
}

func (r *userRepo) FindById(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, "SELECT id, verified, updated_at FROM users WHERE id = $1", userID).Scan(
		&u.ID,
		&u.Verified,
		&u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", userID, err)
	}
	return &u, nil
}
