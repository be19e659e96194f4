package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConfirmationToken is a one-shot email verification token.
type ConfirmationToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Usable reports whether the token can still confirm an email at now.
func (t *ConfirmationToken) Usable(now time.Time) bool {
	return t != nil && t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// ConfirmationRepository manages email confirmation token persistence.
type ConfirmationRepository interface {
	Create(ctx context.Context, token *ConfirmationToken) error
	GetByToken(ctx context.Context, token string) (*ConfirmationToken, error)
	MarkUsed(ctx context.Context, id string) error
	// DeleteExpired removes tokens that expired or were used before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type confirmationRepository struct {
	pool *pgxpool.Pool
}

// NewConfirmationRepository constructs repository.
func NewConfirmationRepository(pool *pgxpool.Pool) ConfirmationRepository {
	return &confirmationRepository{pool: pool}
}

func (r *confirmationRepository) Create(ctx context.Context, token *ConfirmationToken) error {
	const query = `
        INSERT INTO email_confirmation_tokens (user_id, token, expires_at)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		token.UserID,
		token.Token,
		token.ExpiresAt,
	).Scan(&token.ID, &token.CreatedAt)
}

func (r *confirmationRepository) GetByToken(ctx context.Context, tokenStr string) (*ConfirmationToken, error) {
	const query = `
        SELECT id, user_id, token, expires_at, used_at, created_at
        FROM email_confirmation_tokens WHERE token=$1`
	var token ConfirmationToken
	if err := r.pool.QueryRow(ctx, query, tokenStr).Scan(
		&token.ID,
		&token.UserID,
		&token.Token,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *confirmationRepository) MarkUsed(ctx context.Context, id string) error {
	const query = `
        UPDATE email_confirmation_tokens SET used_at=NOW()
        WHERE id=$1 AND used_at IS NULL`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *confirmationRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `
        DELETE FROM email_confirmation_tokens
        WHERE expires_at < $1 OR used_at < $1`
	cmd, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
