package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/local-scope/localscope/internal/domain"
)

const uniqueViolation = "23505"

// UserRepository defines persistence access for auth users.
type UserRepository interface {
	// CreateWithProfile inserts the user and its profile row in one transaction.
	CreateWithProfile(ctx context.Context, user *domain.User, profile *domain.Profile) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ConfirmEmail(ctx context.Context, id string, at time.Time) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) CreateWithProfile(ctx context.Context, user *domain.User, profile *domain.Profile) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insertUser = `
        INSERT INTO users (email, password_hash, email_confirmed_at, full_name, signup_role)
        VALUES (LOWER($1), $2, $3, $4, $5)
        RETURNING id, email, created_at, updated_at`

	if err := tx.QueryRow(ctx, insertUser,
		user.Email,
		user.PasswordHash,
		user.EmailConfirmedAt,
		user.Metadata.FullName,
		string(user.Metadata.Role),
	).Scan(&user.ID, &user.Email, &user.CreatedAt, &user.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert user %q: %w", user.Email, domain.ErrUserExists)
		}
		return err
	}

	const insertProfile = `
        INSERT INTO profiles (user_id, email, full_name, role, subscription_tier)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, business_count, created_at, updated_at`

	profile.UserID = user.ID
	profile.Email = user.Email
	if err := tx.QueryRow(ctx, insertProfile,
		profile.UserID,
		profile.Email,
		profile.FullName,
		string(profile.Role),
		string(profile.SubscriptionTier),
	).Scan(&profile.ID, &profile.BusinessCount, &profile.CreatedAt, &profile.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET email=LOWER($1), password_hash=$2, full_name=$3, updated_at=NOW()
        WHERE id=$4`

	cmd, err := r.pool.Exec(ctx, query,
		user.Email,
		user.PasswordHash,
		user.Metadata.FullName,
		user.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT id, email, password_hash, email_confirmed_at, full_name, signup_role, created_at, updated_at
        FROM users WHERE id=$1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `
        SELECT id, email, password_hash, email_confirmed_at, full_name, signup_role, created_at, updated_at
        FROM users WHERE email=LOWER($1)`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *userRepository) ConfirmEmail(ctx context.Context, id string, at time.Time) error {
	const query = `
        UPDATE users SET email_confirmed_at=COALESCE(email_confirmed_at, $1), updated_at=NOW()
        WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user domain.User
		role string
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.EmailConfirmedAt,
		&user.Metadata.FullName,
		&role,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Metadata.Role = domain.ParseRole(role)
	return &user, nil
}
