package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/local-scope/localscope/internal/domain"
)

// ProfileRepository reads and writes rows of the profiles table, keyed by user id.
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.Profile, error)
	// Update applies the non-nil fields and returns the stored row.
	Update(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.Profile, error)
}

type profileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository returns a Postgres-backed implementation.
func NewProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepository{pool: pool}
}

const profileColumns = `id, user_id, email, full_name, role, subscription_tier, phone, business_count, created_at, updated_at`

func (r *profileRepository) GetByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id=$1`

	profile, err := scanProfile(r.pool.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile for user %s: %w", userID, domain.ErrProfileNotFound)
	}
	return profile, err
}

func (r *profileRepository) Update(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.Profile, error) {
	query := `
        UPDATE profiles
        SET full_name=COALESCE($2, full_name),
            phone=COALESCE($3, phone),
            subscription_tier=COALESCE($4, subscription_tier),
            updated_at=NOW()
        WHERE user_id=$1
        RETURNING ` + profileColumns

	var tier *string
	if update.SubscriptionTier != nil {
		t := string(*update.SubscriptionTier)
		tier = &t
	}

	profile, err := scanProfile(r.pool.QueryRow(ctx, query, userID, update.FullName, update.Phone, tier))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile for user %s: %w", userID, domain.ErrProfileNotFound)
	}
	return profile, err
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var (
		profile domain.Profile
		role    string
		tier    string
	)
	if err := row.Scan(
		&profile.ID,
		&profile.UserID,
		&profile.Email,
		&profile.FullName,
		&role,
		&tier,
		&profile.Phone,
		&profile.BusinessCount,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		return nil, err
	}
	profile.Role = domain.ParseRole(role)
	profile.SubscriptionTier = domain.SubscriptionTier(tier)
	return &profile, nil
}
