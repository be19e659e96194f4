package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/local-scope/localscope/internal/domain"
)

// SessionRepository stores refresh tokens and the session revocation deny-list.
type SessionRepository interface {
	SaveRefreshToken(ctx context.Context, token domain.RefreshToken) error
	// ConsumeRefreshToken atomically fetches and deletes a refresh token.
	// Returns domain.ErrTokenInvalid when the token is unknown or expired.
	ConsumeRefreshToken(ctx context.Context, token string) (*domain.RefreshToken, error)
	// Revoke deny-lists the session for ttl and drops its refresh token.
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

type redisSessionRepository struct {
	client *redis.Client
	now    func() time.Time
}

// NewSessionRepository returns a Redis-backed implementation.
func NewSessionRepository(client *redis.Client) SessionRepository {
	return &redisSessionRepository{client: client, now: time.Now}
}

type storedRefreshToken struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func refreshKey(token string) string {
	return "auth:refresh:" + token
}

func sessionRefreshKey(sessionID string) string {
	return "auth:session:" + sessionID + ":refresh"
}

func revokedKey(sessionID string) string {
	return "auth:revoked:" + sessionID
}

func (r *redisSessionRepository) SaveRefreshToken(ctx context.Context, token domain.RefreshToken) error {
	ttl := token.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("refresh token for session %s already expired", token.SessionID)
	}
	payload, err := json.Marshal(storedRefreshToken{
		SessionID: token.SessionID,
		UserID:    token.UserID,
		ExpiresAt: token.ExpiresAt,
	})
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, refreshKey(token.Token), payload, ttl)
		pipe.Set(ctx, sessionRefreshKey(token.SessionID), token.Token, ttl)
		return nil
	})
	return err
}

func (r *redisSessionRepository) ConsumeRefreshToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	raw, err := r.client.GetDel(ctx, refreshKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}

	var stored storedRefreshToken
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode refresh token: %w", err)
	}
	if !r.now().Before(stored.ExpiresAt) {
		return nil, domain.ErrTokenInvalid
	}
	if err := r.client.Del(ctx, sessionRefreshKey(stored.SessionID)).Err(); err != nil {
		return nil, err
	}

	return &domain.RefreshToken{
		Token:     token,
		SessionID: stored.SessionID,
		UserID:    stored.UserID,
		ExpiresAt: stored.ExpiresAt,
	}, nil
}

func (r *redisSessionRepository) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	current, err := r.client.Get(ctx, sessionRefreshKey(sessionID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, revokedKey(sessionID), "1", ttl)
		pipe.Del(ctx, sessionRefreshKey(sessionID))
		if current != "" {
			pipe.Del(ctx, refreshKey(current))
		}
		return nil
	})
	return err
}

func (r *redisSessionRepository) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
