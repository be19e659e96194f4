package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/local-scope/localscope/internal/domain"
)

// SessionStorage persists the client session between runs.
type SessionStorage interface {
	// Load returns nil, nil when nothing is stored.
	Load(ctx context.Context) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Clear(ctx context.Context) error
}

// RedisStorage keeps the session as JSON under one key.
type RedisStorage struct {
	client *redis.Client
	key    string
}

// NewRedisStorage creates Redis-backed session storage.
func NewRedisStorage(client *redis.Client, key string) *RedisStorage {
	return &RedisStorage{client: client, key: key}
}

func (s *RedisStorage) Load(ctx context.Context) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisStorage) Save(ctx context.Context, session *domain.Session) error {
	if session == nil {
		return s.Clear(ctx)
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	// Kept past access-token expiry; the refresh token outlives it.
	return s.client.Set(ctx, s.key, raw, 0).Err()
}

func (s *RedisStorage) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// MemoryStorage keeps the session in process.
type MemoryStorage struct {
	mu      sync.Mutex
	session *domain.Session
}

func (m *MemoryStorage) Load(context.Context) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	cp := *m.session
	return &cp, nil
}

func (m *MemoryStorage) Save(_ context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session == nil {
		m.session = nil
		return nil
	}
	cp := *session
	m.session = &cp
	return nil
}

func (m *MemoryStorage) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
