package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/local-scope/localscope/internal/domain"
	"github.com/local-scope/localscope/internal/repository"
)

// fakeUserRepo matches emails exactly; folding is left to the service.
type fakeUserRepo struct {
	mu     sync.Mutex
	byID   map[string]*domain.User
	store  *fakeProfileRepo
	getErr error
}

func newFakeUserRepo(profiles *fakeProfileRepo) *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]*domain.User{}, store: profiles}
}

func (f *fakeUserRepo) CreateWithProfile(_ context.Context, user *domain.User, profile *domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == user.Email {
			return domain.ErrUserExists
		}
	}
	user.ID = uuid.NewString()
	cp := *user
	f.byID[user.ID] = &cp

	profile.ID = uuid.NewString()
	profile.UserID = user.ID
	profile.Email = user.Email
	if f.store != nil {
		f.store.put(profile)
	}
	return nil
}

func (f *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *user
	f.byID[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUserRepo) ConfirmEmail(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if u.EmailConfirmedAt == nil {
		u.EmailConfirmedAt = &at
	}
	return nil
}

type fakeProfileRepo struct {
	mu        sync.Mutex
	byUser    map[string]*domain.Profile
	updateErr error
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{byUser: map[string]*domain.Profile{}}
}

func (f *fakeProfileRepo) put(p *domain.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byUser[p.UserID] = p.Clone()
}

func (f *fakeProfileRepo) GetByUserID(_ context.Context, userID string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byUser[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return p.Clone(), nil
}

func (f *fakeProfileRepo) Update(_ context.Context, userID string, update domain.ProfileUpdate) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p, ok := f.byUser[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	update.ApplyTo(p)
	return p.Clone(), nil
}

type fakeConfirmationRepo struct {
	mu     sync.Mutex
	tokens map[string]*repository.ConfirmationToken
}

func newFakeConfirmationRepo() *fakeConfirmationRepo {
	return &fakeConfirmationRepo{tokens: map[string]*repository.ConfirmationToken{}}
}

func (f *fakeConfirmationRepo) Create(_ context.Context, token *repository.ConfirmationToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	token.ID = uuid.NewString()
	token.CreatedAt = time.Now()
	cp := *token
	f.tokens[token.Token] = &cp
	return nil
}

func (f *fakeConfirmationRepo) GetByToken(_ context.Context, token string) (*repository.ConfirmationToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[token]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (f *fakeConfirmationRepo) MarkUsed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tokens {
		if t.ID == id {
			now := time.Now()
			t.UsedAt = &now
		}
	}
	return nil
}

func (f *fakeConfirmationRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeConfirmationRepo) only() *repository.ConfirmationToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tokens {
		return t
	}
	return nil
}

type fakeSessionRepo struct {
	mu      sync.Mutex
	refresh map[string]domain.RefreshToken
	revoked map[string]bool
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{refresh: map[string]domain.RefreshToken{}, revoked: map[string]bool{}}
}

func (f *fakeSessionRepo) SaveRefreshToken(_ context.Context, token domain.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[token.Token] = token
	return nil
}

func (f *fakeSessionRepo) ConsumeRefreshToken(_ context.Context, token string) (*domain.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.refresh[token]
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	delete(f.refresh, token)
	return &t, nil
}

func (f *fakeSessionRepo) Revoke(_ context.Context, sessionID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[sessionID] = true
	for k, t := range f.refresh {
		if t.SessionID == sessionID {
			delete(f.refresh, k)
		}
	}
	return nil
}

func (f *fakeSessionRepo) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[sessionID], nil
}

var (
	_ repository.UserRepository         = (*fakeUserRepo)(nil)
	_ repository.ProfileRepository      = (*fakeProfileRepo)(nil)
	_ repository.ConfirmationRepository = (*fakeConfirmationRepo)(nil)
	_ repository.SessionRepository      = (*fakeSessionRepo)(nil)
)
