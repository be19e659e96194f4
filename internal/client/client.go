package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/local-scope/localscope/internal/api/dto"
	"github.com/local-scope/localscope/internal/config"
	"github.com/local-scope/localscope/internal/domain"
	"github.com/local-scope/localscope/internal/identity"
)

// UserAttributes is a partial update of the signed-in auth user.
type UserAttributes struct {
	FullName *string
	Password *string
}

// Client talks to the backend over HTTP and keeps the current session.
// It implements identity.AuthBackend and identity.ProfileStore.
type Client struct {
	baseURL       string
	timeout       time.Duration
	refreshMargin time.Duration
	storage       SessionStorage
	logger        *zap.Logger
	now           func() time.Time

	// refreshMu lets one refresh spend a refresh token at a time.
	refreshMu sync.Mutex

	mu        sync.Mutex
	session   *domain.Session
	listeners map[int]func(domain.AuthEvent)
	nextID    int
}

var (
	_ identity.AuthBackend  = (*Client)(nil)
	_ identity.ProfileStore = (*Client)(nil)
)

// New builds a client. A nil storage keeps the session in memory only.
func New(cfg config.ClientConfig, storage SessionStorage, logger *zap.Logger) *Client {
	if storage == nil {
		storage = &MemoryStorage{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		timeout:       cfg.RequestTimeout(),
		refreshMargin: cfg.RefreshMargin(),
		storage:       storage,
		logger:        logger,
		now:           time.Now,
		listeners:     make(map[int]func(domain.AuthEvent)),
	}
}

// Restore loads the persisted session. An expired access token is refreshed;
// a session that cannot be refreshed is dropped. No event is emitted.
func (c *Client) Restore(ctx context.Context) error {
	session, err := c.storage.Load(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	if c.needsRefresh(session) {
		refreshed, err := c.refresh(ctx, session.RefreshToken)
		if err != nil {
			c.logger.Warn("dropping persisted session", zap.Error(err))
			return c.storage.Clear(ctx)
		}
		session = refreshed
		if err := c.storage.Save(ctx, session); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return nil
}

// OnAuthStateChange registers listener and delivers INITIAL_SESSION to it.
func (c *Client) OnAuthStateChange(listener func(domain.AuthEvent)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = listener
	session := copySession(c.session)
	c.mu.Unlock()

	listener(domain.AuthEvent{Kind: domain.AuthEventInitialSession, Session: session})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	var out dto.Envelope[dto.AuthResponse]
	err := c.do(ctx, fiber.MethodPost, "/auth/v1/token?grant_type="+dto.GrantPassword, "",
		dto.PasswordGrantRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	session := out.Data.DomainSession()
	if session == nil {
		return nil, errors.New("backend issued no session")
	}
	c.setSession(ctx, domain.AuthEventSignedIn, session)
	return copySession(session), nil
}

// SignUp creates an account. The session is nil until the email is confirmed,
// unless the backend auto-confirms.
func (c *Client) SignUp(ctx context.Context, req identity.SignUpRequest) (*domain.Session, error) {
	var out dto.Envelope[dto.AuthResponse]
	err := c.do(ctx, fiber.MethodPost, "/auth/v1/signup", "", dto.SignUpRequest{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     string(req.Role),
	}, &out)
	if err != nil {
		return nil, err
	}
	session := out.Data.DomainSession()
	if session != nil {
		c.setSession(ctx, domain.AuthEventSignedIn, session)
	}
	return copySession(session), nil
}

// VerifyEmail confirms an email address with the token from the confirmation link.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	return c.do(ctx, fiber.MethodGet, "/auth/v1/verify?token="+url.QueryEscape(token), "", nil, nil)
}

// SignOut revokes the session on the backend and always clears it locally.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil
	}

	err := c.do(ctx, fiber.MethodPost, "/auth/v1/logout", session.AccessToken, nil, nil)
	c.setSession(ctx, domain.AuthEventSignedOut, nil)
	if err != nil && !errors.Is(err, domain.ErrSessionExpired) {
		return err
	}
	return nil
}

// GetSession returns the live session, refreshing it when it is about to
// expire. A session whose refresh token was rejected is signed out.
func (c *Client) GetSession(ctx context.Context) (*domain.Session, error) {
	c.mu.Lock()
	session := copySession(c.session)
	c.mu.Unlock()
	if session == nil || !c.needsRefresh(session) {
		return session, nil
	}
	return c.rotate(ctx, session.RefreshToken)
}

// RefreshSession rotates the refresh token and emits TOKEN_REFRESHED.
func (c *Client) RefreshSession(ctx context.Context) (*domain.Session, error) {
	c.mu.Lock()
	current := copySession(c.session)
	c.mu.Unlock()
	if current == nil {
		return nil, nil
	}
	return c.rotate(ctx, current.RefreshToken)
}

// rotate spends seen, the refresh token the caller observed. Callers that
// queued behind a refresh of the same token get the rotated session instead
// of spending it again.
func (c *Client) rotate(ctx context.Context, seen string) (*domain.Session, error) {
	c.refreshMu.Lock()
	session, kind, err := c.rotateLocked(ctx, seen)
	c.refreshMu.Unlock()

	if kind != "" {
		c.emit(domain.AuthEvent{Kind: kind, Session: copySession(session)})
	}
	return session, err
}

func (c *Client) rotateLocked(ctx context.Context, seen string) (*domain.Session, domain.AuthEventKind, error) {
	current := c.current()
	if current == nil {
		return nil, "", nil
	}
	if current.RefreshToken != seen {
		return current, "", nil
	}

	session, err := c.refresh(ctx, seen)
	if errors.Is(err, domain.ErrTokenInvalid) || errors.Is(err, domain.ErrSessionExpired) {
		// A sign-in or sign-out may have replaced the session meanwhile.
		if now := c.current(); now == nil || now.RefreshToken != seen {
			return now, "", nil
		}
		c.logger.Info("refresh token rejected, signing out", zap.Error(err))
		c.store(ctx, nil)
		return nil, domain.AuthEventSignedOut, nil
	}
	if err != nil {
		return nil, "", err
	}
	c.store(ctx, session)
	return copySession(session), domain.AuthEventTokenRefreshed, nil
}

// StartAutoRefresh refreshes the session before it expires, checking every
// interval until ctx ends.
func (c *Client) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.GetSession(ctx); err != nil {
				c.logger.Warn("auto refresh failed", zap.Error(err))
			}
		}
	}
}

// GetUser returns the signed-in auth user.
func (c *Client) GetUser(ctx context.Context) (*dto.UserResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var out dto.Envelope[dto.UserResponse]
	if err := c.do(ctx, fiber.MethodGet, "/auth/v1/user", token, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// UpdateUser changes auth user attributes and emits USER_UPDATED.
func (c *Client) UpdateUser(ctx context.Context, attrs UserAttributes) (*dto.UserResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var out dto.Envelope[dto.UserResponse]
	err = c.do(ctx, fiber.MethodPut, "/auth/v1/user", token, dto.UpdateUserRequest{
		FullName: attrs.FullName,
		Password: attrs.Password,
	}, &out)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	session := copySession(c.session)
	c.mu.Unlock()
	c.emit(domain.AuthEvent{Kind: domain.AuthEventUserUpdated, Session: session})
	return &out.Data, nil
}

// GetProfile reads the profile row of userID.
func (c *Client) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var out dto.Envelope[dto.ProfileResponse]
	if err := c.do(ctx, fiber.MethodGet, "/rest/v1/profiles/"+url.PathEscape(userID), token, nil, &out); err != nil {
		return nil, err
	}
	if out.Data.Profile == nil {
		return nil, domain.ErrProfileNotFound
	}
	return out.Data.Profile, nil
}

// UpdateProfile writes a partial update to the profile row of userID.
func (c *Client) UpdateProfile(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.Profile, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var out dto.Envelope[dto.ProfileResponse]
	err = c.do(ctx, fiber.MethodPatch, "/rest/v1/profiles/"+url.PathEscape(userID), token, dto.NewUpdateProfileRequest(update), &out)
	if err != nil {
		return nil, err
	}
	return out.Data.Profile, nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	if refreshToken == "" {
		return nil, domain.ErrTokenInvalid
	}
	var out dto.Envelope[dto.AuthResponse]
	err := c.do(ctx, fiber.MethodPost, "/auth/v1/token?grant_type="+dto.GrantRefreshToken, "",
		dto.RefreshGrantRequest{RefreshToken: refreshToken}, &out)
	if err != nil {
		return nil, err
	}
	session := out.Data.DomainSession()
	if session == nil {
		return nil, domain.ErrTokenInvalid
	}
	return session, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", domain.ErrSessionExpired
	}
	return session.AccessToken, nil
}

func (c *Client) needsRefresh(session *domain.Session) bool {
	return session.Expired(c.now().Add(c.refreshMargin))
}

// setSession stores session, persists it and emits kind.
func (c *Client) setSession(ctx context.Context, kind domain.AuthEventKind, session *domain.Session) {
	c.store(ctx, session)
	c.emit(domain.AuthEvent{Kind: kind, Session: copySession(session)})
}

func (c *Client) store(ctx context.Context, session *domain.Session) {
	c.mu.Lock()
	c.session = copySession(session)
	c.mu.Unlock()

	if err := c.storage.Save(ctx, session); err != nil {
		c.logger.Warn("persisting session failed", zap.Error(err))
	}
}

func (c *Client) current() *domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copySession(c.session)
}

func (c *Client) emit(ev domain.AuthEvent) {
	c.mu.Lock()
	listeners := make([]func(domain.AuthEvent), 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// do sends one request through a fiber Agent. Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a := fiber.AcquireAgent()
	req := a.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	if token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	if body != nil {
		a.JSON(body)
	}
	if timeout := c.requestTimeout(ctx); timeout > 0 {
		a.Timeout(timeout)
	}
	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	status, raw, errs := a.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("%s %s: %w", method, path, errors.Join(errs...))
	}
	if status >= fiber.StatusBadRequest {
		return decodeError(status, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func (c *Client) requestTimeout(ctx context.Context) time.Duration {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	return timeout
}

func copySession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
