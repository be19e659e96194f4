package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/local-scope/localscope/internal/auth"
	"github.com/local-scope/localscope/internal/config"
	"github.com/local-scope/localscope/internal/domain"
	"github.com/local-scope/localscope/internal/events"
	"github.com/local-scope/localscope/internal/repository"
	apperrors "github.com/local-scope/localscope/pkg/util"
)

const minPasswordLength = 6

// SignUpInput carries the signup form.
type SignUpInput struct {
	Email    string
	Password string
	FullName string
	Role     domain.Role
}

// UserAttributes is a partial update of the auth user.
type UserAttributes struct {
	FullName *string
	Password *string
}

// AuthService coordinates signup, sign-in, refresh and sign-out flows.
type AuthService struct {
	users         repository.UserRepository
	profiles      repository.ProfileRepository
	confirmations repository.ConfirmationRepository
	sessions      repository.SessionRepository
	dispatcher    events.Dispatcher
	tokenMgr      *auth.TokenManager
	logger        *zap.Logger
	bcryptCost    int
	refreshTTL    time.Duration
	confirmTTL    time.Duration
	autoConfirm   bool
	now           func() time.Time
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo         repository.UserRepository
	ProfileRepo      repository.ProfileRepository
	ConfirmationRepo repository.ConfirmationRepository
	SessionRepo      repository.SessionRepository
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	return &AuthService{
		users:         deps.UserRepo,
		profiles:      deps.ProfileRepo,
		confirmations: deps.ConfirmationRepo,
		sessions:      deps.SessionRepo,
		dispatcher:    dispatcher,
		tokenMgr:      auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		logger:        logger,
		bcryptCost:    cfg.Auth.BcryptCost,
		refreshTTL:    cfg.Auth.RefreshTokenTTL(),
		confirmTTL:    cfg.Auth.ConfirmationTokenTTL(),
		autoConfirm:   cfg.Auth.AutoConfirm,
		now:           time.Now,
	}
}

// SignUp creates the user and its profile row. A session is returned only
// when accounts are auto-confirmed; otherwise the user must verify the email first.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*domain.User, *domain.Session, error) {
	if err := validateSignUp(&in); err != nil {
		return nil, nil, err
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, nil, fmt.Errorf("sign up %q: %w", in.Email, domain.ErrUserExists)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, err
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	user := &domain.User{
		Email:        in.Email,
		PasswordHash: hash,
		Metadata:     domain.UserMetadata{FullName: in.FullName, Role: in.Role},
	}
	if s.autoConfirm {
		user.EmailConfirmedAt = &now
	}
	profile := &domain.Profile{
		FullName:         in.FullName,
		Role:             in.Role,
		SubscriptionTier: domain.TierFree,
	}
	if err := s.users.CreateWithProfile(ctx, user, profile); err != nil {
		return nil, nil, err
	}

	payload := events.UserSignedUpPayload{
		Email:         user.Email,
		FullName:      in.FullName,
		Role:          in.Role,
		AutoConfirmed: s.autoConfirm,
	}

	var session *domain.Session
	if s.autoConfirm {
		session, err = s.issueSession(ctx, user, uuid.NewString())
		if err != nil {
			return nil, nil, err
		}
	} else {
		token := &repository.ConfirmationToken{
			UserID:    user.ID,
			Token:     uuid.NewString(),
			ExpiresAt: now.Add(s.confirmTTL),
		}
		if err := s.confirmations.Create(ctx, token); err != nil {
			return nil, nil, err
		}
		payload.ConfirmationToken = token.Token
	}

	s.publish(ctx, events.EventUserSignedUp, user.ID, payload)
	return user, session, nil
}

// VerifyEmail consumes a confirmation token and marks the email confirmed.
func (s *AuthService) VerifyEmail(ctx context.Context, tokenStr string) error {
	token, err := s.confirmations.GetByToken(ctx, tokenStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrTokenInvalid
	}
	if err != nil {
		return err
	}
	if !token.Usable(s.now()) {
		return domain.ErrTokenInvalid
	}

	if err := s.users.ConfirmEmail(ctx, token.UserID, s.now()); err != nil {
		return err
	}
	if err := s.confirmations.MarkUsed(ctx, token.ID); err != nil {
		return err
	}

	s.publish(ctx, events.EventEmailConfirmed, token.UserID, nil)
	return nil
}

// SignInWithPassword authenticates a user. Unknown emails and wrong passwords
// are indistinguishable; an unconfirmed email is reported only after the
// password matched.
func (s *AuthService) SignInWithPassword(ctx context.Context, email, password string) (*domain.User, *domain.Session, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("sign in %q: %w", email, domain.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, nil, fmt.Errorf("sign in %q: %w", email, domain.ErrInvalidCredentials)
	}
	if !user.Confirmed() {
		return nil, nil, fmt.Errorf("sign in %q: %w", email, domain.ErrEmailNotConfirmed)
	}

	session, err := s.issueSession(ctx, user, uuid.NewString())
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// Refresh rotates a refresh token and issues a new access token for the same session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.User, *domain.Session, error) {
	stored, err := s.sessions.ConsumeRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, nil, err
	}

	revoked, err := s.sessions.IsRevoked(ctx, stored.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, domain.ErrSessionRevoked
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, domain.ErrSessionRevoked
	}
	if err != nil {
		return nil, nil, err
	}

	session, err := s.issueSession(ctx, user, stored.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// SignOut revokes the caller's session.
func (s *AuthService) SignOut(ctx context.Context, principal *auth.Principal) error {
	if principal == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := s.sessions.Revoke(ctx, principal.SessionID, s.tokenMgr.TTL()); err != nil {
		return err
	}

	s.publish(ctx, events.EventUserSignedOut, principal.UserID, events.UserSignedOutPayload{SessionID: principal.SessionID})
	return nil
}

// GetUser returns the auth user.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

// UpdateUser changes user attributes. A new full name is mirrored onto the profile.
func (s *AuthService) UpdateUser(ctx context.Context, userID string, attrs UserAttributes) (*domain.User, error) {
	if attrs.FullName == nil && attrs.Password == nil {
		return nil, apperrors.NewValidationError("nothing to update", nil)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if attrs.Password != nil {
		if len(*attrs.Password) < minPasswordLength {
			return nil, apperrors.NewValidationError("password too short", map[string]any{"min_length": minPasswordLength})
		}
		hash, err := auth.HashPassword(*attrs.Password, s.bcryptCost)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	if attrs.FullName != nil {
		user.Metadata.FullName = strings.TrimSpace(*attrs.FullName)
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	if attrs.FullName != nil {
		name := user.Metadata.FullName
		if _, err := s.profiles.Update(ctx, userID, domain.ProfileUpdate{FullName: &name}); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) issueSession(ctx context.Context, user *domain.User, sessionID string) (*domain.Session, error) {
	role := user.Metadata.Role
	profile, err := s.profiles.GetByUserID(ctx, user.ID)
	switch {
	case err == nil:
		role = profile.Role
	case errors.Is(err, domain.ErrProfileNotFound):
		// the row may lag behind signup; fall back to the signup role
	default:
		return nil, err
	}

	access, issuedAt, expiresAt, err := s.tokenMgr.GenerateToken(user.ID, sessionID, user.Email, role)
	if err != nil {
		return nil, err
	}

	refresh := domain.RefreshToken{
		Token:     uuid.NewString(),
		SessionID: sessionID,
		UserID:    user.ID,
		ExpiresAt: issuedAt.Add(s.refreshTTL),
	}
	if err := s.sessions.SaveRefreshToken(ctx, refresh); err != nil {
		return nil, err
	}

	return &domain.Session{
		ID:           sessionID,
		UserID:       user.ID,
		Email:        user.Email,
		AccessToken:  access,
		RefreshToken: refresh.Token,
		IssuedAt:     issuedAt,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, userID string, payload interface{}) {
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: s.now(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

// normalizeEmail folds an address the way the users table stores it.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateSignUp(in *SignUpInput) error {
	in.Email = normalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)

	details := map[string]any{}
	if _, err := mail.ParseAddress(in.Email); err != nil || !strings.Contains(in.Email, "@") {
		details["email"] = "invalid email address"
	}
	if len(in.Password) < minPasswordLength {
		details["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLength)
	}
	if in.FullName == "" {
		details["full_name"] = "required"
	}
	if in.Role == "" {
		in.Role = domain.RoleCustomer
	}
	if in.Role != domain.RoleCustomer && in.Role != domain.RoleBusinessUser {
		details["role"] = "must be customer or business_user"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid signup", details)
	}
	return nil
}
