package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/local-scope/localscope/internal/domain"
	"github.com/local-scope/localscope/internal/repository"
	apperrors "github.com/local-scope/localscope/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	UserID      string
	SessionID   string
	Email       string
	Role        domain.Role
	AccessToken string
}

// IsAdmin reports whether the caller carries the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == domain.RoleAdmin
}

// AuthMiddleware validates bearer tokens and rejects revoked sessions.
type AuthMiddleware struct {
	tokens   *TokenManager
	sessions repository.SessionRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, sessions repository.SessionRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, sessions: sessions}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, err := bearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	revoked, err := m.sessions.IsRevoked(c.UserContext(), claims.SessionID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if revoked {
		return apperrors.MapError(domain.ErrSessionRevoked)
	}

	c.Locals(principalKey, &Principal{
		UserID:      claims.UserID(),
		SessionID:   claims.SessionID,
		Email:       claims.Email,
		Role:        domain.ParseRole(string(claims.Role)),
		AccessToken: token,
	})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperrors.NewUnauthorized("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
