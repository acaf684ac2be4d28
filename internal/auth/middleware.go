package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/repository"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

const principalKey = "auth_principal"

// TokenCookie is the cookie issued alongside login/register responses.
const TokenCookie = "token"

// AuthMiddleware validates tokens and loads the account they reference.
type AuthMiddleware struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Handle enforces authentication for protected routes. Check order matters:
// an unverifiable token fails before any lookup so it cannot reveal whether
// an account id exists, and a stale token for a deleted account is reported
// separately from a valid token for a blocked one.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	raw := extractToken(c)
	if raw == "" {
		return apperrors.NewUnauthenticated("not authorized")
	}

	claims, err := m.tokens.ParseToken(raw)
	if err != nil {
		return apperrors.NewUnauthenticated("not authorized")
	}

	user, err := m.users.GetByID(c.UserContext(), claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthenticated("invalid token")
		}
		return apperrors.MapError(err)
	}

	if user.IsBlocked() {
		return apperrors.NewForbidden("account blocked")
	}

	c.Locals(principalKey, user)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated account.
func PrincipalFromContext(c *fiber.Ctx) (*domain.User, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*domain.User)
	return principal, ok
}

func extractToken(c *fiber.Ctx) string {
	if cookie := c.Cookies(TokenCookie); cookie != "" {
		return cookie
	}

	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
