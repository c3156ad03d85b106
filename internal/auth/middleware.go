package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/repairdesk/repairdesk/internal/domain"
	"github.com/repairdesk/repairdesk/internal/repository"
	apperrors "github.com/repairdesk/repairdesk/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	UserID int64
	Role   domain.Role
	User   *domain.User
}

// IsStaff reports whether the caller works tickets rather than files them.
func (p *Principal) IsStaff() bool {
	return p != nil && p.Role.IsStaff()
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	user, err := m.users.GetByID(c.UserContext(), claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("user not found")
		}
		return apperrors.MapError(err)
	}

	// The stored role wins over the token's so demotions apply immediately.
	c.Locals(principalKey, &Principal{UserID: user.ID, Role: user.Role, User: user})
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

// WithPrincipal stores p on the request. Used by tests that bypass token parsing.
func WithPrincipal(c *fiber.Ctx, p *Principal) {
	c.Locals(principalKey, p)
}
