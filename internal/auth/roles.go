package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/repairdesk/repairdesk/internal/domain"
	apperrors "github.com/repairdesk/repairdesk/pkg/util/errorutil"
)

// RequireRole ensures the caller holds one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAuthenticated ensures a principal was loaded.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
