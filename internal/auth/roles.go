package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-desk/internal/domain"
	apperrors "github.com/spec-kit/service-desk/pkg/util"
)

// RequireRole admits authenticated staff holding one of the allowed roles.
// With no roles any authenticated staff member passes.
func RequireRole(allowed ...domain.StaffRole) fiber.Handler {
	allowedSet := make(map[domain.StaffRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		staff, ok := StaffFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("staff authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[staff.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
