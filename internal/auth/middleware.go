package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/service-desk/internal/domain"
	apperrors "github.com/spec-kit/service-desk/pkg/util"
)

const staffKey = "auth_staff"

// StaffLookup loads the staff member named by a token.
type StaffLookup interface {
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
}

// Middleware validates bearer tokens and loads the calling staff member.
type Middleware struct {
	tokens *TokenManager
	staff  StaffLookup
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager, staff StaffLookup) *Middleware {
	return &Middleware{tokens: tokens, staff: staff}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(token))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	staff, err := m.staff.GetByID(c.UserContext(), claims.Subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("staff not found")
		}
		return apperrors.MapError(err)
	}
	if !staff.Active {
		return apperrors.NewUnauthorized("staff inactive")
	}

	c.Locals(staffKey, staff)
	return c.Next()
}

// StaffFromContext returns the authenticated staff member.
func StaffFromContext(c *fiber.Ctx) (*domain.StaffMember, bool) {
	staff, ok := c.Locals(staffKey).(*domain.StaffMember)
	return staff, ok && staff != nil
}
