package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository/repotest"
	apperrors "github.com/spec-kit/service-desk/pkg/util"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 15)
	staff := &domain.StaffMember{ID: "staff-1", Role: domain.StaffRoleTeamLead}

	token, expiresAt, err := tm.GenerateToken(staff)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.Subject)
	assert.Equal(t, domain.StaffRoleTeamLead, claims.Role)
	assert.Equal(t, "service-desk", claims.Issuer)
}

func TestParseToken_Rejects(t *testing.T) {
	tm := NewTokenManager("secret", 15)
	staff := &domain.StaffMember{ID: "staff-1", Role: domain.StaffRoleAgent}
	token, _, err := tm.GenerateToken(staff)
	require.NoError(t, err)

	_, err = NewTokenManager("other", 15).ParseToken(token)
	assert.Error(t, err, "wrong secret")

	expired := NewTokenManager("secret", 15)
	expired.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = expired.ParseToken(token)
	assert.Error(t, err, "expired")

	_, err = tm.ParseToken("not-a-jwt")
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	hashed, err := HashPassword("correct horse", 0)
	require.NoError(t, err)

	assert.NoError(t, ComparePassword(hashed, "correct horse"))
	assert.Error(t, ComparePassword(hashed, "battery staple"))
}

func newAuthApp(t *testing.T, tm *TokenManager, staff *repotest.MockStaffRepository, roles ...domain.StaffRole) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				return c.SendStatus(fiberErr.Code)
			}
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	mw := NewMiddleware(tm, staff)
	app.Get("/me", mw.Handle, RequireRole(roles...), func(c *fiber.Ctx) error {
		member, ok := StaffFromContext(c)
		require.True(t, ok)
		return c.SendString(member.ID)
	})
	return app
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", 15)
	staff := &repotest.MockStaffRepository{Staff: map[string]*domain.StaffMember{
		"agent":  {ID: "agent", Role: domain.StaffRoleAgent, Active: true},
		"admin":  {ID: "admin", Role: domain.StaffRoleAdmin, Active: true},
		"former": {ID: "former", Role: domain.StaffRoleAdmin, Active: false},
	}}
	tokenFor := func(id string, role domain.StaffRole) string {
		token, _, err := tm.GenerateToken(&domain.StaffMember{ID: id, Role: role})
		require.NoError(t, err)
		return "Bearer " + token
	}

	cases := []struct {
		name   string
		header string
		roles  []domain.StaffRole
		want   int
	}{
		{"missing header", "", nil, fiber.StatusUnauthorized},
		{"wrong scheme", "Basic abc", nil, fiber.StatusUnauthorized},
		{"garbage token", "Bearer abc", nil, fiber.StatusUnauthorized},
		{"unknown staff", tokenFor("ghost", domain.StaffRoleAdmin), nil, fiber.StatusUnauthorized},
		{"inactive staff", tokenFor("former", domain.StaffRoleAdmin), nil, fiber.StatusUnauthorized},
		{"any role", tokenFor("agent", domain.StaffRoleAgent), nil, fiber.StatusOK},
		{"role denied", tokenFor("agent", domain.StaffRoleAgent), []domain.StaffRole{domain.StaffRoleAdmin}, fiber.StatusForbidden},
		{"role allowed", tokenFor("admin", domain.StaffRoleAdmin), []domain.StaffRole{domain.StaffRoleAdmin}, fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newAuthApp(t, tm, staff, tc.roles...)
			req := httptest.NewRequest("GET", "/me", nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}
