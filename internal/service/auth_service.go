package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util"
)

// AuthService handles staff login for the admin API.
type AuthService struct {
	staff    repository.StaffRepository
	tokenMgr *auth.TokenManager
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, staff repository.StaffRepository) *AuthService {
	return &AuthService{
		staff:    staff,
		tokenMgr: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
	}
}

// LoginStaff checks credentials and returns a signed token. Unknown email,
// wrong password and inactive accounts all yield the same error.
func (s *AuthService) LoginStaff(ctx context.Context, email, password string) (*domain.StaffMember, string, time.Time, error) {
	invalid := apperrors.NewUnauthorized("invalid credentials")

	staff, err := s.staff.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", time.Time{}, invalid
		}
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	if !staff.Active {
		return nil, "", time.Time{}, invalid
	}
	if err := auth.ComparePassword(staff.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, invalid
	}
	token, exp, err := s.tokenMgr.GenerateToken(staff)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return staff, token, exp, nil
}

// TokenManager exposes the token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
