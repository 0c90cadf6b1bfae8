package dto

import (
	"time"

	"github.com/spec-kit/service-desk/internal/domain"
)

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries a signed bearer token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DepartmentRequest payload.
type DepartmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DepartmentResponse representation.
type DepartmentResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

// TeamResponse representation.
type TeamResponse struct {
	ID           string `json:"id"`
	DepartmentID string `json:"department_id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	IsActive     bool   `json:"is_active"`
}

// StaffCreateRequest payload for admins.
type StaffCreateRequest struct {
	Name         string           `json:"name"`
	Email        string           `json:"email"`
	Password     string           `json:"password"`
	Role         domain.StaffRole `json:"role"`
	DepartmentID *string          `json:"department_id"`
}

// StaffResponse representation.
type StaffResponse struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Email        string           `json:"email"`
	Role         domain.StaffRole `json:"role"`
	DepartmentID *string          `json:"department_id"`
	Active       bool             `json:"active"`
}
