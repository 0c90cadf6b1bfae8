package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util"
)

// StaffService manages staff accounts, departments and teams.
type StaffService struct {
	departments repository.DepartmentRepository
	teams       repository.TeamRepository
	staff       repository.StaffRepository
	bcryptCost  int
}

// OrgDependencies encapsulates repositories required for org management.
type OrgDependencies struct {
	DepartmentRepo repository.DepartmentRepository
	TeamRepo       repository.TeamRepository
	StaffRepo      repository.StaffRepository
}

// StaffListFilters define listing parameters.
type StaffListFilters struct {
	Role         *domain.StaffRole
	DepartmentID *string
	Active       *bool
	Limit        int
	Offset       int
}

// StaffCreateInput describes a new staff account.
type StaffCreateInput struct {
	Name         string
	Email        string
	Password     string
	Role         domain.StaffRole
	DepartmentID *string
}

// NewStaffService constructs the service.
func NewStaffService(cfg config.AuthConfig, deps OrgDependencies) *StaffService {
	return &StaffService{
		departments: deps.DepartmentRepo,
		teams:       deps.TeamRepo,
		staff:       deps.StaffRepo,
		bcryptCost:  cfg.BcryptCost,
	}
}

func requireAdmin(actor *domain.StaffMember) error {
	if actor == nil || actor.Role != domain.StaffRoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// CreateDepartment creates a new active department.
func (s *StaffService) CreateDepartment(ctx context.Context, actor *domain.StaffMember, name, description string) (*domain.Department, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", nil)
	}
	dept := &domain.Department{Name: name, Description: strings.TrimSpace(description), IsActive: true}
	if err := s.departments.Create(ctx, dept); err != nil {
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}

// ListDepartments lists active departments.
func (s *StaffService) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	depts, err := s.departments.ListActive(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return depts, nil
}

// CreateTeam adds an active team to an active department.
func (s *StaffService) CreateTeam(ctx context.Context, actor *domain.StaffMember, departmentID, name, description string) (*domain.Team, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", nil)
	}
	dept, err := s.departments.GetByID(ctx, departmentID)
	if err != nil {
		return nil, apperrors.NotFoundOr(err, "department", map[string]any{"department_id": departmentID})
	}
	if !dept.AcceptsWork() {
		return nil, apperrors.NewConflict("department inactive", map[string]any{"department_id": dept.ID})
	}
	team := &domain.Team{DepartmentID: dept.ID, Name: name, Description: strings.TrimSpace(description), IsActive: true}
	if err := s.teams.Create(ctx, team); err != nil {
		return nil, apperrors.MapError(err)
	}
	return team, nil
}

// ListTeams lists the active teams of a department.
func (s *StaffService) ListTeams(ctx context.Context, departmentID string) ([]domain.Team, error) {
	if _, err := s.departments.GetByID(ctx, departmentID); err != nil {
		return nil, apperrors.NotFoundOr(err, "department", map[string]any{"department_id": departmentID})
	}
	teams, err := s.teams.ListActiveByDepartment(ctx, departmentID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return teams, nil
}

// CreateStaffMember adds a new staff account.
func (s *StaffService) CreateStaffMember(ctx context.Context, actor *domain.StaffMember, input StaffCreateInput) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.NewValidationError("name and email are required", nil)
	}
	if len(input.Password) < 8 {
		return nil, apperrors.NewValidationError("password must be at least 8 characters", nil)
	}
	role := input.Role
	if role == "" {
		role = domain.StaffRoleAgent
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}

	if _, err := s.staff.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("staff email already exists", map[string]any{"email": email})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	if input.DepartmentID != nil {
		dept, err := s.departments.GetByID(ctx, *input.DepartmentID)
		if err != nil {
			return nil, apperrors.NotFoundOr(err, "department", map[string]any{"department_id": *input.DepartmentID})
		}
		if !dept.AcceptsWork() {
			return nil, apperrors.NewConflict("department inactive", map[string]any{"department_id": dept.ID})
		}
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	staff := &domain.StaffMember{
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		DepartmentID: input.DepartmentID,
		Active:       true,
	}
	if err := s.staff.Create(ctx, staff); err != nil {
		return nil, apperrors.MapError(err)
	}
	return staff, nil
}

// ListStaffMembers lists staff with filters.
func (s *StaffService) ListStaffMembers(ctx context.Context, actor *domain.StaffMember, filters StaffListFilters) ([]domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	staff, err := s.staff.List(ctx, repository.StaffFilter{
		Role:         filters.Role,
		DepartmentID: filters.DepartmentID,
		Active:       filters.Active,
		Limit:        filters.Limit,
		Offset:       filters.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return staff, nil
}
