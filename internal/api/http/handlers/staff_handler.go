package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-desk/internal/api/dto"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/service"
	apperrors "github.com/spec-kit/service-desk/pkg/util"
)

// StaffHandler exposes staff login and organisation endpoints.
type StaffHandler struct {
	authService *service.AuthService
	orgService  *service.StaffService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(authService *service.AuthService, orgService *service.StaffService) *StaffHandler {
	return &StaffHandler{authService: authService, orgService: orgService}
}

// Login handles POST /auth/staff/login.
func (h *StaffHandler) Login(c *fiber.Ctx) error {
	var req dto.StaffLoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	staff, token, exp, err := h.authService.LoginStaff(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"staff": staffResponse(staff),
			"auth":  dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// Me handles GET /staff/me.
func (h *StaffHandler) Me(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": staffResponse(staff)})
}

// CreateDepartment handles POST /staff/departments.
func (h *StaffHandler) CreateDepartment(c *fiber.Ctx) error {
	admin, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.DepartmentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	dept, err := h.orgService.CreateDepartment(c.UserContext(), admin, req.Name, req.Description)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": departmentResponse(dept)})
}

// ListDepartments handles GET /staff/departments.
func (h *StaffHandler) ListDepartments(c *fiber.Ctx) error {
	depts, err := h.orgService.ListDepartments(c.UserContext())
	if err != nil {
		return err
	}
	resp := make([]dto.DepartmentResponse, 0, len(depts))
	for i := range depts {
		resp = append(resp, departmentResponse(&depts[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// CreateTeam handles POST /staff/departments/:id/teams.
func (h *StaffHandler) CreateTeam(c *fiber.Ctx) error {
	admin, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.DepartmentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	team, err := h.orgService.CreateTeam(c.UserContext(), admin, c.Params("id"), req.Name, req.Description)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": teamResponse(team)})
}

// ListTeams handles GET /staff/departments/:id/teams.
func (h *StaffHandler) ListTeams(c *fiber.Ctx) error {
	teams, err := h.orgService.ListTeams(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	resp := make([]dto.TeamResponse, 0, len(teams))
	for i := range teams {
		resp = append(resp, teamResponse(&teams[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// CreateStaff handles POST /staff/members.
func (h *StaffHandler) CreateStaff(c *fiber.Ctx) error {
	admin, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.StaffCreateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	staff, err := h.orgService.CreateStaffMember(c.UserContext(), admin, service.StaffCreateInput{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		Role:         domain.StaffRole(strings.ToUpper(string(req.Role))),
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": staffResponse(staff)})
}

// ListStaff handles GET /staff/members.
func (h *StaffHandler) ListStaff(c *fiber.Ctx) error {
	admin, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	list, err := h.orgService.ListStaffMembers(c.UserContext(), admin, parseStaffListFilters(c))
	if err != nil {
		return err
	}
	resp := make([]dto.StaffResponse, 0, len(list))
	for i := range list {
		resp = append(resp, staffResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

func parseStaffListFilters(c *fiber.Ctx) service.StaffListFilters {
	var filters service.StaffListFilters
	if roleStr := c.Query("role"); roleStr != "" {
		role := domain.StaffRole(strings.ToUpper(roleStr))
		filters.Role = &role
	}
	filters.DepartmentID = optionalQuery(c, "department_id")
	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filters.Active = &val
		}
	}
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 50)
	filters.Offset = (page - 1) * pageSize
	filters.Limit = pageSize
	return filters
}
