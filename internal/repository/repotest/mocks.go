// Package repotest provides repository doubles for service and engine tests.
package repotest

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
)

// MockTicketRepository delegates to function fields. Unset getters return
// pgx.ErrNoRows, unset mutators succeed.
type MockTicketRepository struct {
	CreateFunc           func(ctx context.Context, ticket *domain.Ticket) error
	UpdateFunc           func(ctx context.Context, ticket *domain.Ticket) error
	GetByIDFunc          func(ctx context.Context, id string) (*domain.Ticket, error)
	GetByExternalKeyFunc func(ctx context.Context, key string) (*domain.Ticket, error)
	ListWithFilterFunc   func(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error)
	ListOpenFunc         func(ctx context.Context, policyID *string) ([]domain.Ticket, error)
	SetPolicyFunc        func(ctx context.Context, ticketID string, policyID *string) error
	UpdatePriorityFunc   func(ctx context.Context, ticketID string, priority domain.TicketPriority) error
	UpdateAssigneeFunc   func(ctx context.Context, ticketID string, assignee *domain.ActorRef) error
}

func (m *MockTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if m.CreateFunc == nil {
		return nil
	}
	return m.CreateFunc(ctx, ticket)
}

func (m *MockTicketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	if m.UpdateFunc == nil {
		return nil
	}
	return m.UpdateFunc(ctx, ticket)
}

func (m *MockTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if m.GetByIDFunc == nil {
		return nil, pgx.ErrNoRows
	}
	return m.GetByIDFunc(ctx, id)
}

func (m *MockTicketRepository) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	if m.GetByExternalKeyFunc == nil {
		return nil, pgx.ErrNoRows
	}
	return m.GetByExternalKeyFunc(ctx, key)
}

func (m *MockTicketRepository) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	if m.ListWithFilterFunc == nil {
		return nil, nil
	}
	return m.ListWithFilterFunc(ctx, filter)
}

func (m *MockTicketRepository) ListOpen(ctx context.Context, policyID *string) ([]domain.Ticket, error) {
	if m.ListOpenFunc == nil {
		return nil, nil
	}
	return m.ListOpenFunc(ctx, policyID)
}

func (m *MockTicketRepository) SetPolicy(ctx context.Context, ticketID string, policyID *string) error {
	if m.SetPolicyFunc == nil {
		return nil
	}
	return m.SetPolicyFunc(ctx, ticketID, policyID)
}

func (m *MockTicketRepository) UpdatePriority(ctx context.Context, ticketID string, priority domain.TicketPriority) error {
	if m.UpdatePriorityFunc == nil {
		return nil
	}
	return m.UpdatePriorityFunc(ctx, ticketID, priority)
}

func (m *MockTicketRepository) UpdateAssignee(ctx context.Context, ticketID string, assignee *domain.ActorRef) error {
	if m.UpdateAssigneeFunc == nil {
		return nil
	}
	return m.UpdateAssigneeFunc(ctx, ticketID, assignee)
}

// MockBusinessHoursRepository serves schedules from a map unless a function
// field overrides it.
type MockBusinessHoursRepository struct {
	Schedules      map[string]*domain.BusinessHoursSchedule
	GetByIDFunc    func(ctx context.Context, id string) (*domain.BusinessHoursSchedule, error)
	GetDefaultFunc func(ctx context.Context) (*domain.BusinessHoursSchedule, error)
}

func (m *MockBusinessHoursRepository) GetByID(ctx context.Context, id string) (*domain.BusinessHoursSchedule, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	if schedule, ok := m.Schedules[id]; ok {
		return schedule, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *MockBusinessHoursRepository) GetDefault(ctx context.Context) (*domain.BusinessHoursSchedule, error) {
	if m.GetDefaultFunc != nil {
		return m.GetDefaultFunc(ctx)
	}
	for _, schedule := range m.Schedules {
		if schedule.IsDefault && schedule.IsActive {
			return schedule, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *MockBusinessHoursRepository) ListActive(ctx context.Context) ([]domain.BusinessHoursSchedule, error) {
	var result []domain.BusinessHoursSchedule
	for _, schedule := range m.Schedules {
		if schedule.IsActive {
			result = append(result, *schedule)
		}
	}
	return result, nil
}

// MockSlaPolicyRepository serves a fixed policy list.
type MockSlaPolicyRepository struct {
	Policies           []domain.SlaPolicy
	ListActiveFunc     func(ctx context.Context) ([]domain.SlaPolicy, error)
	ListActiveRuleFunc func(ctx context.Context, policyID string) ([]domain.EscalationRule, error)
}

func (m *MockSlaPolicyRepository) ListActive(ctx context.Context) ([]domain.SlaPolicy, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	var result []domain.SlaPolicy
	for _, policy := range m.Policies {
		if policy.IsActive {
			result = append(result, policy)
		}
	}
	return result, nil
}

func (m *MockSlaPolicyRepository) GetByID(_ context.Context, id string) (*domain.SlaPolicy, error) {
	for i := range m.Policies {
		if m.Policies[i].ID == id {
			policy := m.Policies[i]
			return &policy, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *MockSlaPolicyRepository) ListActiveRules(ctx context.Context, policyID string) ([]domain.EscalationRule, error) {
	if m.ListActiveRuleFunc != nil {
		return m.ListActiveRuleFunc(ctx, policyID)
	}
	for _, policy := range m.Policies {
		if policy.ID != policyID {
			continue
		}
		var rules []domain.EscalationRule
		for _, rule := range policy.EscalationRules {
			if rule.IsActive {
				rules = append(rules, rule)
			}
		}
		return rules, nil
	}
	return nil, nil
}

// HistoryRecorder keeps created history entries in memory.
type HistoryRecorder struct {
	mu      sync.Mutex
	Entries []domain.TicketHistory
}

func (h *HistoryRecorder) Create(_ context.Context, history *domain.TicketHistory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Entries = append(h.Entries, *history)
	return nil
}

func (h *HistoryRecorder) ListByTicket(_ context.Context, ticketID string, types ...domain.TicketChangeType) ([]domain.TicketHistory, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var result []domain.TicketHistory
	for _, entry := range h.Entries {
		if entry.TicketID != ticketID {
			continue
		}
		if len(types) > 0 && !slices.Contains(types, entry.ChangeType) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

// OfType returns recorded entries of one change type.
func (h *HistoryRecorder) OfType(change domain.TicketChangeType) []domain.TicketHistory {
	h.mu.Lock()
	defer h.mu.Unlock()
	var result []domain.TicketHistory
	for _, entry := range h.Entries {
		if entry.ChangeType == change {
			result = append(result, entry)
		}
	}
	return result
}

// MockStaffRepository keeps staff in a map keyed by id.
type MockStaffRepository struct {
	mu    sync.Mutex
	Staff map[string]*domain.StaffMember
}

func (m *MockStaffRepository) Create(_ context.Context, staff *domain.StaffMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Staff == nil {
		m.Staff = make(map[string]*domain.StaffMember)
	}
	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	copied := *staff
	m.Staff[staff.ID] = &copied
	return nil
}

func (m *MockStaffRepository) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if staff, ok := m.Staff[id]; ok {
		copied := *staff
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *MockStaffRepository) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, staff := range m.Staff {
		if strings.EqualFold(staff.Email, email) {
			copied := *staff
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *MockStaffRepository) List(_ context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.StaffMember
	for _, staff := range m.Staff {
		if filter.Role != nil && staff.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && staff.Active != *filter.Active {
			continue
		}
		result = append(result, *staff)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// MockDepartmentRepository keeps departments in a map keyed by id.
type MockDepartmentRepository struct {
	mu          sync.Mutex
	Departments map[string]*domain.Department
}

func (m *MockDepartmentRepository) Create(_ context.Context, dept *domain.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Departments == nil {
		m.Departments = make(map[string]*domain.Department)
	}
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	copied := *dept
	m.Departments[dept.ID] = &copied
	return nil
}

func (m *MockDepartmentRepository) GetByID(_ context.Context, id string) (*domain.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dept, ok := m.Departments[id]; ok {
		copied := *dept
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *MockDepartmentRepository) ListActive(_ context.Context) ([]domain.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Department
	for _, dept := range m.Departments {
		if dept.IsActive {
			result = append(result, *dept)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// MockTeamRepository keeps teams in a map keyed by id.
type MockTeamRepository struct {
	mu    sync.Mutex
	Teams map[string]*domain.Team
}

func (m *MockTeamRepository) Create(_ context.Context, team *domain.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Teams == nil {
		m.Teams = make(map[string]*domain.Team)
	}
	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	copied := *team
	m.Teams[team.ID] = &copied
	return nil
}

func (m *MockTeamRepository) GetByID(_ context.Context, id string) (*domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if team, ok := m.Teams[id]; ok {
		copied := *team
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *MockTeamRepository) ListActiveByDepartment(_ context.Context, departmentID string) ([]domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Team
	for _, team := range m.Teams {
		if team.IsActive && team.DepartmentID == departmentID {
			result = append(result, *team)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}
