package repotest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
)

// NewMemoryTicketRepository returns a MockTicketRepository whose function
// fields are backed by a map. Callers may still override single fields.
func NewMemoryTicketRepository() *MockTicketRepository {
	var mu sync.Mutex
	tickets := map[string]domain.Ticket{}
	mutate := func(id string, fn func(t *domain.Ticket)) error {
		mu.Lock()
		defer mu.Unlock()
		ticket, ok := tickets[id]
		if !ok {
			return pgx.ErrNoRows
		}
		fn(&ticket)
		tickets[id] = ticket
		return nil
	}
	return &MockTicketRepository{
		CreateFunc: func(_ context.Context, ticket *domain.Ticket) error {
			mu.Lock()
			defer mu.Unlock()
			ticket.ID = uuid.NewString()
			tickets[ticket.ID] = *ticket
			return nil
		},
		UpdateFunc: func(_ context.Context, ticket *domain.Ticket) error {
			return mutate(ticket.ID, func(t *domain.Ticket) { *t = *ticket })
		},
		GetByIDFunc: func(_ context.Context, id string) (*domain.Ticket, error) {
			mu.Lock()
			defer mu.Unlock()
			ticket, ok := tickets[id]
			if !ok {
				return nil, pgx.ErrNoRows
			}
			return &ticket, nil
		},
		ListWithFilterFunc: func(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
			mu.Lock()
			defer mu.Unlock()
			var result []domain.Ticket
			for _, ticket := range tickets {
				if filter.DepartmentID != nil && (ticket.DepartmentID == nil || *ticket.DepartmentID != *filter.DepartmentID) {
					continue
				}
				result = append(result, ticket)
			}
			return result, nil
		},
		SetPolicyFunc: func(_ context.Context, id string, policyID *string) error {
			return mutate(id, func(t *domain.Ticket) { t.SlaPolicyID = policyID })
		},
		UpdatePriorityFunc: func(_ context.Context, id string, priority domain.TicketPriority) error {
			return mutate(id, func(t *domain.Ticket) { t.Priority = priority })
		},
		UpdateAssigneeFunc: func(_ context.Context, id string, assignee *domain.ActorRef) error {
			return mutate(id, func(t *domain.Ticket) { t.Assignee = assignee })
		},
	}
}
