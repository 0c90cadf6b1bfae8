package escalation

import (
	"context"
	"fmt"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
)

// HandlerUnassign returns a breached ticket to the unassigned queue.
const HandlerUnassign = "unassign"

// RegisterBuiltins binds the evaluator's built-in custom handlers. Keys the
// registry already holds are left alone so deployments can override them.
func (e *Evaluator) RegisterBuiltins() {
	if _, ok := e.registry.Lookup(HandlerUnassign); !ok {
		e.registry.Register(HandlerUnassign, HandlerFunc(e.unassign))
	}
}

func (e *Evaluator) unassign(ctx context.Context, rule *domain.EscalationRule, ticket *domain.Ticket) error {
	if ticket.Assignee == nil || ticket.Assignee.IsZero() {
		return nil
	}
	previous := ticket.Assignee
	if err := e.tickets.UpdateAssignee(ctx, ticket.ID, nil); err != nil {
		return fmt.Errorf("unassign ticket: %w", err)
	}
	ticket.Assignee = nil

	e.recordHistory(ctx, ticket.ID, domain.ChangeTypeAssignee,
		map[string]any{"assignee": actorValue(previous)},
		map[string]any{"assignee": nil, "rule_id": rule.ID})
	e.publish(ctx, events.EventTicketAssigned, ticket.ID, events.TicketAssignedPayload{Previous: previous})
	return nil
}
