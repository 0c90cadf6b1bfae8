package escalation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
)

// Handle dispatches rule's action for ticket and then emits
// escalation_triggered, including when the action had nothing to do.
// Persistence failures are returned; notification failures are only logged.
func (e *Evaluator) Handle(ctx context.Context, rule *domain.EscalationRule, ticket *domain.Ticket) error {
	var recipients []domain.ActorRef
	var err error

	switch rule.Action {
	case domain.ActionNotify:
		recipients = e.notify(ctx, rule, ticket)
	case domain.ActionReassign:
		err = e.reassign(ctx, rule, ticket)
	case domain.ActionChangePriority:
		err = e.changePriority(ctx, rule, ticket)
	case domain.ActionCustom:
		err = e.custom(ctx, rule, ticket)
	default:
		e.logger.Warn("unknown escalation action",
			zap.String("rule_id", rule.ID),
			zap.String("action", string(rule.Action)))
	}
	if err != nil {
		return err
	}

	e.metrics.RecordEscalation(string(rule.Action))
	escalated := map[string]any{
		"rule_id":      rule.ID,
		"policy_id":    rule.PolicyID,
		"breach_type":  rule.BreachType,
		"trigger_type": rule.TriggerType,
		"action":       rule.Action,
	}
	if len(recipients) > 0 {
		notified := make([]string, 0, len(recipients))
		for _, r := range recipients {
			notified = append(notified, r.String())
		}
		escalated["recipients"] = notified
	}
	e.recordHistory(ctx, ticket.ID, domain.ChangeTypeEscalated, nil, escalated)
	if e.dispatcher != nil {
		event := events.New(events.EventEscalationTriggered, ticket.ID, domain.SystemActor, e.now(), events.EscalationTriggeredPayload{
			RuleID:      rule.ID,
			PolicyID:    rule.PolicyID,
			BreachType:  rule.BreachType,
			TriggerType: rule.TriggerType,
			Action:      rule.Action,
			Recipients:  recipients,
		})
		_ = e.dispatcher.Publish(ctx, event)
	}
	e.logger.Info("escalation triggered",
		zap.String("ticket_id", ticket.ID),
		zap.String("rule_id", rule.ID),
		zap.String("action", string(rule.Action)))
	return nil
}

// Recipients returns the configured staff ids plus the current assignee,
// without duplicates. A team assignee never collapses into a staff member
// sharing its id.
func Recipients(rule *domain.EscalationRule, ticket *domain.Ticket) []domain.ActorRef {
	seen := make(map[domain.ActorRef]struct{})
	var out []domain.ActorRef
	add := func(ref domain.ActorRef) {
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	for _, id := range rule.ActionConfig.NotifyUsers {
		if id != "" {
			add(domain.StaffRef(id))
		}
	}
	if ticket.Assignee != nil && !ticket.Assignee.IsZero() {
		add(*ticket.Assignee)
	}
	return out
}

func (e *Evaluator) notify(ctx context.Context, rule *domain.EscalationRule, ticket *domain.Ticket) []domain.ActorRef {
	recipients := Recipients(rule, ticket)
	if len(recipients) == 0 || e.notifier == nil {
		return recipients
	}
	if err := e.notifier.NotifyEscalation(ctx, rule, ticket, recipients); err != nil {
		e.logger.Warn("escalation notification failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("rule_id", rule.ID),
			zap.Error(err))
	}
	return recipients
}

func (e *Evaluator) reassign(ctx context.Context, rule *domain.EscalationRule, ticket *domain.Ticket) error {
	cfg := rule.ActionConfig
	if cfg.AssignToID == "" {
		return nil
	}
	kind := cfg.AssignToType
	if kind == "" {
		kind = domain.ActorKindStaff
	}
	target := domain.ActorRef{Kind: kind, ID: cfg.AssignToID}
	previous := ticket.Assignee

	if err := e.tickets.UpdateAssignee(ctx, ticket.ID, &target); err != nil {
		return fmt.Errorf("reassign ticket: %w", err)
	}
	ticket.Assignee = &target

	e.recordHistory(ctx, ticket.ID, domain.ChangeTypeAssignee,
		map[string]any{"assignee": actorValue(previous)},
		map[string]any{"assignee": target.String(), "rule_id": rule.ID})
	e.publish(ctx, events.EventTicketAssigned, ticket.ID, events.TicketAssignedPayload{Previous: previous, Assignee: &target})
	return nil
}

func (e *Evaluator) changePriority(ctx context.Context, rule *domain.EscalationRule, ticket *domain.Ticket) error {
	priority := rule.ActionConfig.Priority
	if priority == "" {
		return nil
	}
	if !priority.Valid() {
		e.logger.Warn("escalation rule configures unknown priority",
			zap.String("rule_id", rule.ID),
			zap.String("priority", string(priority)))
		return nil
	}
	previous := ticket.Priority

	if err := e.tickets.UpdatePriority(ctx, ticket.ID, priority); err != nil {
		return fmt.Errorf("change ticket priority: %w", err)
	}
	ticket.Priority = priority

	e.recordHistory(ctx, ticket.ID, domain.ChangeTypePriority,
		map[string]any{"priority": previous},
		map[string]any{"priority": priority, "rule_id": rule.ID})
	e.publish(ctx, events.EventTicketPriorityChanged, ticket.ID, events.TicketPriorityChangedPayload{
		OldPriority: previous,
		NewPriority: priority,
	})
	return nil
}

func (e *Evaluator) custom(ctx context.Context, rule *domain.EscalationRule, ticket *domain.Ticket) error {
	key := rule.ActionConfig.Handler
	if key == "" {
		e.logger.Warn("custom escalation rule has no handler", zap.String("rule_id", rule.ID))
		return nil
	}
	handler, ok := e.registry.Lookup(key)
	if !ok {
		e.logger.Warn("custom escalation handler not registered",
			zap.String("rule_id", rule.ID),
			zap.String("handler", key))
		return nil
	}
	if err := handler.Handle(ctx, rule, ticket); err != nil {
		return fmt.Errorf("custom handler %s: %w", key, err)
	}
	return nil
}

func (e *Evaluator) recordHistory(ctx context.Context, ticketID string, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	if e.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangedBy:  domain.SystemActor,
		ChangeType: change,
		OldValue:   oldValue,
		NewValue:   newValue,
	}
	if err := e.history.Create(ctx, entry); err != nil {
		e.logger.Warn("failed to record ticket history",
			zap.String("ticket_id", ticketID),
			zap.String("change_type", string(change)),
			zap.Error(err))
	}
}

func (e *Evaluator) publish(ctx context.Context, eventType events.EventType, ticketID string, payload interface{}) {
	if e.dispatcher == nil {
		return
	}
	_ = e.dispatcher.Publish(ctx, events.New(eventType, ticketID, domain.SystemActor, e.now(), payload))
}

func actorValue(actor *domain.ActorRef) any {
	if actor == nil {
		return nil
	}
	return actor.String()
}
