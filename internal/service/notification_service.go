package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
)

// NotificationService turns SLA events into email and webhook deliveries.
// Delivery itself is stubbed with structured logs.
type NotificationService struct {
	logger *zap.Logger
	cfg    config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{logger: logger.Named("notifications"), cfg: cfg}
}

// RegisterHandlers subscribes to the events that warrant a notification.
func (n *NotificationService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventSlaApplied, n.handleWebhookOnly)
	dispatcher.Subscribe(events.EventSlaBreached, n.handleBreach)
	dispatcher.Subscribe(events.EventSlaNearBreach, n.handleNearBreach)
	dispatcher.Subscribe(events.EventEscalationTriggered, n.handleWebhookOnly)
	dispatcher.Subscribe(events.EventTicketAssigned, n.handleAssigned)
	dispatcher.Subscribe(events.EventTicketPriorityChanged, n.handleWebhookOnly)
}

// NotifyEscalation delivers a notify-action escalation to its recipients.
func (n *NotificationService) NotifyEscalation(ctx context.Context, rule *domain.EscalationRule, ticket *domain.Ticket, recipients []domain.ActorRef) error {
	for _, recipient := range recipients {
		n.sendEmailStub(ctx, recipient, ticket.ID, "escalation",
			zap.String("rule_id", rule.ID),
			zap.String("breach_type", string(rule.BreachType)))
	}
	return nil
}

func (n *NotificationService) handleBreach(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SlaBreachedPayload)
	if !ok {
		return n.handleWebhookOnly(ctx, event)
	}
	n.logger.Info("sla breached",
		zap.String("ticket_id", event.TicketID),
		zap.String("kind", string(payload.Kind)),
		zap.Time("due_at", payload.DueAt))
	if payload.Assignee != nil {
		n.sendEmailStub(ctx, *payload.Assignee, event.TicketID, string(event.Type), zap.String("kind", string(payload.Kind)))
	}
	n.sendWebhookStub(ctx, event)
	return nil
}

func (n *NotificationService) handleNearBreach(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SlaNearBreachPayload)
	if !ok {
		return n.handleWebhookOnly(ctx, event)
	}
	if payload.Assignee != nil {
		n.sendEmailStub(ctx, *payload.Assignee, event.TicketID, string(event.Type),
			zap.String("kind", string(payload.Kind)),
			zap.Int("minutes_remaining", payload.MinutesRemaining))
	}
	n.sendWebhookStub(ctx, event)
	return nil
}

func (n *NotificationService) handleAssigned(ctx context.Context, event events.Event) error {
	if payload, ok := event.Payload.(events.TicketAssignedPayload); ok && payload.Assignee != nil {
		n.sendEmailStub(ctx, *payload.Assignee, event.TicketID, string(event.Type))
	}
	n.sendWebhookStub(ctx, event)
	return nil
}

func (n *NotificationService) handleWebhookOnly(ctx context.Context, event events.Event) error {
	n.sendWebhookStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailStub(_ context.Context, to domain.ActorRef, ticketID, reason string, fields ...zap.Field) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("email notification",
		append([]zap.Field{
			zap.String("from", n.cfg.EmailFrom),
			zap.String("to", to.String()),
			zap.String("ticket_id", ticketID),
			zap.String("reason", reason),
		}, fields...)...)
}

func (n *NotificationService) sendWebhookStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("webhook notification",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
