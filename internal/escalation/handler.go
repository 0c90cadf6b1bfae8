package escalation

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/service-desk/internal/domain"
)

// Handler performs an escalation action for a ticket. Handlers may update
// the ticket in place so later rules in the same scan see the change.
type Handler interface {
	Handle(ctx context.Context, rule *domain.EscalationRule, ticket *domain.Ticket) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, rule *domain.EscalationRule, ticket *domain.Ticket) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, rule *domain.EscalationRule, ticket *domain.Ticket) error {
	return f(ctx, rule, ticket)
}

// Registry resolves the handler key configured on custom rules.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds key to handler, replacing any earlier binding.
func (r *Registry) Register(key string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key] = handler
}

// Lookup returns the handler bound to key.
func (r *Registry) Lookup(key string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[key]
	return handler, ok && handler != nil
}

// Keys lists registered handler keys in order.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.handlers))
	for key := range r.handlers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Notifier delivers escalation notices. Delivery is fire-and-forget from
// the evaluator's point of view.
type Notifier interface {
	NotifyEscalation(ctx context.Context, rule *domain.EscalationRule, ticket *domain.Ticket, recipients []domain.ActorRef) error
}
