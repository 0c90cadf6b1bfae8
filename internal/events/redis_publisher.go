package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher is the subset of the redis client the fan-out needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisFanout forwards every dispatched event to a Redis channel so other
// processes (notification workers, dashboards) can follow SLA activity.
type RedisFanout struct {
	client  Publisher
	channel string
	logger  *zap.Logger
}

// NewRedisFanout returns a fan-out publishing JSON to channel.
func NewRedisFanout(client Publisher, channel string, logger *zap.Logger) *RedisFanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFanout{client: client, channel: channel, logger: logger.Named("event_fanout")}
}

// Attach subscribes the fan-out to every event on dispatcher.
func (f *RedisFanout) Attach(dispatcher Dispatcher) {
	if f == nil || f.client == nil || dispatcher == nil {
		return
	}
	dispatcher.SubscribeAll(f.Handle)
}

// Handle publishes one event.
func (f *RedisFanout) Handle(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}
	if err := f.client.Publish(ctx, f.channel, body).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Type, err)
	}
	f.logger.Debug("event forwarded",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID))
	return nil
}
