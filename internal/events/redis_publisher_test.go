package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/service-desk/internal/domain"
)

type fakePublisher struct {
	channel  string
	messages [][]byte
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
		return cmd
	}
	p.channel = channel
	p.messages = append(p.messages, message.([]byte))
	cmd.SetVal(1)
	return cmd
}

func TestRedisFanout_ForwardsEveryEvent(t *testing.T) {
	logger := zaptest.NewLogger(t)
	publisher := &fakePublisher{}
	dispatcher := NewInMemoryDispatcher(logger)
	NewRedisFanout(publisher, "sla-events", logger).Attach(dispatcher)

	at := time.Date(2024, time.March, 6, 10, 0, 0, 0, time.UTC)
	breached := New(EventSlaBreached, "t1", domain.SystemActor, at, SlaBreachedPayload{SlaID: "s1", Kind: domain.BreachResolution})
	require.NoError(t, dispatcher.Publish(context.Background(), breached))
	require.NoError(t, dispatcher.Publish(context.Background(), New(EventTicketCreated, "t2", domain.StaffRef("a1"), at, nil)))

	assert.Equal(t, "sla-events", publisher.channel)
	require.Len(t, publisher.messages, 2)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(publisher.messages[0], &decoded))
	assert.Equal(t, "sla_breached", decoded["type"])
	assert.Equal(t, "t1", decoded["ticket_id"])
	assert.Equal(t, "resolution", decoded["payload"].(map[string]any)["kind"])
}

func TestRedisFanout_PublishFailureDoesNotReachPublisher(t *testing.T) {
	logger := zaptest.NewLogger(t)
	publisher := &fakePublisher{err: errors.New("connection reset")}
	fanout := NewRedisFanout(publisher, "sla-events", logger)
	dispatcher := NewInMemoryDispatcher(logger)
	fanout.Attach(dispatcher)

	event := New(EventSlaNearBreach, "t1", domain.SystemActor, time.Now(), nil)

	assert.Error(t, fanout.Handle(context.Background(), event))
	assert.NoError(t, dispatcher.Publish(context.Background(), event))
}
