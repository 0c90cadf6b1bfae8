package worker

import (
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/service"
)

// StartNotificationWorker subscribes notification delivery to SLA events and,
// when a fan-out is given, forwards every event to Redis as well.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, fanout *events.RedisFanout) {
	if dispatcher == nil {
		return
	}
	if notificationService != nil {
		notificationService.RegisterHandlers(dispatcher)
	}
	fanout.Attach(dispatcher)
}
