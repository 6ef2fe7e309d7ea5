package workflow

import (
	"context"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// dispatcherGateway hands status changes to the in-process dispatcher
type dispatcherGateway struct {
	dispatcher dispatcher.Dispatcher
}

// NewDispatcherGateway creates a NotificationGateway that fans out through the dispatcher
// without waiting for handlers
func NewDispatcherGateway(d dispatcher.Dispatcher) port.NotificationGateway {
	return &dispatcherGateway{dispatcher: d}
}

// Send dispatches the event asynchronously
func (g *dispatcherGateway) Send(ctx context.Context, evt *event.Event) error {
	g.dispatcher.DispatchAsync(ctx, evt)
	return nil
}

// logGateway only records that a notification would have been sent
type logGateway struct {
	logger Logger
}

// NewLogGateway creates a NotificationGateway that logs events and delivers nothing
func NewLogGateway(logger Logger) port.NotificationGateway {
	if logger == nil {
		logger = nopLogger{}
	}
	return &logGateway{logger: logger}
}

// Send logs the event
func (g *logGateway) Send(_ context.Context, evt *event.Event) error {
	g.logger.Info("Notification (not delivered)",
		"event_type", evt.Type,
		"request_id", evt.RequestID,
		"new_status", evt.GetPayloadString(event.KeyNewStatus),
	)
	return nil
}
