package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/event"
)

// NotificationGateway receives a message after every committed transition.
// Delivery is best-effort; the engine never fails a transition on its error.
type NotificationGateway interface {
	Send(ctx context.Context, evt *event.Event) error
}

// Message is a rendered notification for one recipient
type Message struct {
	To       string // e-mail address
	ToOpenID string // Lark open_id; empty skips Lark delivery
	ToName   string
	Subject  string
	Text     string
	HTML     string
}

// MessageSender delivers a rendered message over one channel
type MessageSender interface {
	// Name identifies the channel in logs
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// LarkMessageSender defines Lark chat message operations
type LarkMessageSender interface {
	SendMessage(ctx context.Context, openID string, content string) error
}

// EventPublisher pushes events to an external queue for out-of-process consumers
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event) error
}
