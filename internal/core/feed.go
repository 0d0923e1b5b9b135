package core

import (
	"context"

	"github.com/dkeye/CoStudy/internal/domain"
)

// Subscription is a live change-feed registration. Unsubscribe releases it.
type Subscription interface {
	Unsubscribe() error
}

// ChatFeed delivers message-insert events scoped to one room.
// Handlers are called sequentially in arrival order.
type ChatFeed interface {
	Subscribe(ctx context.Context, room domain.RoomID, handler func(domain.ChatMessage)) (Subscription, error)
}

// SubscriptionFunc adapts a func to Subscription.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Unsubscribe() error { return f() }
