package memory

import (
	"context"
	"sync"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
)

const subscriberBuffer = 64

type subscriber struct {
	room domain.RoomID
	ch   chan domain.ChatMessage
	once sync.Once
}

// Feed is an in-process room-scoped pub/sub. Each subscriber has its own
// goroutine so handlers see messages in publish order without blocking publishers.
type Feed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
}

var _ core.ChatFeed = (*Feed)(nil)

func NewFeed() *Feed {
	return &Feed{subs: make(map[int]*subscriber)}
}

func (f *Feed) Subscribe(ctx context.Context, room domain.RoomID, handler func(domain.ChatMessage)) (core.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &subscriber{room: room, ch: make(chan domain.ChatMessage, subscriberBuffer)}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	f.mu.Unlock()

	go func() {
		for m := range sub.ch {
			handler(m)
		}
	}()

	return core.SubscriptionFunc(func() error {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
		return nil
	}), nil
}

// Publish delivers m to every subscriber of its room.
func (f *Feed) Publish(m domain.ChatMessage) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if sub.room == m.RoomID {
			sub.ch <- m
		}
	}
}

// Subscribers counts live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
