// Package chat is the room chat channel of a live session: history, live
// inserts and sending.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultHistoryLimit = 100

// Channel holds the ordered message list a renderer reads through Messages.
// The list only grows; it is replaced wholesale on every change.
type Channel struct {
	store    core.ChatStore
	feed     core.ChatFeed
	roomID   domain.RoomID
	userID   domain.UserID
	limit    int
	notifier core.Notifier

	msgs atomic.Pointer[[]domain.ChatMessage]

	mu       sync.Mutex
	sub      core.Subscription
	loaded   bool
	pending  []domain.ChatMessage
	seen     map[string]struct{}
	profiles map[domain.UserID]domain.Profile
	changed  func()

	logger zerolog.Logger
}

func NewChannel(store core.ChatStore, feed core.ChatFeed, room domain.RoomID, user domain.UserID, historyLimit int, n core.Notifier) *Channel {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if n == nil {
		n = core.Discard
	}
	c := &Channel{
		store:    store,
		feed:     feed,
		roomID:   room,
		userID:   user,
		limit:    historyLimit,
		notifier: n,
		seen:     make(map[string]struct{}),
		profiles: make(map[domain.UserID]domain.Profile),
		logger:   log.With().Str("module", "app.chat").Str("room", string(room)).Logger(),
	}
	empty := []domain.ChatMessage{}
	c.msgs.Store(&empty)
	return c
}

// OnChange registers a callback run after the list changes.
func (c *Channel) OnChange(fn func()) {
	c.mu.Lock()
	c.changed = fn
	c.mu.Unlock()
}

// Messages returns the current list in non-decreasing creation order. Do not mutate it.
func (c *Channel) Messages() []domain.ChatMessage { return *c.msgs.Load() }

// Subscribed reports whether a live subscription is held.
func (c *Channel) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub != nil
}

// LoadHistory reads the most recent messages in ascending order with senders resolved.
func (c *Channel) LoadHistory(ctx context.Context) ([]domain.ChatMessage, error) {
	msgs, err := c.store.RecentMessages(ctx, c.roomID, c.limit)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	for i := range msgs {
		p := c.resolve(ctx, msgs[i].SenderID)
		msgs[i].Sender = &p
	}
	return msgs, nil
}

// Open subscribes to live inserts and then loads history. Inserts that arrive
// while history is loading are merged in once it lands. Opening twice is a no-op.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.sub != nil {
		c.mu.Unlock()
		return nil
	}
	c.loaded = false
	c.pending = nil
	c.mu.Unlock()

	sub, err := c.feed.Subscribe(ctx, c.roomID, c.onInsert)
	if err != nil {
		return fmt.Errorf("subscribe chat: %w", err)
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	history, err := c.LoadHistory(ctx)
	if err != nil {
		// history is a background degradation; live inserts still flow
		c.logger.Warn().Err(err).Msg("history load failed")
		history = nil
	}

	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.loaded = true
	for _, m := range history {
		c.appendLocked(m)
	}
	for _, m := range pending {
		c.appendLocked(m)
	}
	fn := c.changed
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// Close unsubscribes exactly once. The message list is kept.
func (c *Channel) Close() error {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub == nil {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		c.logger.Warn().Err(err).Msg("unsubscribe failed")
		return err
	}
	return nil
}

// Send writes a message. It is not rendered locally; the subscription delivers it back.
func (c *Channel) Send(ctx context.Context, text string) error {
	text, err := domain.NormalizeMessage(text)
	if err != nil {
		return err
	}
	m := &domain.ChatMessage{RoomID: c.roomID, SenderID: c.userID, Text: text}
	if err := c.store.InsertMessage(ctx, m); err != nil {
		c.notifier.Notice(core.NoticeSendFailed, "message could not be sent")
		c.logger.Error().Err(err).Msg("send failed")
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (c *Channel) onInsert(m domain.ChatMessage) {
	if m.RoomID != c.roomID {
		return
	}
	p := c.resolve(context.Background(), m.SenderID)
	m.Sender = &p

	c.mu.Lock()
	if !c.loaded {
		c.pending = append(c.pending, m)
		c.mu.Unlock()
		return
	}
	c.appendLocked(m)
	fn := c.changed
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// appendLocked adds m unless already present, keeping creation order.
// A message older than the tail lands at its ordered position.
func (c *Channel) appendLocked(m domain.ChatMessage) {
	if _, dup := c.seen[m.ID]; dup && m.ID != "" {
		return
	}
	c.seen[m.ID] = struct{}{}
	cur := *c.msgs.Load()
	next := make([]domain.ChatMessage, 0, len(cur)+1)
	next = append(next, cur...)
	i := len(next)
	if i > 0 && m.CreatedAt.Before(next[i-1].CreatedAt) {
		i, _ = slices.BinarySearchFunc(next, m, func(a, b domain.ChatMessage) int {
			if a.CreatedAt.After(b.CreatedAt) {
				return 1
			}
			return -1
		})
	}
	next = slices.Insert(next, i, m)
	c.msgs.Store(&next)
}

// resolve returns the sender's display info, caching hits. Lookup failures
// render as anonymous and are not cached.
func (c *Channel) resolve(ctx context.Context, id domain.UserID) domain.Profile {
	c.mu.Lock()
	p, ok := c.profiles[id]
	c.mu.Unlock()
	if ok {
		return p
	}
	got, err := c.store.Profile(ctx, id)
	if err != nil || got == nil {
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn().Err(err).Str("sender", string(id)).Msg("profile lookup failed")
		}
		return domain.AnonymousProfile(id)
	}
	c.mu.Lock()
	c.profiles[id] = *got
	c.mu.Unlock()
	return *got
}
