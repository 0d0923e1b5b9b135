// Package redisfeed carries chat inserts over Redis pub/sub, one channel per room.
package redisfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const channelPrefix = "costudy:chat:"

func ChannelFor(room domain.RoomID) string { return channelPrefix + string(room) }

type Feed struct {
	client *redis.Client
}

var _ core.ChatFeed = (*Feed)(nil)

// Dial connects using a redis:// URL and verifies the connection.
func Dial(url string) (*Feed, error) {
	if url == "" {
		return nil, errors.New("redis: url is empty")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return New(c), nil
}

func New(c *redis.Client) *Feed { return &Feed{client: c} }

func (f *Feed) Close() error { return f.client.Close() }

// Publish announces a committed message on its room channel.
func (f *Feed) Publish(ctx context.Context, m domain.ChatMessage) error {
	m.Sender = nil
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, ChannelFor(m.RoomID), body).Err()
}

// PublishHook adapts Publish to a store's after-insert callback; failures are logged.
func (f *Feed) PublishHook(ctx context.Context, m domain.ChatMessage) {
	if err := f.Publish(ctx, m); err != nil {
		log.Warn().Str("module", "feed.redis").Err(err).Str("room", string(m.RoomID)).Msg("publish failed")
	}
}

// Subscribe waits for the subscription to be confirmed before returning, so
// messages published afterwards are not missed.
func (f *Feed) Subscribe(ctx context.Context, room domain.RoomID, handler func(domain.ChatMessage)) (core.Subscription, error) {
	ps := f.client.Subscribe(ctx, ChannelFor(room))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", room, err)
	}

	logger := log.With().Str("module", "feed.redis").Str("room", string(room)).Logger()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var m domain.ChatMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				logger.Warn().Err(err).Msg("bad payload")
				continue
			}
			handler(m)
		}
	}()

	var once sync.Once
	return core.SubscriptionFunc(func() error {
		var err error
		once.Do(func() {
			err = ps.Close()
			<-done
		})
		return err
	}), nil
}
