// Package pgnotify delivers chat inserts through Postgres LISTEN/NOTIFY.
// An insert trigger on chat_messages publishes each row as JSON; one listening
// connection fans notifications out to room subscribers.
package pgnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/CoStudy/internal/adapters/store/memory"
	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const Channel = "chat_messages"

const installSQL = `
CREATE OR REPLACE FUNCTION notify_chat_message() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('` + Channel + `', row_to_json(NEW)::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS chat_messages_notify ON chat_messages;
CREATE TRIGGER chat_messages_notify AFTER INSERT ON chat_messages
	FOR EACH ROW EXECUTE FUNCTION notify_chat_message();
`

// Connect opens a pgx pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string, opts ...func(*pgxpool.Config)) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(normalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("pgnotify: parse config: %w", err)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 4
	}
	if cfg.HealthCheckPeriod == 0 {
		cfg.HealthCheckPeriod = time.Minute
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgnotify: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgnotify: ping: %w", err)
	}
	return pool, nil
}

func normalizeDSN(dsn string) string {
	s := strings.TrimSpace(dsn)
	s = strings.Replace(s, "postgresql+pgx://", "postgresql://", 1)
	s = strings.Replace(s, "postgres+pgx://", "postgres://", 1)
	return s
}

// Install creates the insert trigger. The chat_messages table must exist.
func Install(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, installSQL); err != nil {
		return fmt.Errorf("pgnotify: install trigger: %w", err)
	}
	return nil
}

// payload mirrors row_to_json of a chat_messages row.
type payload struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func decode(raw string) (domain.ChatMessage, error) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.ChatMessage{}, err
	}
	if p.ID == "" || p.RoomID == "" {
		return domain.ChatMessage{}, errors.New("incomplete chat payload")
	}
	return domain.ChatMessage{
		ID:        p.ID,
		RoomID:    domain.RoomID(p.RoomID),
		SenderID:  domain.UserID(p.SenderID),
		Text:      p.Text,
		CreatedAt: p.CreatedAt,
	}, nil
}

type Feed struct {
	pool   *pgxpool.Pool
	broker *memory.Feed
	retry  time.Duration
}

var _ core.ChatFeed = (*Feed)(nil)

func New(pool *pgxpool.Pool) *Feed {
	return &Feed{pool: pool, broker: memory.NewFeed(), retry: 2 * time.Second}
}

func (f *Feed) Subscribe(ctx context.Context, room domain.RoomID, handler func(domain.ChatMessage)) (core.Subscription, error) {
	return f.broker.Subscribe(ctx, room, handler)
}

// Run listens until ctx is done, reconnecting after connection loss.
func (f *Feed) Run(ctx context.Context) error {
	logger := log.With().Str("module", "feed.pgnotify").Logger()
	for {
		err := f.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn().Err(err).Dur("retry", f.retry).Msg("listener dropped")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.retry):
		}
	}
}

func (f *Feed) listen(ctx context.Context) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.Info().Str("module", "feed.pgnotify").Msg("listening")
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		m, err := decode(n.Payload)
		if err != nil {
			log.Warn().Str("module", "feed.pgnotify").Err(err).Msg("bad payload")
			continue
		}
		f.broker.Publish(m)
	}
}
