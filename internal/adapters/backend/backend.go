// Package backend opens the store, change-feed and blob storage selected by config.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/CoStudy/internal/adapters/blob/supabase"
	"github.com/dkeye/CoStudy/internal/adapters/feed/pgnotify"
	"github.com/dkeye/CoStudy/internal/adapters/feed/redisfeed"
	"github.com/dkeye/CoStudy/internal/adapters/store/memory"
	"github.com/dkeye/CoStudy/internal/adapters/store/postgres"
	"github.com/dkeye/CoStudy/internal/config"
	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type Backend struct {
	Store core.Store
	Feed  core.ChatFeed
	// Blobs is nil when no blob storage is configured; thumbnails are then disabled.
	Blobs core.BlobStorage

	memory   *memory.Store
	postgres *postgres.Store
	closers  []func() error
	cancel   context.CancelFunc
	wg       conc.WaitGroup
}

// Open connects every configured adapter. Close releases them.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	b := &Backend{cancel: cancel}
	if err := b.open(ctx, runCtx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) open(ctx, runCtx context.Context, cfg *config.Config) error {
	var afterInsert func(context.Context, domain.ChatMessage)
	switch {
	case cfg.Feed.Driver == "redis":
		f, err := redisfeed.Dial(cfg.Feed.RedisURL)
		if err != nil {
			return err
		}
		b.Feed, afterInsert = f, f.PublishHook
		b.closers = append(b.closers, f.Close)
	case cfg.Feed.Driver == "memory" && cfg.Store.Driver == "postgres":
		// Single-instance postgres deployment: fan inserts out in process.
		broker := memory.NewFeed()
		b.Feed = broker
		afterInsert = func(_ context.Context, m domain.ChatMessage) { broker.Publish(m) }
	}

	switch cfg.Store.Driver {
	case "postgres":
		st, err := postgres.Open(postgres.Options{DSN: cfg.Store.DSN, AfterInsert: afterInsert, LogSQL: cfg.Store.LogSQL})
		if err != nil {
			return err
		}
		b.closers = append(b.closers, st.Close)
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		b.postgres, b.Store = st, st
	default:
		st := memory.New(memory.Options{AfterInsert: afterInsert})
		b.memory, b.Store = st, st
		if b.Feed == nil {
			b.Feed = st
		}
	}

	if cfg.Feed.Driver == "postgres" {
		pool, err := pgnotify.Connect(ctx, cfg.Store.DSN)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
		if err := pgnotify.Install(ctx, pool); err != nil {
			return err
		}
		f := pgnotify.New(pool)
		b.wg.Go(func() {
			if err := f.Run(runCtx); err != nil {
				log.Error().Err(err).Str("module", "backend").Msg("pg feed stopped")
			}
		})
		b.Feed = f
	}

	if cfg.Blob.Enabled() {
		s, err := supabase.New(cfg.Blob.SupabaseURL, cfg.Blob.SupabaseKey, cfg.Blob.Bucket)
		if err != nil {
			return err
		}
		b.Blobs = s
	}
	log.Info().Str("module", "backend").Str("store", cfg.Store.Driver).Str("feed", cfg.Feed.Driver).
		Bool("thumbnails", b.Blobs != nil).Msg("backend ready")
	return nil
}

// Seed stores r and p. Used to bootstrap an in-memory store or a fresh database.
func (b *Backend) Seed(ctx context.Context, r *domain.Room, p *domain.Profile) error {
	switch {
	case b.memory != nil:
		if r != nil {
			if _, ok := b.memory.Room(r.ID); !ok {
				b.memory.PutRoom(*r)
			}
		}
		if p != nil {
			b.memory.PutProfile(*p)
		}
		return nil
	case b.postgres != nil:
		if r != nil {
			_, err := b.postgres.GetRoom(ctx, r.ID)
			if errors.Is(err, domain.ErrRoomNotFound) {
				err = b.postgres.PutRoom(ctx, *r)
			}
			if err != nil {
				return fmt.Errorf("seed room: %w", err)
			}
		}
		if p != nil {
			if err := b.postgres.PutProfile(ctx, *p); err != nil {
				return fmt.Errorf("seed profile: %w", err)
			}
		}
	}
	return nil
}

func (b *Backend) Close() {
	b.cancel()
	b.wg.Wait()
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Warn().Err(err).Str("module", "backend").Msg("close")
		}
	}
	b.closers = nil
}
