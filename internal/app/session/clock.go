package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
)

const DefaultClockTick = time.Second

// Clock counts study time while running and not paused. onMinute receives the
// total whole minutes every time another minute completes.
type Clock struct {
	tick     time.Duration
	onMinute func(minutes int)

	mu      sync.Mutex
	elapsed time.Duration
	paused  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewClock(tick time.Duration, onMinute func(int)) *Clock {
	if tick <= 0 {
		tick = DefaultClockTick
	}
	return &Clock{tick: tick, onMinute: onMinute}
}

// Start resumes counting from the given offset. Starting a running clock is a no-op.
func (c *Clock) Start(from time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	c.elapsed = from
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel, c.done = cancel, make(chan struct{})
	go c.run(ctx, c.done)
}

func (c *Clock) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Clock) SetPaused(p bool) {
	c.mu.Lock()
	c.paused = p
	c.mu.Unlock()
}

func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Elapsed is study time counted so far. Each unpaused tick adds one second.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

func (c *Clock) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(c.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.mu.Lock()
			if c.paused {
				c.mu.Unlock()
				continue
			}
			before := int(c.elapsed / time.Minute)
			c.elapsed += time.Second
			after := int(c.elapsed / time.Minute)
			c.mu.Unlock()
			if after > before && c.onMinute != nil {
				if r := panics.Try(func() { c.onMinute(after) }); r != nil {
					log.Error().Str("module", "app.session").Err(r.AsError()).Msg("minute callback panicked")
				}
			}
		}
	}
}
