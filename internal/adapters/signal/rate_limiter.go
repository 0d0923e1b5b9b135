package signal

import (
	"sync"
	"time"

	"github.com/dkeye/CoStudy/internal/core"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// JoinLimiter throttles join requests per signaling session.
type JoinLimiter struct {
	mu       sync.Mutex
	visitors map[core.SessionID]*visitor
	every    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

// NewJoinLimiter allows perMinute joins per session with the given burst.
// perMinute <= 0 disables limiting.
func NewJoinLimiter(perMinute, burst int, ttl time.Duration) *JoinLimiter {
	every := rate.Inf
	if perMinute > 0 {
		every = rate.Limit(float64(perMinute) / 60.0)
	}
	if burst < 1 {
		burst = 1
	}
	return &JoinLimiter{
		visitors: make(map[core.SessionID]*visitor),
		every:    every,
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (l *JoinLimiter) Allow(sid core.SessionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	v, ok := l.visitors[sid]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.burst)}
		l.visitors[sid] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Sweep forgets sessions idle for longer than the ttl.
func (l *JoinLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.ttl)
	n := 0
	for sid, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, sid)
			n++
		}
	}
	return n
}

// Run sweeps once a minute until done is closed.
func (l *JoinLimiter) Run(done <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
