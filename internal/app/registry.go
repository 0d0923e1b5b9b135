package app

import (
	"context"
	"sync"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Channel string
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry tracks every connected signaling session and the channel it joined.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*sessionEntry)}
}

// BindSignal registers a fresh connection. A previous connection under the
// same sid is cancelled first.
func (r *Registry) BindSignal(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	old, ok := r.sessions[sid]
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	r.mu.Unlock()
	if ok && old.Cancel != nil {
		old.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Bool("replaced", ok).Msg("bound signal")
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind drops sid only if it still maps to sess; a reconnect may have replaced it.
func (r *Registry) Unbind(sid core.SessionID, sess core.MemberSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok && e.Session == sess {
		delete(r.sessions, sid)
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	}
}

func (r *Registry) ChannelOf(sid core.SessionID) (string, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.Channel == "" {
		return "", nil, false
	}
	return entry.Channel, entry.Session, true
}

func (r *Registry) UpdateChannel(sid core.SessionID, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return false
	}
	entry.Channel = channel
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("channel", channel).Msg("updated channel")
	return true
}

func (r *Registry) RemoveChannel(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sid]; ok {
		entry.Channel = ""
	}
}

type regSnap struct {
	SID     core.SessionID
	Session core.MemberSession
}

func (r *Registry) MembersOf(channel string) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if e.Channel == channel {
			out = append(out, regSnap{SID: sid, Session: e.Session})
		}
	}
	return out
}

// SIDOf finds the session id bound to sess.
func (r *Registry) SIDOf(sess core.MemberSession) (core.SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sid, e := range r.sessions {
		if e.Session == sess {
			return sid, true
		}
	}
	return "", false
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
