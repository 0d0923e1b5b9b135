package presence

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
	"github.com/rs/zerolog/log"
)

// RemoteMediaState is what the renderer needs to draw one participant's tile.
type RemoteMediaState struct {
	HasVideo   bool
	HasAudio   bool
	VideoTrack core.VideoTrack
}

type mediaMap = map[core.TransportID]RemoteMediaState

// Synchronizer keeps the live presence map fed by transport callbacks and local toggles.
// Writers copy-on-write under mu; readers load an immutable snapshot without locking.
type Synchronizer struct {
	idRange uint32

	mu    sync.Mutex
	media atomic.Pointer[mediaMap]
	users atomic.Pointer[map[core.TransportID][]domain.UserID]

	localID   core.TransportID
	connected bool
	onError   func(error)
	changed   func()
}

var _ core.TransportEvents = (*Synchronizer)(nil)

func NewSynchronizer(idRange uint32) *Synchronizer {
	s := &Synchronizer{idRange: idRange}
	empty := mediaMap{}
	s.media.Store(&empty)
	idx := map[core.TransportID][]domain.UserID{}
	s.users.Store(&idx)
	return s
}

// OnChange registers a callback run after every map mutation (outside the lock).
func (s *Synchronizer) OnChange(fn func()) {
	s.mu.Lock()
	s.changed = fn
	s.mu.Unlock()
}

// OnTransportError registers the sink for transport error callbacks.
func (s *Synchronizer) OnTransportError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

func (s *Synchronizer) IDFor(id domain.UserID) core.TransportID {
	return TransportID(id, s.idRange)
}

// SetLocal records the local user so its own toggles land in the same map.
func (s *Synchronizer) SetLocal(id domain.UserID) core.TransportID {
	tid := s.IDFor(id)
	s.mu.Lock()
	s.localID = tid
	s.mu.Unlock()
	s.Track([]domain.UserID{id})
	return tid
}

// SetConnected records whether the local user is joined to the transport.
func (s *Synchronizer) SetConnected(on bool) {
	s.mu.Lock()
	s.connected = on
	s.mu.Unlock()
}

// Connected reports whether remote events are currently flowing in.
func (s *Synchronizer) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Synchronizer) LocalID() core.TransportID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localID
}

// Track indexes users so events keyed by transport id resolve back to them.
// Users sharing an id (hash collision) are all kept.
func (s *Synchronizer) Track(users []domain.UserID) {
	s.mu.Lock()
	next := maps.Clone(*s.users.Load())
	for _, u := range users {
		tid := s.IDFor(u)
		if !slices.Contains(next[tid], u) {
			next[tid] = append(slices.Clone(next[tid]), u)
		}
	}
	s.users.Store(&next)
	s.mu.Unlock()
}

// TrackRoster indexes every participant of a roster.
func (s *Synchronizer) TrackRoster(r domain.Roster) {
	users := make([]domain.UserID, 0, len(r))
	for _, p := range r {
		users = append(users, p.UserID)
	}
	s.Track(users)
}

// Resolve returns the users mapped to a transport id; more than one means a collision.
func (s *Synchronizer) Resolve(id core.TransportID) []domain.UserID {
	return slices.Clone((*s.users.Load())[id])
}

// Snapshot returns the current presence map. The caller must not mutate it.
func (s *Synchronizer) Snapshot() map[core.TransportID]RemoteMediaState {
	return *s.media.Load()
}

// MediaFor answers "is this participant's camera on" for rendering.
func (s *Synchronizer) MediaFor(id domain.UserID) (RemoteMediaState, bool) {
	st, ok := s.Snapshot()[s.IDFor(id)]
	return st, ok
}

// AnyRemoteVideo reports whether a participant other than the local one has video on.
func (s *Synchronizer) AnyRemoteVideo() bool {
	local := s.LocalID()
	for tid, st := range s.Snapshot() {
		if tid != local && st.HasVideo {
			return true
		}
	}
	return false
}

func (s *Synchronizer) SetLocalVideo(on bool, track core.VideoTrack) {
	tid := s.LocalID()
	s.update(tid, func(st *RemoteMediaState) {
		st.HasVideo = on
		st.VideoTrack = nil
		if on {
			st.VideoTrack = track
		}
	})
}

func (s *Synchronizer) SetLocalAudio(on bool) {
	s.update(s.LocalID(), func(st *RemoteMediaState) { st.HasAudio = on })
}

// Reset drops every entry; called when the transport session ends.
func (s *Synchronizer) Reset() {
	empty := mediaMap{}
	s.mu.Lock()
	s.media.Store(&empty)
	s.connected = false
	s.mu.Unlock()
	s.notify()
}

func (s *Synchronizer) OnRemoteUserJoined(id core.TransportID) {
	log.Debug().Str("module", "app.presence").Uint32("tid", uint32(id)).Msg("remote user joined")
}

func (s *Synchronizer) OnRemoteUserLeft(id core.TransportID) {
	s.mu.Lock()
	cur := *s.media.Load()
	if _, ok := cur[id]; !ok {
		s.mu.Unlock()
		return
	}
	next := maps.Clone(cur)
	delete(next, id)
	s.media.Store(&next)
	s.mu.Unlock()
	log.Debug().Str("module", "app.presence").Uint32("tid", uint32(id)).Msg("remote user left")
	s.notify()
}

func (s *Synchronizer) OnRemoteVideoStateChanged(id core.TransportID, hasVideo bool, track core.VideoTrack) {
	s.update(id, func(st *RemoteMediaState) {
		st.HasVideo = hasVideo
		st.VideoTrack = nil
		if hasVideo {
			st.VideoTrack = track
		}
	})
}

func (s *Synchronizer) OnRemoteAudioStateChanged(id core.TransportID, hasAudio bool) {
	s.update(id, func(st *RemoteMediaState) { st.HasAudio = hasAudio })
}

// OnRemoteRosterUpdated drops entries for ids no longer present. The local entry is kept.
func (s *Synchronizer) OnRemoteRosterUpdated(ids []core.TransportID) {
	s.mu.Lock()
	cur := *s.media.Load()
	next := make(mediaMap, len(cur))
	for tid, st := range cur {
		if tid == s.localID || slices.Contains(ids, tid) {
			next[tid] = st
		}
	}
	s.media.Store(&next)
	s.mu.Unlock()
	s.notify()
}

func (s *Synchronizer) OnError(err error) {
	log.Error().Err(err).Str("module", "app.presence").Msg("transport error")
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (s *Synchronizer) update(id core.TransportID, fn func(*RemoteMediaState)) {
	s.mu.Lock()
	next := maps.Clone(*s.media.Load())
	st := next[id]
	fn(&st)
	next[id] = st
	s.media.Store(&next)
	s.mu.Unlock()
	s.notify()
}

func (s *Synchronizer) notify() {
	s.mu.Lock()
	fn := s.changed
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
