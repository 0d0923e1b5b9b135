package sfu

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type relayKey struct {
	sid  core.SessionID
	kind webrtc.RTPCodecType
}

// RelayManager owns one relay per (publisher, track kind).
type RelayManager struct {
	mu     sync.RWMutex
	relays map[relayKey]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[relayKey]*Relay),
	}
}

// StartRelay creates a Relay for the speaker's track and starts its loop.
// A previous relay of the same kind is replaced.
func (m *RelayManager) StartRelay(ctx context.Context, sid core.SessionID, tid core.TransportID, track *webrtc.TrackRemote) {
	logger := log.With().
		Str("module", "sfu").
		Str("sid", string(sid)).
		Uint32("tid", uint32(tid)).
		Str("kind", track.Kind().String()).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(track, tid.StreamID(), cancel)
	key := relayKey{sid: sid, kind: track.Kind()}

	m.mu.Lock()
	old, ok := m.relays[key]
	m.relays[key] = relay
	m.mu.Unlock()
	if ok {
		logger.Info().Msg("replacing existing relay")
		old.cancel()
		old.detachAll()
	}

	logger.Info().Msg("starting relay loop")
	go relay.loop(relayCtx, &logger)
}

// Kinds lists the track kinds sid currently publishes.
func (m *RelayManager) Kinds(sid core.SessionID) []webrtc.RTPCodecType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []webrtc.RTPCodecType
	for k := range m.relays {
		if k.sid == sid {
			out = append(out, k.kind)
		}
	}
	return out
}

// Subscribe forwards srcSID's track of the given kind to dst.
// Subscribing twice is a no-op.
func (m *RelayManager) Subscribe(srcSID core.SessionID, kind webrtc.RTPCodecType, dstSID core.SessionID, dst core.MediaConnection) error {
	m.mu.RLock()
	relay, ok := m.relays[relayKey{sid: srcSID, kind: kind}]
	m.mu.RUnlock()
	if !ok || relay.Subscribed(dstSID) {
		return nil
	}

	local, err := webrtc.NewTrackLocalStaticRTP(relay.Src.Codec().RTPCodecCapability, relay.Src.ID(), relay.Stream)
	if err != nil {
		return fmt.Errorf("local track: %w", err)
	}
	sender, err := dst.AddLocalTrack(local)
	if err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	go drainRTCP(sender)

	ot := NewOutTrack(local, func() {
		if dst.IsClosed() {
			return
		}
		if err := dst.RemoveTrack(sender); err != nil {
			log.Warn().Err(err).Str("module", "sfu").Str("dst_sid", string(dstSID)).Msg("remove track")
		}
	})
	if !relay.AddOutTrack(dstSID, ot) {
		ot.Detach()
	}
	log.Info().Str("module", "sfu").Str("src_sid", string(srcSID)).Str("dst_sid", string(dstSID)).Str("kind", kind.String()).Msg("subscribed")
	return nil
}

// drainRTCP reads sender reports so interceptors keep working.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// MarkSubscriberDelete stops forwarding any of srcSID's tracks to dstSID.
func (m *RelayManager) MarkSubscriberDelete(srcSID, dstSID core.SessionID) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, relay := range m.relays {
		if k.sid == srcSID {
			relay.markDelete(dstSID)
		}
	}
}

// StopRelays stops every relay of srcSID and detaches its subscribers.
func (m *RelayManager) StopRelays(srcSID core.SessionID) {
	m.mu.Lock()
	var stopped []*Relay
	for k, relay := range m.relays {
		if k.sid == srcSID {
			stopped = append(stopped, relay)
			delete(m.relays, k)
		}
	}
	m.mu.Unlock()
	for _, relay := range stopped {
		relay.cancel()
		relay.detachAll()
	}
}

// HasRelay reports whether sid publishes a track of kind.
func (m *RelayManager) HasRelay(sid core.SessionID, kind webrtc.RTPCodecType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[relayKey{sid: sid, kind: kind}]
	return ok
}
