package sfu

import (
	"context"
	"maps"
	"sync"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Relay forwards one published track to every subscriber in the channel.
type Relay struct {
	Src    *webrtc.TrackRemote
	Stream string

	mu        sync.RWMutex
	outTracks map[core.SessionID]*OutTrack

	cancel context.CancelFunc
}

func NewRelay(src *webrtc.TrackRemote, stream string, cancel context.CancelFunc) *Relay {
	return &Relay{
		Src:       src,
		Stream:    stream,
		outTracks: make(map[core.SessionID]*OutTrack),
		cancel:    cancel,
	}
}

// loop reads RTP packets from the source track and forwards them to all OutTracks.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	defer r.detachAll()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done")
			return
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("relay source ended")
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outTracks)
	r.mu.RUnlock()

	dirty := make([]core.SessionID, 0, len(snapshot))
	for dstSID, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, dstSID)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Track.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("dst_sid", string(dstSID)).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, dstSID)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []core.SessionID) {
	removed := make([]*OutTrack, 0, len(dirty))
	r.mu.Lock()
	for _, sid := range dirty {
		if ot, ok := r.outTracks[sid]; ok && ot.GetState() == TrackStateDelete {
			removed = append(removed, ot)
			delete(r.outTracks, sid)
		}
	}
	r.mu.Unlock()
	for _, ot := range removed {
		ot.Detach()
	}
}

func (r *Relay) detachAll() {
	r.mu.Lock()
	all := r.outTracks
	r.outTracks = make(map[core.SessionID]*OutTrack)
	r.mu.Unlock()
	for _, ot := range all {
		ot.MarkDelete()
		ot.Detach()
	}
}

func (r *Relay) markDelete(dst core.SessionID) {
	r.mu.RLock()
	ot, ok := r.outTracks[dst]
	r.mu.RUnlock()
	if ok {
		ot.MarkDelete()
	}
}

// AddOutTrack registers ot for dst unless a live one is already there.
func (r *Relay) AddOutTrack(dst core.SessionID, ot *OutTrack) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.outTracks[dst]; ok && cur.GetState() != TrackStateDelete {
		return false
	}
	r.outTracks[dst] = ot
	return true
}

func (r *Relay) Subscribed(dst core.SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ot, ok := r.outTracks[dst]
	return ok && ot.GetState() != TrackStateDelete
}

func (r *Relay) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outTracks)
}
