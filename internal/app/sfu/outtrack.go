package sfu

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// OutTrack represents a single outgoing track to a subscriber.
type OutTrack struct {
	Track *webrtc.TrackLocalStaticRTP
	state atomic.Int32 // Zero by default (TrackStateOk)

	detachOnce sync.Once
	detach     func()
}

// NewOutTrack wraps track; detach (may be nil) removes it from the subscriber's connection.
func NewOutTrack(track *webrtc.TrackLocalStaticRTP, detach func()) *OutTrack {
	return &OutTrack{Track: track, detach: detach}
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkOk() {
	ot.state.Store(int32(TrackStateOk))
}

func (ot *OutTrack) MarkMuted() {
	ot.state.Store(int32(TrackStateMuted))
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}

// Detach runs the detach func at most once.
func (ot *OutTrack) Detach() {
	ot.detachOnce.Do(func() {
		if ot.detach != nil {
			ot.detach()
		}
	})
}
