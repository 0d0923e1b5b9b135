package core

//go:generate mockgen -destination=mocks/transport_mock.go -package=mocks github.com/dkeye/CoStudy/internal/core Transport

import (
	"context"
	"strconv"
)

// TransportID is the numeric identity a participant uses inside a transport channel.
type TransportID uint32

// VideoTrack is an opaque handle to a renderable video track.
type VideoTrack interface {
	ID() string
}

// TransportEvents is the callback set a transport provider drives.
// Callbacks may arrive on any goroutine.
type TransportEvents interface {
	OnRemoteUserJoined(id TransportID)
	OnRemoteUserLeft(id TransportID)
	OnRemoteVideoStateChanged(id TransportID, hasVideo bool, track VideoTrack)
	OnRemoteAudioStateChanged(id TransportID, hasAudio bool)
	OnRemoteRosterUpdated(ids []TransportID)
	OnError(err error)
}

// Transport is the black-box real-time channel a participant broadcasts into.
type Transport interface {
	Initialize(events TransportEvents) error
	JoinAsBroadcaster(ctx context.Context, channel string, localID TransportID) error
	Leave(ctx context.Context) error
	SetCameraEnabled(ctx context.Context, on bool) error
	SetMicrophoneEnabled(ctx context.Context, on bool) error
	LocalVideoTrack() VideoTrack
}

// StreamID is the media stream id under which a member's tracks are forwarded.
func (id TransportID) StreamID() string { return strconv.FormatUint(uint64(id), 10) }

// ParseStreamID recovers the transport id from a forwarded stream id.
func ParseStreamID(s string) (TransportID, bool) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return TransportID(n), true
}
