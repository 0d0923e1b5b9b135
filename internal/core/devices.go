package core

import (
	"context"
	"image"
)

type TrackKind string

const (
	KindVideo TrackKind = "video"
	KindAudio TrackKind = "audio"
)

// RawTrack is one track of a raw capture stream.
type RawTrack interface {
	Kind() TrackKind
	Stop()
	Live() bool
}

// RawStream is a camera or microphone stream acquired outside the transport.
// Stop must stop every track.
type RawStream interface {
	Tracks() []RawTrack
	Stop()
}

// Surface is an off-screen playback target a camera stream is attached to.
// CurrentFrame returns false until the surface has rendered a frame.
type Surface interface {
	CurrentFrame() (image.Image, bool)
	Release()
}

// LevelAnalyser samples a microphone stream's frequency bins (0..255 each).
type LevelAnalyser interface {
	FrequencyData() []uint8
	Close() error
}

// MediaDevices is the runtime's raw capture API.
// Open* return an error wrapping domain.ErrPermissionDenied when access is refused.
type MediaDevices interface {
	OpenCamera(ctx context.Context) (RawStream, error)
	OpenMicrophone(ctx context.Context) (RawStream, error)
	AttachSurface(stream RawStream) (Surface, error)
	NewAnalyser(stream RawStream) (LevelAnalyser, error)
}
