// Package device provides synthetic raw capture devices: a moving test-pattern
// camera and a modulated tone microphone. They stand in for real capture
// hardware in the headless participant and in tests.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrNoTrack  = errors.New("stream has no track of that kind")
	ErrReleased = errors.New("device handle already released")
)

type Options struct {
	Width, Height int
	// FirstFrameAfter delays the first renderable frame of a new surface.
	FirstFrameAfter time.Duration
	Bins            int
	DenyCamera      bool
	DenyMicrophone  bool
}

// Devices implements core.MediaDevices and tracks every handle it hands out.
type Devices struct {
	opts Options
	now  func() time.Time

	live      atomic.Int64
	surfaces  atomic.Int64
	analysers atomic.Int64
	opened    atomic.Int64
}

var _ core.MediaDevices = (*Devices)(nil)

func New(opts Options) *Devices {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 320, 180
	}
	if opts.Bins <= 0 {
		opts.Bins = 64
	}
	return &Devices{opts: opts, now: time.Now}
}

// LiveTracks counts tracks not yet stopped.
func (d *Devices) LiveTracks() int { return int(d.live.Load()) }

// OpenSurfaces counts attached surfaces not yet released.
func (d *Devices) OpenSurfaces() int { return int(d.surfaces.Load()) }

// OpenAnalysers counts analysers not yet closed.
func (d *Devices) OpenAnalysers() int { return int(d.analysers.Load()) }

// Opened counts streams opened since creation.
func (d *Devices) Opened() int { return int(d.opened.Load()) }

func (d *Devices) OpenCamera(ctx context.Context) (core.RawStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.opts.DenyCamera {
		return nil, fmt.Errorf("open camera: %w", domain.ErrPermissionDenied)
	}
	return d.open(core.KindVideo), nil
}

func (d *Devices) OpenMicrophone(ctx context.Context) (core.RawStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.opts.DenyMicrophone {
		return nil, fmt.Errorf("open microphone: %w", domain.ErrPermissionDenied)
	}
	return d.open(core.KindAudio), nil
}

func (d *Devices) open(kind core.TrackKind) *Stream {
	t := &Track{id: uuid.NewString(), kind: kind, dev: d}
	t.live.Store(true)
	d.live.Add(1)
	d.opened.Add(1)
	return &Stream{tracks: []*Track{t}}
}

func (d *Devices) AttachSurface(stream core.RawStream) (core.Surface, error) {
	t, err := trackOf(stream, core.KindVideo)
	if err != nil {
		return nil, err
	}
	d.surfaces.Add(1)
	return &Surface{dev: d, track: t, attached: d.now()}, nil
}

func (d *Devices) NewAnalyser(stream core.RawStream) (core.LevelAnalyser, error) {
	t, err := trackOf(stream, core.KindAudio)
	if err != nil {
		return nil, err
	}
	d.analysers.Add(1)
	return &Analyser{dev: d, track: t, started: d.now()}, nil
}

func trackOf(stream core.RawStream, kind core.TrackKind) (*Track, error) {
	for _, rt := range stream.Tracks() {
		if t, ok := rt.(*Track); ok && t.kind == kind {
			if !t.Live() {
				return nil, ErrReleased
			}
			return t, nil
		}
	}
	return nil, ErrNoTrack
}

type Track struct {
	id   string
	kind core.TrackKind
	dev  *Devices
	live atomic.Bool
}

func (t *Track) ID() string           { return t.id }
func (t *Track) Kind() core.TrackKind { return t.kind }
func (t *Track) Live() bool           { return t.live.Load() }

func (t *Track) Stop() {
	if t.live.CompareAndSwap(true, false) {
		t.dev.live.Add(-1)
	}
}

type Stream struct {
	tracks []*Track
}

func (s *Stream) Tracks() []core.RawTrack {
	out := make([]core.RawTrack, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Surface renders the test pattern for a live camera track.
type Surface struct {
	dev      *Devices
	track    *Track
	attached time.Time

	once     sync.Once
	released atomic.Bool
}

func (s *Surface) Release() {
	s.once.Do(func() {
		s.released.Store(true)
		s.dev.surfaces.Add(-1)
	})
}
