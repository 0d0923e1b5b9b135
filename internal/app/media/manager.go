// Package media owns the local camera and microphone. While a device is on it keeps
// two capture paths alive: the transport-published track remote peers see, and an
// independent raw stream used locally for frame grabbing and level metering.
package media

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/CoStudy/internal/app/presence"
	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultLevelInterval = 100 * time.Millisecond

// ErrClosed is returned when a device is switched on after teardown began.
var ErrClosed = errors.New("media manager closed")

// Seats is the slice of the seat registry the manager persists through.
type Seats interface {
	SetCameraEnabled(ctx context.Context, on bool) error
	SetMicEnabled(ctx context.Context, on bool) error
	OthersWithCamera(ctx context.Context) bool
}

// Snapshotter is the thumbnail loop driven by camera state.
type Snapshotter interface {
	Start(src core.Surface)
	Stop()
}

type Config struct {
	LevelInterval time.Duration
}

// cameraPath holds the two independently released camera handles.
type cameraPath struct {
	published bool
	stream    core.RawStream
	surface   core.Surface
}

// micPath holds the microphone handles and its sampling loop.
type micPath struct {
	published bool
	stream    core.RawStream
	analyser  core.LevelAnalyser
	cancel    context.CancelFunc
	done      chan struct{}
}

type Manager struct {
	transport core.Transport
	devices   core.MediaDevices
	presence  *presence.Synchronizer
	seats     Seats
	rooms     core.RoomStore
	roomID    domain.RoomID
	thumbs    Snapshotter
	notifier  core.Notifier
	cfg       Config

	mu       sync.Mutex
	cam      cameraPath
	mic      micPath
	camOn    bool
	micOn    bool
	restored bool
	closed   bool

	level   atomic.Int32
	onLevel func(int)

	logger zerolog.Logger
}

type Deps struct {
	Transport core.Transport
	Devices   core.MediaDevices
	Presence  *presence.Synchronizer
	Seats     Seats
	Rooms     core.RoomStore
	RoomID    domain.RoomID
	Thumbs    Snapshotter
	Notifier  core.Notifier
}

func NewManager(d Deps, cfg Config) *Manager {
	if cfg.LevelInterval <= 0 {
		cfg.LevelInterval = DefaultLevelInterval
	}
	if d.Notifier == nil {
		d.Notifier = core.Discard
	}
	return &Manager{
		transport: d.Transport,
		devices:   d.Devices,
		presence:  d.Presence,
		seats:     d.Seats,
		rooms:     d.Rooms,
		roomID:    d.RoomID,
		thumbs:    d.Thumbs,
		notifier:  d.Notifier,
		cfg:       cfg,
		logger:    log.With().Str("module", "app.media").Str("room", string(d.RoomID)).Logger(),
	}
}

// OnLevel registers a sink for microphone level readings.
func (m *Manager) OnLevel(fn func(int)) {
	m.mu.Lock()
	m.onLevel = fn
	m.mu.Unlock()
}

// MicLevel is the last sampled level, 0 while the mic is off.
func (m *Manager) MicLevel() int { return int(m.level.Load()) }

func (m *Manager) CameraOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camOn
}

func (m *Manager) MicOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.micOn
}

func (m *Manager) ToggleCamera(ctx context.Context) error {
	if m.CameraOn() {
		return m.SetCamera(ctx, false)
	}
	return m.SetCamera(ctx, true)
}

func (m *Manager) ToggleMic(ctx context.Context) error {
	if m.MicOn() {
		return m.SetMic(ctx, false)
	}
	return m.SetMic(ctx, true)
}

// SetCamera drives the camera to on or off. Repeating the current state is a no-op.
func (m *Manager) SetCamera(ctx context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on == m.camOn {
		return nil
	}
	if on {
		if m.closed {
			return ErrClosed
		}
		return m.cameraOnLocked(ctx)
	}
	m.cameraOffLocked(ctx)
	return nil
}

// SetMic drives the microphone to on or off. Repeating the current state is a no-op.
func (m *Manager) SetMic(ctx context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on == m.micOn {
		return nil
	}
	if on {
		if m.closed {
			return ErrClosed
		}
		return m.micOnLocked(ctx)
	}
	m.micOffLocked(ctx)
	return nil
}

func (m *Manager) cameraOnLocked(ctx context.Context) error {
	if err := m.transport.SetCameraEnabled(ctx, true); err != nil {
		return m.fail("camera", err)
	}
	m.cam.published = true

	stream, err := m.devices.OpenCamera(ctx)
	if err != nil {
		m.releaseCameraLocked(ctx)
		return m.fail("camera", err)
	}
	m.cam.stream = stream

	surface, err := m.devices.AttachSurface(stream)
	if err != nil {
		m.releaseCameraLocked(ctx)
		return m.fail("camera", err)
	}
	m.cam.surface = surface
	m.camOn = true

	m.presence.SetLocalVideo(true, m.transport.LocalVideoTrack())
	if err := m.seats.SetCameraEnabled(ctx, true); err != nil {
		m.writeFailed("camera state", err)
	}
	if err := m.rooms.SetSessionStatus(ctx, m.roomID, domain.SessionLive); err != nil {
		m.logger.Warn().Err(err).Msg("session status live failed")
	}
	if m.thumbs != nil {
		m.thumbs.Start(surface)
	}
	m.logger.Info().Msg("camera on")
	return nil
}

func (m *Manager) cameraOffLocked(ctx context.Context) {
	if m.thumbs != nil {
		m.thumbs.Stop()
	}
	m.releaseCameraLocked(ctx)
	m.camOn = false
	m.presence.SetLocalVideo(false, nil)
	if err := m.seats.SetCameraEnabled(ctx, false); err != nil {
		m.writeFailed("camera state", err)
	}
	m.revertRoomIfIdle(ctx)
	m.logger.Info().Msg("camera off")
}

// revertRoomIfIdle puts the room back to waiting and clears its thumbnail
// when nobody else has video on.
//
// While connected the live remote tracks are authoritative, so a persisted flag
// left behind by someone who closed the page does not keep the room live.
func (m *Manager) revertRoomIfIdle(ctx context.Context) {
	if m.presence.AnyRemoteVideo() {
		return
	}
	if !m.presence.Connected() && m.seats.OthersWithCamera(ctx) {
		return
	}
	if err := m.rooms.SetSessionStatus(ctx, m.roomID, domain.SessionWaiting); err != nil {
		m.logger.Warn().Err(err).Msg("session status waiting failed")
	}
	if err := m.rooms.SetThumbnail(ctx, m.roomID, nil); err != nil {
		m.logger.Warn().Err(err).Msg("thumbnail clear failed")
	}
}

func (m *Manager) releaseCameraLocked(ctx context.Context) {
	if m.cam.published {
		if err := m.transport.SetCameraEnabled(ctx, false); err != nil {
			m.logger.Warn().Err(err).Msg("camera unpublish failed")
		}
	}
	if m.cam.surface != nil {
		m.cam.surface.Release()
	}
	if m.cam.stream != nil {
		m.cam.stream.Stop()
	}
	m.cam = cameraPath{}
}

func (m *Manager) micOnLocked(ctx context.Context) error {
	if err := m.transport.SetMicrophoneEnabled(ctx, true); err != nil {
		return m.fail("microphone", err)
	}
	m.mic.published = true

	stream, err := m.devices.OpenMicrophone(ctx)
	if err != nil {
		m.releaseMicLocked(ctx)
		return m.fail("microphone", err)
	}
	m.mic.stream = stream

	analyser, err := m.devices.NewAnalyser(stream)
	if err != nil {
		m.releaseMicLocked(ctx)
		return m.fail("microphone", err)
	}
	m.mic.analyser = analyser

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	m.mic.cancel, m.mic.done = cancel, done
	sink := m.onLevel
	go levelLoop(loopCtx, m.cfg.LevelInterval, analyser, func(lvl int) {
		m.level.Store(int32(lvl))
		if sink != nil {
			sink(lvl)
		}
	}, done)

	m.micOn = true
	m.presence.SetLocalAudio(true)
	if err := m.seats.SetMicEnabled(ctx, true); err != nil {
		m.writeFailed("microphone state", err)
	}
	m.logger.Info().Msg("mic on")
	return nil
}

func (m *Manager) micOffLocked(ctx context.Context) {
	m.releaseMicLocked(ctx)
	m.micOn = false
	m.presence.SetLocalAudio(false)
	if err := m.seats.SetMicEnabled(ctx, false); err != nil {
		m.writeFailed("microphone state", err)
	}
	m.logger.Info().Msg("mic off")
}

// releaseMicLocked stops the sampling loop before closing the analyser it reads from.
func (m *Manager) releaseMicLocked(ctx context.Context) {
	if m.mic.cancel != nil {
		m.mic.cancel()
		<-m.mic.done
	}
	if m.mic.analyser != nil {
		if err := m.mic.analyser.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("analyser close failed")
		}
	}
	if m.mic.stream != nil {
		m.mic.stream.Stop()
	}
	if m.mic.published {
		if err := m.transport.SetMicrophoneEnabled(ctx, false); err != nil {
			m.logger.Warn().Err(err).Msg("mic unpublish failed")
		}
	}
	m.mic = micPath{}
	m.level.Store(0)
}

// Restore replays persisted camera/mic state once per transport session.
// It must run after the transport join completed.
func (m *Manager) Restore(ctx context.Context, p domain.Participant) {
	m.mu.Lock()
	if m.restored {
		m.mu.Unlock()
		return
	}
	m.restored = true
	m.mu.Unlock()

	if p.CameraEnabled {
		if err := m.SetCamera(ctx, true); err != nil {
			m.logger.Warn().Err(err).Msg("camera restore failed")
		}
	}
	if p.MicEnabled {
		if err := m.SetMic(ctx, true); err != nil {
			m.logger.Warn().Err(err).Msg("mic restore failed")
		}
	}
}

// Close releases every capture handle without touching persisted flags, so a
// rejoin can restore them. It reports whether the camera was on.
func (m *Manager) Close(ctx context.Context) (hadCamera bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hadCamera = m.camOn
	if m.thumbs != nil {
		m.thumbs.Stop()
	}
	m.releaseCameraLocked(ctx)
	m.releaseMicLocked(ctx)
	m.camOn, m.micOn, m.restored = false, false, false
	m.closed = true
	m.presence.SetLocalVideo(false, nil)
	m.presence.SetLocalAudio(false)
	return hadCamera
}

// Open re-arms a closed manager for a new studying phase.
func (m *Manager) Open() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
}

// ReleaseRoom is run on teardown by a participant whose camera was on.
func (m *Manager) ReleaseRoom(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revertRoomIfIdle(ctx)
}

func (m *Manager) fail(device string, err error) error {
	if errors.Is(err, domain.ErrPermissionDenied) {
		m.notifier.Notice(core.NoticePermission, device+" access was denied")
		m.logger.Warn().Err(err).Str("device", device).Msg("permission denied")
		return err
	}
	m.notifier.Notice(core.NoticeTransport, "could not start "+device)
	m.logger.Error().Err(err).Str("device", device).Msg("device start failed")
	return err
}

func (m *Manager) writeFailed(what string, err error) {
	m.notifier.Notice(core.NoticeWriteFailed, "could not save "+what)
	m.logger.Warn().Err(err).Str("what", what).Msg("persist failed")
}
