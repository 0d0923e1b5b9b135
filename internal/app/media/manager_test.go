package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/CoStudy/internal/adapters/device"
	"github.com/dkeye/CoStudy/internal/adapters/store/memory"
	"github.com/dkeye/CoStudy/internal/app/presence"
	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/core/mocks"
	"github.com/dkeye/CoStudy/internal/domain"
	"go.uber.org/mock/gomock"
)

const roomID domain.RoomID = "room-1"

type fakeSeats struct {
	mu     sync.Mutex
	camera bool
	mic    bool
	others bool
	err    error
}

func (f *fakeSeats) SetCameraEnabled(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.camera = on
	return nil
}

func (f *fakeSeats) SetMicEnabled(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.mic = on
	return nil
}

func (f *fakeSeats) OthersWithCamera(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.others
}

type fakeThumbs struct {
	mu      sync.Mutex
	running bool
	starts  int
}

func (f *fakeThumbs) Start(core.Surface) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		f.starts++
	}
	f.running = true
}

func (f *fakeThumbs) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

func (f *fakeThumbs) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

type notices struct {
	mu    sync.Mutex
	kinds []core.NoticeKind
}

func (n *notices) Notice(kind core.NoticeKind, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
}

func (n *notices) has(kind core.NoticeKind) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, k := range n.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type fixture struct {
	mgr       *Manager
	transport *mocks.MockTransport
	devices   *device.Devices
	store     *memory.Store
	presence  *presence.Synchronizer
	seats     *fakeSeats
	thumbs    *fakeThumbs
	notices   *notices
}

func newFixture(t *testing.T, opts device.Options) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		transport: mocks.NewMockTransport(ctrl),
		devices:   device.New(opts),
		store:     memory.New(memory.Options{}),
		presence:  presence.NewSynchronizer(0),
		seats:     &fakeSeats{},
		thumbs:    &fakeThumbs{},
		notices:   &notices{},
	}
	thumb := "https://cdn/old.jpg"
	f.store.PutRoom(domain.Room{ID: roomID, Capacity: 6, SessionStatus: domain.SessionWaiting, ThumbnailURL: &thumb})
	f.presence.SetLocal("me")
	f.mgr = NewManager(Deps{
		Transport: f.transport,
		Devices:   f.devices,
		Presence:  f.presence,
		Seats:     f.seats,
		Rooms:     f.store,
		RoomID:    roomID,
		Thumbs:    f.thumbs,
		Notifier:  f.notices,
	}, Config{LevelInterval: 5 * time.Millisecond})
	return f
}

func (f *fixture) allowTransport() {
	f.transport.EXPECT().SetCameraEnabled(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	f.transport.EXPECT().SetMicrophoneEnabled(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	f.transport.EXPECT().LocalVideoTrack().Return(nil).AnyTimes()
}

func (f *fixture) room(t *testing.T) domain.Room {
	t.Helper()
	r, ok := f.store.Room(roomID)
	if !ok {
		t.Fatal("room missing")
	}
	return r
}

func TestCameraOnTwiceIsNoop(t *testing.T) {
	f := newFixture(t, device.Options{})
	f.transport.EXPECT().SetCameraEnabled(gomock.Any(), true).Return(nil).Times(1)
	f.transport.EXPECT().LocalVideoTrack().Return(nil).Times(1)
	ctx := context.Background()

	if err := f.mgr.SetCamera(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := f.mgr.SetCamera(ctx, true); err != nil {
		t.Fatal(err)
	}

	if got := f.devices.Opened(); got != 1 {
		t.Fatalf("raw streams opened = %d, want 1", got)
	}
	if f.thumbs.starts != 1 {
		t.Fatalf("thumbnail starts = %d, want 1", f.thumbs.starts)
	}
	if st := f.room(t).SessionStatus; st != domain.SessionLive {
		t.Fatalf("session status = %s, want live", st)
	}
	if !f.seats.camera {
		t.Fatal("camera flag not persisted")
	}
	if st, _ := f.presence.MediaFor("me"); !st.HasVideo {
		t.Fatal("own presence entry not updated")
	}
}

func TestCameraOffRevertsRoomStatus(t *testing.T) {
	tests := []struct {
		name        string
		otherSeat   bool
		remoteVideo bool
		connected   bool
		want        domain.SessionStatus
		wantThumb   bool
	}{
		{name: "sole camera", want: domain.SessionWaiting},
		{name: "other participant flagged", otherSeat: true, want: domain.SessionLive, wantThumb: true},
		{name: "remote video live", remoteVideo: true, want: domain.SessionLive, wantThumb: true},
		{name: "flagged but idle while connected", otherSeat: true, connected: true, want: domain.SessionWaiting},
		{name: "remote video while connected", remoteVideo: true, connected: true, want: domain.SessionLive, wantThumb: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, device.Options{})
			f.allowTransport()
			f.seats.others = tt.otherSeat
			f.presence.SetConnected(tt.connected)
			if tt.remoteVideo {
				f.presence.OnRemoteVideoStateChanged(f.presence.IDFor("other"), true, nil)
			}
			ctx := context.Background()

			if err := f.mgr.SetCamera(ctx, true); err != nil {
				t.Fatal(err)
			}
			if err := f.mgr.SetCamera(ctx, false); err != nil {
				t.Fatal(err)
			}

			r := f.room(t)
			if r.SessionStatus != tt.want {
				t.Fatalf("session status = %s, want %s", r.SessionStatus, tt.want)
			}
			if (r.ThumbnailURL != nil) != tt.wantThumb {
				t.Fatalf("thumbnail = %v, want present=%v", r.ThumbnailURL, tt.wantThumb)
			}
			if f.thumbs.Running() {
				t.Fatal("thumbnails still running after camera off")
			}
			if f.devices.LiveTracks() != 0 || f.devices.OpenSurfaces() != 0 {
				t.Fatal("raw camera path not released")
			}
			if f.seats.camera {
				t.Fatal("camera flag still persisted on")
			}
		})
	}
}

func TestClosedManagerRefusesDevices(t *testing.T) {
	f := newFixture(t, device.Options{})
	ctx := context.Background()

	f.mgr.Close(ctx)
	if err := f.mgr.SetCamera(ctx, true); !errors.Is(err, ErrClosed) {
		t.Fatalf("camera after close: %v", err)
	}
	if err := f.mgr.SetMic(ctx, true); !errors.Is(err, ErrClosed) {
		t.Fatalf("mic after close: %v", err)
	}
	if err := f.mgr.SetCamera(ctx, false); err != nil {
		t.Fatalf("camera off after close: %v", err)
	}
	if f.devices.LiveTracks() != 0 || f.seats.camera {
		t.Fatal("closed manager captured a device")
	}

	f.allowTransport()
	f.mgr.Open()
	if err := f.mgr.SetCamera(ctx, true); err != nil {
		t.Fatal(err)
	}
	if !f.mgr.CameraOn() {
		t.Fatal("reopened manager did not start the camera")
	}
	f.mgr.Close(ctx)
}

func TestToggleRacingCloseLeavesNothingOpen(t *testing.T) {
	f := newFixture(t, device.Options{})
	f.allowTransport()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = f.mgr.ToggleCamera(ctx)
				_ = f.mgr.ToggleMic(ctx)
			}
		}()
	}
	f.mgr.Close(ctx)
	wg.Wait()

	if f.mgr.CameraOn() || f.mgr.MicOn() {
		t.Fatal("device switched on after close")
	}
	if f.devices.LiveTracks() != 0 || f.devices.OpenSurfaces() != 0 {
		t.Fatalf("leaked %d tracks", f.devices.LiveTracks())
	}
}

func TestCameraPermissionDeniedRevertsToOff(t *testing.T) {
	f := newFixture(t, device.Options{DenyCamera: true})
	gomock.InOrder(
		f.transport.EXPECT().SetCameraEnabled(gomock.Any(), true).Return(nil),
		f.transport.EXPECT().SetCameraEnabled(gomock.Any(), false).Return(nil),
	)

	err := f.mgr.SetCamera(context.Background(), true)
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("err = %v, want permission denied", err)
	}
	if f.mgr.CameraOn() {
		t.Fatal("camera reported on after denial")
	}
	if !f.notices.has(core.NoticePermission) {
		t.Fatal("no permission notice")
	}
	if f.seats.camera || f.thumbs.starts != 0 {
		t.Fatal("denied camera was persisted or started thumbnails")
	}
	if st := f.room(t).SessionStatus; st != domain.SessionWaiting {
		t.Fatalf("session status = %s", st)
	}
}

func TestTransportRefusalSkipsRawCapture(t *testing.T) {
	f := newFixture(t, device.Options{})
	f.transport.EXPECT().SetMicrophoneEnabled(gomock.Any(), true).
		Return(fmt.Errorf("publish audio: %w", domain.ErrPermissionDenied))

	if err := f.mgr.SetMic(context.Background(), true); err == nil {
		t.Fatal("expected error")
	}
	if f.devices.Opened() != 0 {
		t.Fatal("raw microphone opened after transport refusal")
	}
	if f.mgr.MicOn() || !f.notices.has(core.NoticePermission) {
		t.Fatal("mic state or notice wrong")
	}
}

func TestMicLevelSampling(t *testing.T) {
	f := newFixture(t, device.Options{})
	f.allowTransport()
	levels := make(chan int, 64)
	f.mgr.OnLevel(func(l int) {
		select {
		case levels <- l:
		default:
		}
	})
	ctx := context.Background()

	if err := f.mgr.SetMic(ctx, true); err != nil {
		t.Fatal(err)
	}
	select {
	case l := <-levels:
		if l < 0 || l > 100 {
			t.Fatalf("level %d out of range", l)
		}
	case <-time.After(time.Second):
		t.Fatal("no level sample")
	}
	if !f.seats.mic {
		t.Fatal("mic flag not persisted")
	}

	if err := f.mgr.SetMic(ctx, false); err != nil {
		t.Fatal(err)
	}
	if f.mgr.MicLevel() != 0 {
		t.Fatal("level not reset")
	}
	if f.devices.OpenAnalysers() != 0 || f.devices.LiveTracks() != 0 {
		t.Fatal("microphone path leaked")
	}
}

func TestPersistFailureKeepsLocalState(t *testing.T) {
	f := newFixture(t, device.Options{})
	f.allowTransport()
	f.seats.err = errors.New("db down")

	if err := f.mgr.SetCamera(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	if !f.mgr.CameraOn() {
		t.Fatal("local state rolled back")
	}
	if !f.notices.has(core.NoticeWriteFailed) {
		t.Fatal("no write-failed notice")
	}
	f.mgr.Close(context.Background())
}

func TestCloseReleasesEverythingAndKeepsFlags(t *testing.T) {
	f := newFixture(t, device.Options{})
	f.allowTransport()
	ctx := context.Background()
	_ = f.mgr.SetCamera(ctx, true)
	_ = f.mgr.SetMic(ctx, true)

	if !f.mgr.Close(ctx) {
		t.Fatal("Close did not report camera on")
	}
	if f.devices.LiveTracks() != 0 || f.devices.OpenSurfaces() != 0 || f.devices.OpenAnalysers() != 0 {
		t.Fatalf("leak: tracks=%d surfaces=%d analysers=%d",
			f.devices.LiveTracks(), f.devices.OpenSurfaces(), f.devices.OpenAnalysers())
	}
	if f.thumbs.Running() {
		t.Fatal("thumbnail loop survived close")
	}
	if !f.seats.camera || !f.seats.mic {
		t.Fatal("close must not persist devices off")
	}
	if f.mgr.Close(ctx) {
		t.Fatal("second close reported camera on")
	}
}

func TestRestoreOncePerSession(t *testing.T) {
	f := newFixture(t, device.Options{})
	f.allowTransport()
	ctx := context.Background()
	own := domain.Participant{UserID: "me", CameraEnabled: true, MicEnabled: true}

	f.mgr.Restore(ctx, own)
	_ = f.mgr.SetCamera(ctx, false)
	f.mgr.Restore(ctx, own)

	if f.mgr.CameraOn() {
		t.Fatal("second restore replayed camera")
	}
	if !f.mgr.MicOn() {
		t.Fatal("mic not restored")
	}

	f.mgr.Close(ctx)
	f.mgr.Open()
	f.mgr.Restore(ctx, own)
	if !f.mgr.CameraOn() {
		t.Fatal("restore after new session did not replay")
	}
	f.mgr.Close(ctx)
}

func TestLevel(t *testing.T) {
	tests := []struct {
		bins []uint8
		want int
	}{
		{nil, 0},
		{[]uint8{0, 0, 0}, 0},
		{[]uint8{255, 255}, 100},
		{[]uint8{255, 0}, 50},
	}
	for _, tt := range tests {
		if got := Level(tt.bins); got != tt.want {
			t.Errorf("Level(%v) = %d, want %d", tt.bins, got, tt.want)
		}
	}
}
