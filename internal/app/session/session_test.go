package session

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/dkeye/CoStudy/internal/adapters/device"
	"github.com/dkeye/CoStudy/internal/adapters/store/memory"
	"github.com/dkeye/CoStudy/internal/app/presence"
	"github.com/dkeye/CoStudy/internal/app/thumbnail"
	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/core/mocks"
	"github.com/dkeye/CoStudy/internal/domain"
	"go.uber.org/mock/gomock"
)

const roomID domain.RoomID = "room-1"

var testCfg = Config{
	LevelInterval: 2 * time.Millisecond,
	ClockTick:     time.Hour,
	Thumbnail:     thumbnail.Config{Warmup: 5 * time.Millisecond, Period: 5 * time.Millisecond},
}

type harness struct {
	store     *memory.Store
	transport *fakeTransport
	devices   *device.Devices
	notices   *noticeLog
	sess      *Session
}

func seedRoom(capacity int) *memory.Store {
	st := memory.New(memory.Options{})
	st.PutRoom(domain.Room{ID: roomID, Name: "Quiet hall", Capacity: capacity})
	return st
}

func seatUser(t *testing.T, st *memory.Store, user domain.UserID, n int, mutate func(*domain.Participant)) {
	t.Helper()
	p := domain.Participant{RoomID: roomID, UserID: user, SeatNumber: n, Status: domain.StatusStudying, GoalMinutes: 30}
	if mutate != nil {
		mutate(&p)
	}
	ctx := context.Background()
	if err := st.CreateParticipant(ctx, &p); err != nil {
		t.Fatal(err)
	}
	if err := st.AdjustParticipants(ctx, roomID, 1); err != nil {
		t.Fatal(err)
	}
}

func newHarness(t *testing.T, st *memory.Store, user domain.UserID, blobs core.BlobStorage, cfg Config) *harness {
	t.Helper()
	h := &harness{
		store:     st,
		transport: &fakeTransport{},
		devices:   device.New(device.Options{Width: 8, Height: 8}),
		notices:   &noticeLog{},
	}
	h.sess = New(Deps{
		Store:     st,
		Feed:      st,
		Blobs:     blobs,
		Transport: h.transport,
		Devices:   h.devices,
		Notifier:  h.notices,
	}, roomID, user, cfg)
	t.Cleanup(func() { h.sess.Unmount(context.Background()) })
	return h
}

func (h *harness) own(t *testing.T, user domain.UserID) domain.Participant {
	t.Helper()
	roster, err := h.store.ActiveParticipants(context.Background(), roomID)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := roster.ByUser(user)
	if !ok {
		t.Fatalf("no active row for %s", user)
	}
	return p
}

func (h *harness) room(t *testing.T) domain.Room {
	t.Helper()
	r, ok := h.store.Room(roomID)
	if !ok {
		t.Fatal("room missing")
	}
	return r
}

func mustPhase(t *testing.T, s *Session, want Phase) {
	t.Helper()
	if got := s.Phase(); got != want {
		t.Fatalf("phase = %s, want %s", got, want)
	}
}

func TestNewJoinerPicksSeatAndGoal(t *testing.T) {
	st := seedRoom(5)
	seatUser(t, st, "u1", 1, nil)
	seatUser(t, st, "u2", 2, nil)
	h := newHarness(t, st, "me", nil, testCfg)
	ctx := context.Background()

	if err := h.sess.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	mustPhase(t, h.sess, PhaseSeatSelection)

	if err := h.sess.PickSeat(ctx, 4); err != nil {
		t.Fatal(err)
	}
	mustPhase(t, h.sess, PhaseGoalSelection)
	if _, err := st.ActiveParticipants(ctx, roomID); err != nil {
		t.Fatal(err)
	}

	if err := h.sess.ConfirmGoal(ctx, 60); err != nil {
		t.Fatal(err)
	}
	mustPhase(t, h.sess, PhaseStudying)

	p := h.own(t, "me")
	if p.SeatNumber != 4 || p.Status != domain.StatusStudying || p.CameraEnabled || p.MicEnabled || p.GoalMinutes != 60 {
		t.Fatalf("row = %+v", p)
	}
	if got := h.room(t).CurrentParticipants; got != 3 {
		t.Fatalf("current participants = %d, want 3", got)
	}
	if !h.transport.isJoined() || h.transport.channel != string(roomID) {
		t.Fatalf("transport join = %v on %q", h.transport.isJoined(), h.transport.channel)
	}
	if h.transport.localID != presence.TransportID("me", 0) {
		t.Fatal("joined with a different transport id")
	}
	if !h.sess.Chat().Subscribed() || !h.sess.Clock().Running() {
		t.Fatal("studying resources not started")
	}
}

func TestGoalMustBeValid(t *testing.T) {
	h := newHarness(t, seedRoom(5), "me", nil, testCfg)
	ctx := context.Background()
	_ = h.sess.Mount(ctx)
	_ = h.sess.PickSeat(ctx, 1)
	if err := h.sess.ConfirmGoal(ctx, 0); !errors.Is(err, domain.ErrInvalidGoal) {
		t.Fatalf("err = %v", err)
	}
	mustPhase(t, h.sess, PhaseGoalSelection)
}

func TestReturningParticipantSwitchesSeat(t *testing.T) {
	st := seedRoom(8)
	seatUser(t, st, "me", 2, nil)
	h := newHarness(t, st, "me", nil, testCfg)
	ctx := context.Background()

	if err := h.sess.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	mustPhase(t, h.sess, PhaseSeatSelection)

	if err := h.sess.PickSeat(ctx, 7); err != nil {
		t.Fatal(err)
	}
	mustPhase(t, h.sess, PhaseStudying)
	if p := h.own(t, "me"); p.SeatNumber != 7 {
		t.Fatalf("seat = %d, want 7", p.SeatNumber)
	}
	if got := h.room(t).CurrentParticipants; got != 1 {
		t.Fatalf("count changed on switch: %d", got)
	}
}

func TestReselectingOwnSeat(t *testing.T) {
	st := seedRoom(8)
	seatUser(t, st, "me", 3, nil)
	h := newHarness(t, st, "me", nil, testCfg)
	ctx := context.Background()
	_ = h.sess.Mount(ctx)

	if err := h.sess.PickSeat(ctx, 3); err != nil {
		t.Fatal(err)
	}
	mustPhase(t, h.sess, PhaseStudying)
}

func TestOccupiedSeatRejected(t *testing.T) {
	st := seedRoom(4)
	seatUser(t, st, "other", 1, nil)
	h := newHarness(t, st, "me", nil, testCfg)
	ctx := context.Background()
	_ = h.sess.Mount(ctx)

	if err := h.sess.PickSeat(ctx, 1); !errors.Is(err, domain.ErrSeatTaken) {
		t.Fatalf("err = %v", err)
	}
	if err := h.sess.PickSeat(ctx, 9); !errors.Is(err, domain.ErrSeatOutOfRange) {
		t.Fatalf("err = %v", err)
	}
	mustPhase(t, h.sess, PhaseSeatSelection)
	if !h.notices.has(core.NoticeSeatTaken) {
		t.Fatal("no seat-taken notice")
	}
}

func TestLostSeatRaceGoesBackToSelection(t *testing.T) {
	st := seedRoom(6)
	a := newHarness(t, st, "alice", nil, testCfg)
	b := newHarness(t, st, "bob", nil, testCfg)
	ctx := context.Background()
	_ = a.sess.Mount(ctx)
	_ = b.sess.Mount(ctx)

	// both saw seat 3 empty
	if err := a.sess.PickSeat(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if err := b.sess.PickSeat(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if err := a.sess.ConfirmGoal(ctx, 25); err != nil {
		t.Fatal(err)
	}
	err := b.sess.ConfirmGoal(ctx, 25)
	if !errors.Is(err, domain.ErrSeatTaken) {
		t.Fatalf("err = %v, want ErrSeatTaken", err)
	}
	mustPhase(t, a.sess, PhaseStudying)
	mustPhase(t, b.sess, PhaseSeatSelection)
	if !b.notices.has(core.NoticeSeatTaken) {
		t.Fatal("loser not notified")
	}
	if !b.sess.Seats().Occupied(3) {
		t.Fatal("loser roster not refreshed")
	}
	if b.transport.isJoined() {
		t.Fatal("loser joined the transport")
	}
}

func TestRejoinRestoresMediaAfterTransportJoin(t *testing.T) {
	st := seedRoom(4)
	seatUser(t, st, "me", 2, func(p *domain.Participant) {
		p.CameraEnabled = true
		p.MicEnabled = true
	})
	h := newHarness(t, st, "me", nil, testCfg)
	ctx := context.Background()
	_ = h.sess.Mount(ctx)
	if err := h.sess.PickSeat(ctx, 2); err != nil {
		t.Fatal(err)
	}

	calls := h.transport.snapshot()
	join := slices.Index(calls, "join")
	cam := slices.Index(calls, "camera:true")
	mic := slices.Index(calls, "mic:true")
	if join < 0 || cam < join || mic < join {
		t.Fatalf("restore ran before join: %v", calls)
	}
	if !h.sess.Media().CameraOn() || !h.sess.Media().MicOn() {
		t.Fatal("media not restored")
	}
	if h.room(t).SessionStatus != domain.SessionLive {
		t.Fatal("room not live after camera restore")
	}
	if st, ok := h.sess.Presence().MediaFor("me"); !ok || !st.HasVideo {
		t.Fatal("own presence entry missing video")
	}
}

func TestJoinFailureKeepsSeatAndSkipsRestore(t *testing.T) {
	st := seedRoom(4)
	seatUser(t, st, "me", 1, func(p *domain.Participant) { p.CameraEnabled = true })
	h := newHarness(t, st, "me", nil, testCfg)
	h.transport.joinErr = errors.New("channel unavailable")
	ctx := context.Background()
	_ = h.sess.Mount(ctx)

	if err := h.sess.PickSeat(ctx, 1); err != nil {
		t.Fatal(err)
	}
	mustPhase(t, h.sess, PhaseStudying)
	if h.sess.Media().CameraOn() {
		t.Fatal("restore ran without a transport session")
	}
	if !h.notices.has(core.NoticeTransport) {
		t.Fatal("no transport notice")
	}
}

func TestLeaveTearsDownEverything(t *testing.T) {
	ctrl := gomock.NewController(t)
	blobs := mocks.NewMockBlobStorage(ctrl)
	blobs.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any(), "image/jpeg").
		Return("https://cdn/t.jpg", nil).AnyTimes()

	st := seedRoom(4)
	h := newHarness(t, st, "me", blobs, testCfg)
	ctx := context.Background()
	_ = h.sess.Mount(ctx)
	_ = h.sess.PickSeat(ctx, 1)
	_ = h.sess.ConfirmGoal(ctx, 45)

	if err := h.sess.ToggleCamera(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.sess.ToggleMic(ctx); err != nil {
		t.Fatal(err)
	}
	if !h.sess.Thumbnails().Running() {
		t.Fatal("thumbnails not running with camera on")
	}

	if err := h.sess.Leave(ctx); err != nil {
		t.Fatal(err)
	}
	h.sess.Thumbnails().Drain()

	mustPhase(t, h.sess, PhaseExited)
	if n := h.devices.LiveTracks(); n != 0 {
		t.Fatalf("live tracks = %d", n)
	}
	if h.devices.OpenSurfaces() != 0 || h.devices.OpenAnalysers() != 0 {
		t.Fatal("surface or analyser leaked")
	}
	if h.sess.Thumbnails().Running() || h.sess.Clock().Running() {
		t.Fatal("timer survived leave")
	}
	if h.sess.Chat().Subscribed() || st.Feed().Subscribers() != 0 {
		t.Fatal("chat subscription survived leave")
	}
	if h.transport.isJoined() {
		t.Fatal("transport not left")
	}
	roster, _ := st.ActiveParticipants(ctx, roomID)
	if len(roster) != 0 {
		t.Fatalf("row still active: %+v", roster)
	}
	r := h.room(t)
	if r.CurrentParticipants != 0 || r.SessionStatus != domain.SessionWaiting || r.ThumbnailURL != nil {
		t.Fatalf("room after leave = %+v", r)
	}

	if err := h.sess.Leave(ctx); err != nil {
		t.Fatalf("second leave: %v", err)
	}
}

func TestUnmountKeepsRowForRejoin(t *testing.T) {
	st := seedRoom(4)
	h := newHarness(t, st, "me", nil, testCfg)
	ctx := context.Background()
	_ = h.sess.Mount(ctx)
	_ = h.sess.PickSeat(ctx, 2)
	_ = h.sess.ConfirmGoal(ctx, 45)
	_ = h.sess.ToggleCamera(ctx)
	url := "https://blobs/room-1.jpg"
	if err := st.SetThumbnail(ctx, roomID, &url); err != nil {
		t.Fatal(err)
	}
	if h.room(t).SessionStatus != domain.SessionLive {
		t.Fatal("camera on did not mark the room live")
	}

	h.sess.Unmount(ctx)

	mustPhase(t, h.sess, PhaseExited)
	if h.devices.LiveTracks() != 0 {
		t.Fatal("tracks leaked on unmount")
	}
	p := h.own(t, "me")
	if !p.CameraEnabled {
		t.Fatal("unmount persisted camera off")
	}
	if h.room(t).CurrentParticipants != 1 {
		t.Fatal("unmount changed the participant count")
	}
	if r := h.room(t); r.SessionStatus != domain.SessionWaiting || r.ThumbnailURL != nil {
		t.Fatalf("room still live after the only camera went away: %+v", r)
	}
}

func TestBackReleasesStudyingResources(t *testing.T) {
	st := seedRoom(4)
	h := newHarness(t, st, "me", nil, testCfg)
	ctx := context.Background()
	_ = h.sess.Mount(ctx)
	_ = h.sess.PickSeat(ctx, 2)
	_ = h.sess.ConfirmGoal(ctx, 45)
	_ = h.sess.ToggleMic(ctx)

	if err := h.sess.Back(ctx); err != nil {
		t.Fatal(err)
	}
	mustPhase(t, h.sess, PhaseSeatSelection)
	if h.devices.LiveTracks() != 0 || h.sess.Chat().Subscribed() || h.transport.isJoined() {
		t.Fatal("studying resources survived back")
	}
	if err := h.sess.ToggleCamera(ctx); !errors.Is(err, ErrNotStudying) {
		t.Fatalf("toggle outside studying: %v", err)
	}

	// back into the same seat restores the mic for the new transport session
	if err := h.sess.PickSeat(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if !h.sess.Media().MicOn() {
		t.Fatal("mic not restored on return")
	}
}

func TestNavigateAwayAsksWhileStudying(t *testing.T) {
	st := seedRoom(4)
	h := newHarness(t, st, "me", nil, testCfg)
	ctx := context.Background()
	_ = h.sess.Mount(ctx)
	if h.sess.NeedsExitConfirmation() {
		t.Fatal("confirmation needed before studying")
	}
	_ = h.sess.PickSeat(ctx, 1)
	_ = h.sess.ConfirmGoal(ctx, 30)

	if h.sess.NavigateAway(ctx, func() bool { return false }) {
		t.Fatal("navigated despite declined prompt")
	}
	mustPhase(t, h.sess, PhaseStudying)
	if !h.sess.NavigateAway(ctx, func() bool { return true }) {
		t.Fatal("confirmed navigation refused")
	}
	mustPhase(t, h.sess, PhaseExited)
}

func TestMissingRoomIsTerminal(t *testing.T) {
	h := newHarness(t, memory.New(memory.Options{}), "me", nil, testCfg)
	err := h.sess.Mount(context.Background())
	if !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("err = %v", err)
	}
	mustPhase(t, h.sess, PhaseNotFound)
}

func TestBreakPausesClockAndMinutesPersist(t *testing.T) {
	cfg := testCfg
	cfg.ClockTick = time.Millisecond
	st := seedRoom(4)
	h := newHarness(t, st, "me", nil, cfg)
	ctx := context.Background()
	_ = h.sess.Mount(ctx)
	_ = h.sess.PickSeat(ctx, 1)
	_ = h.sess.ConfirmGoal(ctx, 30)

	deadline := time.Now().Add(3 * time.Second)
	for h.own(t, "me").CurrentSessionMinutes < 1 {
		if time.Now().After(deadline) {
			t.Fatal("minute never persisted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := h.sess.SetStatus(ctx, domain.StatusBreak); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	paused := h.sess.Clock().Elapsed()
	time.Sleep(30 * time.Millisecond)
	if h.sess.Clock().Elapsed() != paused {
		t.Fatal("clock advanced during break")
	}
	if h.own(t, "me").Status != domain.StatusBreak {
		t.Fatal("status not persisted")
	}

	_ = h.sess.SetStatus(ctx, domain.StatusStudying)
	time.Sleep(30 * time.Millisecond)
	if h.sess.Clock().Elapsed() == paused {
		t.Fatal("clock did not resume")
	}
}

func TestRemoteEventsResolveToParticipants(t *testing.T) {
	st := seedRoom(4)
	seatUser(t, st, "other", 3, nil)
	h := newHarness(t, st, "me", nil, testCfg)
	ctx := context.Background()
	_ = h.sess.Mount(ctx)
	_ = h.sess.PickSeat(ctx, 1)
	_ = h.sess.ConfirmGoal(ctx, 30)

	tid := h.sess.Presence().IDFor("other")
	h.transport.events.OnRemoteVideoStateChanged(tid, true, fakeTrack("remote"))
	if users := h.sess.Presence().Resolve(tid); !slices.Contains(users, domain.UserID("other")) {
		t.Fatalf("tid %d resolved to %v", tid, users)
	}
	ms, ok := h.sess.Presence().MediaFor("other")
	if !ok || !ms.HasVideo || ms.VideoTrack.ID() != "remote" {
		t.Fatalf("presence = %+v, %v", ms, ok)
	}
	h.transport.events.OnRemoteUserLeft(tid)
	if _, ok := h.sess.Presence().MediaFor("other"); ok {
		t.Fatal("entry survived user left")
	}
}

func TestLateJoinerResolvesToParticipant(t *testing.T) {
	st := seedRoom(4)
	h := newHarness(t, st, "me", nil, testCfg)
	ctx := context.Background()
	_ = h.sess.Mount(ctx)
	_ = h.sess.PickSeat(ctx, 1)
	if err := h.sess.ConfirmGoal(ctx, 30); err != nil {
		t.Fatal(err)
	}
	mustPhase(t, h.sess, PhaseStudying)

	// seated by another client after our roster was read
	seatUser(t, st, "late", 3, nil)
	tid := h.sess.Presence().IDFor("late")
	h.transport.events.OnRemoteUserJoined(tid)
	h.transport.events.OnRemoteVideoStateChanged(tid, true, fakeTrack("late-cam"))

	if users := h.sess.Presence().Resolve(tid); !slices.Contains(users, domain.UserID("late")) {
		t.Fatalf("tid %d resolved to %v", tid, users)
	}
	if _, ok := h.sess.Seats().Roster().ByUser("late"); !ok {
		t.Fatal("late joiner missing from the roster")
	}
	if ms, ok := h.sess.Presence().MediaFor("late"); !ok || !ms.HasVideo {
		t.Fatalf("presence = %+v, %v", ms, ok)
	}
	if _, ok := h.sess.Seats().Own(); !ok {
		t.Fatal("roster sync dropped the own row")
	}
}

func TestRosterUpdateTracksUnknownIDs(t *testing.T) {
	st := seedRoom(4)
	h := newHarness(t, st, "me", nil, testCfg)
	ctx := context.Background()
	_ = h.sess.Mount(ctx)
	_ = h.sess.PickSeat(ctx, 1)
	_ = h.sess.ConfirmGoal(ctx, 30)

	seatUser(t, st, "late", 2, nil)
	tid := h.sess.Presence().IDFor("late")
	h.transport.events.OnRemoteRosterUpdated([]core.TransportID{tid})

	if users := h.sess.Presence().Resolve(tid); !slices.Contains(users, domain.UserID("late")) {
		t.Fatalf("tid %d resolved to %v", tid, users)
	}
}

func TestReturningParticipantAfterFailedRosterRead(t *testing.T) {
	tests := []struct {
		name string
		pick int
	}{
		{name: "same seat", pick: 2},
		{name: "other seat", pick: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := seedRoom(4)
			seatUser(t, st, "me", 2, nil)
			st.Fail("ActiveParticipants", errors.New("read timeout"))
			h := newHarness(t, st, "me", nil, testCfg)
			ctx := context.Background()

			if err := h.sess.Mount(ctx); err != nil {
				t.Fatal(err)
			}
			mustPhase(t, h.sess, PhaseSeatSelection)
			if err := h.sess.PickSeat(ctx, tt.pick); err != nil {
				t.Fatal(err)
			}
			mustPhase(t, h.sess, PhaseGoalSelection)
			if err := h.sess.ConfirmGoal(ctx, 30); err != nil {
				t.Fatal(err)
			}

			mustPhase(t, h.sess, PhaseStudying)
			if h.notices.has(core.NoticeSeatTaken) {
				t.Fatal("own row reported as a taken seat")
			}
			if p := h.own(t, "me"); p.SeatNumber != tt.pick {
				t.Fatalf("seat = %d, want %d", p.SeatNumber, tt.pick)
			}
			if got := h.room(t).CurrentParticipants; got != 1 {
				t.Fatalf("current participants = %d, want 1", got)
			}
			if !h.transport.isJoined() {
				t.Fatal("transport not joined")
			}
		})
	}
}

func TestLeaveAbortsPendingJoin(t *testing.T) {
	st := seedRoom(4)
	h := newHarness(t, st, "me", nil, testCfg)
	h.transport.block = make(chan struct{})
	ctx := context.Background()
	_ = h.sess.Mount(ctx)
	_ = h.sess.PickSeat(ctx, 1)

	confirmed := make(chan error, 1)
	go func() { confirmed <- h.sess.ConfirmGoal(ctx, 30) }()

	deadline := time.Now().Add(2 * time.Second)
	for !slices.Contains(h.transport.snapshot(), "join") {
		if time.Now().After(deadline) {
			t.Fatal("join never started")
		}
		time.Sleep(time.Millisecond)
	}

	left := make(chan error, 1)
	go func() { left <- h.sess.Leave(ctx) }()
	select {
	case err := <-left:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("leave blocked behind a pending join")
	}
	if err := <-confirmed; err != nil {
		t.Fatal(err)
	}

	mustPhase(t, h.sess, PhaseExited)
	if h.transport.isJoined() {
		t.Fatal("transport joined after leave")
	}
	if h.notices.has(core.NoticeTransport) {
		t.Fatal("aborted join reported as a failure")
	}
	if h.devices.LiveTracks() != 0 {
		t.Fatal("tracks leaked")
	}
}
