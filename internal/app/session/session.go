// Package session drives one user's live co-study session in a room: the phase
// machine plus every resource the studying phase holds.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/CoStudy/internal/app/chat"
	"github.com/dkeye/CoStudy/internal/app/media"
	"github.com/dkeye/CoStudy/internal/app/presence"
	"github.com/dkeye/CoStudy/internal/app/seat"
	"github.com/dkeye/CoStudy/internal/app/thumbnail"
	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var ErrNotStudying = errors.New("session is not in the studying phase")

type Config struct {
	HistoryLimit     int
	TransportIDRange uint32
	LevelInterval    time.Duration
	ClockTick        time.Duration
	Thumbnail        thumbnail.Config
}

type Deps struct {
	Store     core.Store
	Feed      core.ChatFeed
	Blobs     core.BlobStorage // optional; without it no thumbnails are published
	Transport core.Transport
	Devices   core.MediaDevices
	Notifier  core.Notifier
}

// Session serializes every phase event; effects run in order on the calling goroutine.
type Session struct {
	roomID    domain.RoomID
	userID    domain.UserID
	transport core.Transport
	notifier  core.Notifier

	seats    *seat.Registry
	presence *presence.Synchronizer
	media    *media.Manager
	thumbs   *thumbnail.Service
	chat     *chat.Channel
	clock    *Clock

	state atomic.Pointer[State]

	mu          sync.Mutex
	initialized bool
	joined      bool

	joinMu     sync.Mutex
	cancelJoin context.CancelFunc

	logger zerolog.Logger
}

func New(d Deps, room domain.RoomID, user domain.UserID, cfg Config) *Session {
	if d.Notifier == nil {
		d.Notifier = core.Discard
	}
	s := &Session{
		roomID:    room,
		userID:    user,
		transport: d.Transport,
		notifier:  d.Notifier,
		seats:     seat.NewRegistry(d.Store, d.Store, room, user),
		presence:  presence.NewSynchronizer(cfg.TransportIDRange),
		chat:      chat.NewChannel(d.Store, d.Feed, room, user, cfg.HistoryLimit, d.Notifier),
		logger: log.With().
			Str("module", "app.session").
			Str("room", string(room)).
			Str("user", string(user)).
			Logger(),
	}
	mdeps := media.Deps{
		Transport: d.Transport,
		Devices:   d.Devices,
		Presence:  s.presence,
		Seats:     s.seats,
		Rooms:     d.Store,
		RoomID:    room,
		Notifier:  d.Notifier,
	}
	if d.Blobs != nil {
		s.thumbs = thumbnail.NewService(d.Blobs, d.Store, room, cfg.Thumbnail)
		mdeps.Thumbs = s.thumbs
	}
	s.media = media.NewManager(mdeps, media.Config{LevelInterval: cfg.LevelInterval})
	s.clock = NewClock(cfg.ClockTick, s.persistMinutes)
	s.presence.OnTransportError(func(err error) {
		s.notifier.Notice(core.NoticeTransport, "connection problem")
	})
	s.state.Store(&State{Phase: PhaseLoading})
	return s
}

func (s *Session) State() State { return *s.state.Load() }
func (s *Session) Phase() Phase { return s.State().Phase }

func (s *Session) Seats() *seat.Registry            { return s.seats }
func (s *Session) Presence() *presence.Synchronizer { return s.presence }
func (s *Session) Media() *media.Manager            { return s.media }
func (s *Session) Chat() *chat.Channel              { return s.chat }
func (s *Session) Clock() *Clock                    { return s.clock }
func (s *Session) Thumbnails() *thumbnail.Service   { return s.thumbs }

// Mount loads the room and roster and enters seat selection. It returns
// domain.ErrRoomNotFound, with the phase set to not-found, only when the room
// record is missing.
func (s *Session) Mount(ctx context.Context) error {
	s.mu.Lock()
	if !s.initialized {
		if err := s.transport.Initialize(transportEvents{Synchronizer: s.presence, s: s}); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("initialize transport: %w", err)
		}
		s.initialized = true
	}
	s.mu.Unlock()

	if _, err := s.seats.LoadRoom(ctx); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			_ = s.Dispatch(ctx, RoomMissing{})
		}
		return err
	}
	roster := s.seats.LoadRoster(ctx)
	s.presence.TrackRoster(roster)

	own := 0
	if p, ok := s.seats.Own(); ok {
		own = p.SeatNumber
	}
	return s.Dispatch(ctx, RoomLoaded{OwnSeat: own})
}

// PickSeat selects a seat in the grid. Occupied or out-of-range seats are
// rejected before any write.
func (s *Session) PickSeat(ctx context.Context, seat int) error {
	if s.Phase() != PhaseSeatSelection {
		return fmt.Errorf("pick seat in %s", s.Phase())
	}
	if room := s.seats.Room(); room != nil {
		if err := room.CheckSeat(seat); err != nil {
			return err
		}
	}
	if s.seats.Occupied(seat) {
		s.notifier.Notice(core.NoticeSeatTaken, fmt.Sprintf("seat %d is taken", seat))
		return domain.ErrSeatTaken
	}
	return s.Dispatch(ctx, SeatPicked{Seat: seat})
}

func (s *Session) ConfirmGoal(ctx context.Context, minutes int) error {
	if err := domain.ValidateGoal(minutes); err != nil {
		return err
	}
	return s.Dispatch(ctx, GoalConfirmed{Minutes: minutes})
}

func (s *Session) CancelGoal(ctx context.Context) error {
	return s.Dispatch(ctx, GoalCancelled{})
}

// Back returns from studying to seat selection, releasing studying resources.
// The Participant row stays active.
func (s *Session) Back(ctx context.Context) error {
	s.abortJoin()
	return s.Dispatch(ctx, BackRequested{})
}

// Leave ends the stay: resources are released and the row is marked left.
func (s *Session) Leave(ctx context.Context) error {
	s.abortJoin()
	return s.Dispatch(ctx, LeaveRequested{})
}

// Unmount releases every resource without leaving the seat.
func (s *Session) Unmount(ctx context.Context) {
	s.abortJoin()
	_ = s.Dispatch(ctx, Unmounted{})
}

// NeedsExitConfirmation is true while leaving the page would interrupt studying.
func (s *Session) NeedsExitConfirmation() bool { return s.Phase() == PhaseStudying }

// NavigateAway unmounts unless the user declines the confirmation prompt.
func (s *Session) NavigateAway(ctx context.Context, confirm func() bool) bool {
	if s.NeedsExitConfirmation() && (confirm == nil || !confirm()) {
		return false
	}
	s.Unmount(ctx)
	return true
}

func (s *Session) ToggleCamera(ctx context.Context) error {
	if s.Phase() != PhaseStudying {
		return ErrNotStudying
	}
	return s.media.ToggleCamera(ctx)
}

func (s *Session) ToggleMic(ctx context.Context) error {
	if s.Phase() != PhaseStudying {
		return ErrNotStudying
	}
	return s.media.ToggleMic(ctx)
}

func (s *Session) SendMessage(ctx context.Context, text string) error {
	if s.Phase() != PhaseStudying {
		return ErrNotStudying
	}
	return s.chat.Send(ctx, text)
}

// SetStatus persists the participant status; break pauses the study clock.
// A failed write keeps the local status.
func (s *Session) SetStatus(ctx context.Context, status domain.ParticipantStatus) error {
	if s.Phase() != PhaseStudying {
		return ErrNotStudying
	}
	if !status.IsValid() || status == domain.StatusOffline {
		return fmt.Errorf("invalid status %q", status)
	}
	s.clock.SetPaused(status == domain.StatusBreak)
	if err := s.seats.SetStatus(ctx, status); err != nil {
		s.notifier.Notice(core.NoticeWriteFailed, "could not save status")
		s.logger.Warn().Err(err).Msg("status persist failed")
		return err
	}
	return nil
}

// Dispatch feeds ev to the machine and runs the resulting effects. Effects
// that complete asynchronous work feed their follow-up events back in order.
func (s *Session) Dispatch(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	queue := []Event{ev}
	for len(queue) > 0 {
		ev, queue = queue[0], queue[1:]
		prev := s.State()
		next, effects := Transition(prev, ev)
		s.state.Store(&next)
		if next.Phase != prev.Phase {
			s.logger.Info().Stringer("from", prev.Phase).Stringer("to", next.Phase).Msg("phase")
		}
		for _, fx := range effects {
			follow, err := s.run(ctx, fx)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if follow != nil {
				queue = append(queue, follow)
			}
		}
	}
	return firstErr
}

func (s *Session) run(ctx context.Context, fx Effect) (Event, error) {
	switch e := fx.(type) {
	case CreateParticipant:
		_, err := s.seats.Claim(ctx, e.Seat, e.GoalMinutes)
		if err == nil {
			return SeatClaimed{Seat: e.Seat}, nil
		}
		if own, ok := s.seats.Own(); ok && (errors.Is(err, domain.ErrAlreadySeated) || errors.Is(err, domain.ErrSeatTaken)) {
			// The stale roster hid the user's own row: continue as a returning participant.
			s.logger.Info().Int("seat", own.SeatNumber).Msg("already seated, resuming")
			return s.resumeSeat(ctx, own, e.Seat)
		}
		s.claimFailed(err)
		return ClaimFailed{Err: err}, err

	case MoveSeat:
		if _, err := s.seats.Move(ctx, e.Seat); err != nil {
			s.claimFailed(err)
			return ClaimFailed{Err: err}, err
		}
		return SeatClaimed{Seat: e.Seat}, nil

	case RefreshRoster:
		s.presence.TrackRoster(s.seats.LoadRoster(ctx))
		own := 0
		if p, ok := s.seats.Own(); ok {
			own = p.SeatNumber
		}
		return RosterLoaded{OwnSeat: own}, nil

	case EnterStudying:
		s.enterStudying(ctx)
		return nil, nil

	case JoinTransport:
		return s.joinTransport(ctx), nil

	case RestoreMedia:
		if own, ok := s.seats.Own(); ok {
			s.media.Restore(ctx, own)
		}
		return nil, nil

	case ExitStudying:
		s.exitStudying(ctx)
		return nil, nil

	case ReleaseSeat:
		return nil, s.releaseSeat(ctx)
	}
	return nil, fmt.Errorf("unknown effect %T", fx)
}

// resumeSeat finishes a claim for a user found to hold an active row already.
func (s *Session) resumeSeat(ctx context.Context, own domain.Participant, seat int) (Event, error) {
	if own.SeatNumber == seat {
		return SeatClaimed{Seat: seat}, nil
	}
	if _, err := s.seats.Move(ctx, seat); err != nil {
		s.claimFailed(err)
		return ClaimFailed{Err: err}, err
	}
	return SeatClaimed{Seat: seat}, nil
}

func (s *Session) claimFailed(err error) {
	if errors.Is(err, domain.ErrSeatTaken) {
		s.notifier.Notice(core.NoticeSeatTaken, "someone just took that seat")
	} else {
		s.notifier.Notice(core.NoticeWriteFailed, "could not take the seat")
	}
	s.logger.Warn().Err(err).Msg("seat claim failed")
}

func (s *Session) enterStudying(ctx context.Context) {
	s.media.Open()
	if err := s.chat.Open(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("chat subscribe failed")
	}
	var from time.Duration
	paused := false
	if own, ok := s.seats.Own(); ok {
		from = time.Duration(own.CurrentSessionMinutes) * time.Minute
		paused = own.Status == domain.StatusBreak
	}
	s.clock.SetPaused(paused)
	s.clock.Start(from)
}

// joinTransport runs only after the seat write committed and the phase is studying.
// A failed join keeps the seat; media restore is skipped.
// Back, Leave and Unmount abort a join in flight through abortJoin.
func (s *Session) joinTransport(ctx context.Context) Event {
	localID := s.presence.SetLocal(s.userID)
	joinCtx, cancel := context.WithCancel(ctx)
	s.joinMu.Lock()
	s.cancelJoin = cancel
	s.joinMu.Unlock()
	defer func() {
		s.joinMu.Lock()
		s.cancelJoin = nil
		s.joinMu.Unlock()
		cancel()
	}()

	if err := s.transport.JoinAsBroadcaster(joinCtx, string(s.roomID), localID); err != nil {
		if joinCtx.Err() != nil && ctx.Err() == nil {
			s.logger.Info().Uint32("tid", uint32(localID)).Msg("transport join aborted")
			return nil
		}
		s.notifier.Notice(core.NoticeTransport, "could not connect to the room")
		s.logger.Error().Err(err).Uint32("tid", uint32(localID)).Msg("transport join failed")
		return nil
	}
	s.joined = true
	s.presence.SetConnected(true)
	s.logger.Info().Uint32("tid", uint32(localID)).Msg("transport joined")
	return TransportJoined{}
}

func (s *Session) abortJoin() {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()
	if s.cancelJoin != nil {
		s.cancelJoin()
	}
}

// exitStudying releases media, transport, chat and clock. Media goes before the
// transport leave since unpublishing needs the live transport.
func (s *Session) exitStudying(ctx context.Context) {
	joined := s.joined
	s.joined = false

	var wg conc.WaitGroup
	wg.Go(func() {
		// The persisted camera flag survives for a rejoin, but the room must not
		// stay live on a camera nobody captures.
		if s.media.Close(ctx) {
			s.media.ReleaseRoom(ctx)
		}
		if !joined {
			return
		}
		if err := s.transport.Leave(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("transport leave failed")
		}
	})
	wg.Go(func() { _ = s.chat.Close() })
	wg.Go(s.clock.Stop)
	wg.Wait()

	s.presence.Reset()
}

func (s *Session) releaseSeat(ctx context.Context) error {
	if err := s.seats.Leave(ctx); err != nil {
		s.notifier.Notice(core.NoticeWriteFailed, "could not leave the seat")
		s.logger.Error().Err(err).Msg("leave failed")
		return err
	}
	return nil
}

func (s *Session) persistMinutes(minutes int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.seats.SetSessionMinutes(ctx, minutes); err != nil {
		s.logger.Warn().Err(err).Int("minutes", minutes).Msg("session minutes persist failed")
	}
}
