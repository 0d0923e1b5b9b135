// Package seat loads the room roster and claims, switches and releases seats.
package seat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Registry is one user's view of a room's seat grid.
// The roster is replaced wholesale on each load so readers always see a consistent snapshot.
type Registry struct {
	rooms        core.RoomStore
	participants core.ParticipantStore
	roomID       domain.RoomID
	userID       domain.UserID
	now          func() time.Time

	roster atomic.Pointer[domain.Roster]

	mu   sync.Mutex
	room *domain.Room
	own  *domain.Participant

	logger zerolog.Logger
}

func NewRegistry(rooms core.RoomStore, participants core.ParticipantStore, room domain.RoomID, user domain.UserID) *Registry {
	r := &Registry{
		rooms:        rooms,
		participants: participants,
		roomID:       room,
		userID:       user,
		now:          time.Now,
		logger: log.With().
			Str("module", "app.seat").
			Str("room", string(room)).
			Str("user", string(user)).
			Logger(),
	}
	empty := domain.Roster{}
	r.roster.Store(&empty)
	return r
}

// LoadRoom fetches the room record. A missing room is the only fatal read error.
func (r *Registry) LoadRoom(ctx context.Context) (*domain.Room, error) {
	room, err := r.rooms.GetRoom(ctx, r.roomID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.room = room
	r.mu.Unlock()
	return room, nil
}

func (r *Registry) Room() *domain.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.room == nil {
		return nil
	}
	cp := *r.room
	return &cp
}

// LoadRoster refreshes the active participants. Read errors are non-fatal:
// the previous snapshot is dropped and the room is treated as empty.
func (r *Registry) LoadRoster(ctx context.Context) domain.Roster {
	roster, err := r.participants.ActiveParticipants(ctx, r.roomID)
	if err != nil {
		r.logger.Warn().Err(err).Msg("roster load failed, treating room as empty")
		roster = domain.Roster{}
	}
	r.roster.Store(&roster)

	r.mu.Lock()
	if own, ok := roster.ByUser(r.userID); ok {
		r.own = &own
	} else if err == nil {
		r.own = nil
	}
	r.mu.Unlock()
	return roster
}

// Refresh reloads the roster snapshot after a remote change. Unlike LoadRoster it
// keeps the previous snapshot on a read error and leaves the caller's own row alone,
// since that row only changes through this registry.
func (r *Registry) Refresh(ctx context.Context) (domain.Roster, error) {
	roster, err := r.participants.ActiveParticipants(ctx, r.roomID)
	if err != nil {
		return r.Roster(), fmt.Errorf("refresh roster: %w", err)
	}
	r.roster.Store(&roster)
	return roster, nil
}

// Roster returns the last loaded snapshot.
func (r *Registry) Roster() domain.Roster { return *r.roster.Load() }

// Own returns the caller's active row, if any.
func (r *Registry) Own() (domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.own == nil {
		return domain.Participant{}, false
	}
	return *r.own, true
}

// Occupied reports whether another user sits at seat in the last loaded roster.
func (r *Registry) Occupied(seat int) bool {
	p, ok := r.Roster().Occupant(seat)
	return ok && p.UserID != r.userID
}

// OthersWithCamera reports whether another active participant has its camera flag persisted on.
// It reads the store so it sees toggles made since the last roster load.
func (r *Registry) OthersWithCamera(ctx context.Context) bool {
	roster, err := r.participants.ActiveParticipants(ctx, r.roomID)
	if err != nil {
		r.logger.Warn().Err(err).Msg("camera check failed, using last roster")
		roster = r.Roster()
	}
	return roster.AnyCameraExcept(r.userID)
}

func (r *Registry) checkSeat(seat int) error {
	if room := r.Room(); room != nil {
		if err := room.CheckSeat(seat); err != nil {
			return err
		}
	}
	if r.Occupied(seat) {
		return domain.ErrSeatTaken
	}
	return nil
}

// Claim creates the caller's Participant row at seat and bumps the room count.
// The store performs the authoritative atomic check; a lost race comes back as ErrSeatTaken.
func (r *Registry) Claim(ctx context.Context, seat, goalMinutes int) (domain.Participant, error) {
	if _, ok := r.Own(); ok {
		return domain.Participant{}, domain.ErrAlreadySeated
	}
	if err := domain.ValidateGoal(goalMinutes); err != nil {
		return domain.Participant{}, err
	}
	if err := r.checkSeat(seat); err != nil {
		return domain.Participant{}, err
	}

	p := domain.Participant{
		RoomID:      r.roomID,
		UserID:      r.userID,
		SeatNumber:  seat,
		Status:      domain.StatusStudying,
		GoalMinutes: goalMinutes,
		JoinedAt:    r.now(),
	}
	if err := r.participants.CreateParticipant(ctx, &p); err != nil {
		if errors.Is(err, domain.ErrSeatTaken) || errors.Is(err, domain.ErrAlreadySeated) {
			r.LoadRoster(ctx)
		}
		return domain.Participant{}, fmt.Errorf("claim seat %d: %w", seat, err)
	}
	if err := r.rooms.AdjustParticipants(ctx, r.roomID, 1); err != nil {
		r.logger.Error().Err(err).Msg("participant count increment failed")
	}

	r.mu.Lock()
	r.own = &p
	r.mu.Unlock()
	r.replaceInRoster(p)
	r.logger.Info().Int("seat", seat).Int("goal", goalMinutes).Msg("seat claimed")
	return p, nil
}

// Move switches the caller's existing row to seat. Reselecting the own seat is a no-op.
func (r *Registry) Move(ctx context.Context, seat int) (domain.Participant, error) {
	own, ok := r.Own()
	if !ok {
		return domain.Participant{}, domain.ErrNotSeated
	}
	if own.SeatNumber == seat {
		return own, nil
	}
	if err := r.checkSeat(seat); err != nil {
		return domain.Participant{}, err
	}
	if err := r.participants.MoveSeat(ctx, own.ID, seat); err != nil {
		if errors.Is(err, domain.ErrSeatTaken) {
			r.LoadRoster(ctx)
		}
		return domain.Participant{}, fmt.Errorf("move to seat %d: %w", seat, err)
	}
	own.SeatNumber = seat
	r.mu.Lock()
	r.own = &own
	r.mu.Unlock()
	r.replaceInRoster(own)
	r.logger.Info().Int("seat", seat).Msg("seat switched")
	return own, nil
}

// Leave marks the caller's row left and decrements the room count.
// Calling it again, or without a row, is a no-op.
func (r *Registry) Leave(ctx context.Context) error {
	r.mu.Lock()
	own := r.own
	r.own = nil
	r.mu.Unlock()
	if own == nil {
		return nil
	}

	changed, err := r.participants.MarkLeft(ctx, own.ID, r.now())
	if err != nil {
		return fmt.Errorf("leave: %w", err)
	}
	if changed {
		if err := r.rooms.AdjustParticipants(ctx, r.roomID, -1); err != nil {
			r.logger.Error().Err(err).Msg("participant count decrement failed")
		}
	}
	r.removeFromRoster(own.ID)
	r.logger.Info().Bool("changed", changed).Msg("left room")
	return nil
}

func (r *Registry) withOwn(fn func(id string) error) error {
	own, ok := r.Own()
	if !ok {
		return domain.ErrNotSeated
	}
	return fn(own.ID)
}

func (r *Registry) updateOwn(fn func(*domain.Participant)) {
	r.mu.Lock()
	if r.own != nil {
		fn(r.own)
	}
	r.mu.Unlock()
}

// SetCameraEnabled persists the camera flag on the caller's row.
func (r *Registry) SetCameraEnabled(ctx context.Context, on bool) error {
	r.updateOwn(func(p *domain.Participant) { p.CameraEnabled = on })
	return r.withOwn(func(id string) error { return r.participants.SetCameraEnabled(ctx, id, on) })
}

// SetMicEnabled persists the microphone flag on the caller's row.
func (r *Registry) SetMicEnabled(ctx context.Context, on bool) error {
	r.updateOwn(func(p *domain.Participant) { p.MicEnabled = on })
	return r.withOwn(func(id string) error { return r.participants.SetMicEnabled(ctx, id, on) })
}

func (r *Registry) SetStatus(ctx context.Context, status domain.ParticipantStatus) error {
	r.updateOwn(func(p *domain.Participant) { p.Status = status })
	return r.withOwn(func(id string) error { return r.participants.SetStatus(ctx, id, status) })
}

func (r *Registry) SetSessionMinutes(ctx context.Context, minutes int) error {
	r.updateOwn(func(p *domain.Participant) { p.CurrentSessionMinutes = minutes })
	return r.withOwn(func(id string) error { return r.participants.SetSessionMinutes(ctx, id, minutes) })
}

func (r *Registry) replaceInRoster(p domain.Participant) {
	cur := r.Roster()
	next := make(domain.Roster, 0, len(cur)+1)
	for _, q := range cur {
		if q.ID != p.ID {
			next = append(next, q)
		}
	}
	next = append(next, p)
	r.roster.Store(&next)
}

func (r *Registry) removeFromRoster(id string) {
	cur := r.Roster()
	next := make(domain.Roster, 0, len(cur))
	for _, q := range cur {
		if q.ID != id {
			next = append(next, q)
		}
	}
	r.roster.Store(&next)
}
