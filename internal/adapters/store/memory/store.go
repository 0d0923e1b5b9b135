// Package memory is an in-process persisted store and chat change-feed.
// It backs local development and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// UnguardedSeats disables the atomic seat check, reproducing a plain check-then-act store.
	UnguardedSeats bool
	Now            func() time.Time
	// AfterInsert runs after a chat message is stored, e.g. to publish it on an external feed.
	AfterInsert func(ctx context.Context, m domain.ChatMessage)
}

type Store struct {
	opts Options

	mu           sync.Mutex
	rooms        map[domain.RoomID]*domain.Room
	participants map[string]*domain.Participant
	messages     map[domain.RoomID][]domain.ChatMessage
	profiles     map[domain.UserID]domain.Profile
	lastCreated  time.Time
	faults       map[string]error

	feed *Feed
}

var (
	_ core.Store    = (*Store)(nil)
	_ core.ChatFeed = (*Store)(nil)
)

func New(opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		opts:         opts,
		rooms:        make(map[domain.RoomID]*domain.Room),
		participants: make(map[string]*domain.Participant),
		messages:     make(map[domain.RoomID][]domain.ChatMessage),
		profiles:     make(map[domain.UserID]domain.Profile),
		faults:       make(map[string]error),
		feed:         NewFeed(),
	}
}

// PutRoom seeds or replaces a room.
func (s *Store) PutRoom(r domain.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.SessionStatus == "" {
		r.SessionStatus = domain.SessionWaiting
	}
	s.rooms[r.ID] = &r
}

func (s *Store) PutProfile(p domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

// Fail makes the next call of op return err.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// Room returns a copy of the stored room.
func (s *Store) Room(id domain.RoomID) (domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, false
	}
	return *r, true
}

// Participant returns a copy of the stored row.
func (s *Store) Participant(id string) (domain.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

func (s *Store) fault(op string) error {
	err, ok := s.faults[op]
	if !ok {
		return nil
	}
	delete(s.faults, op)
	return err
}

func (s *Store) GetRoom(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetRoom"); err != nil {
		return nil, err
	}
	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) AdjustParticipants(_ context.Context, id domain.RoomID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("AdjustParticipants"); err != nil {
		return err
	}
	r, ok := s.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	r.CurrentParticipants = max(r.CurrentParticipants+delta, 0)
	return nil
}

func (s *Store) SetSessionStatus(_ context.Context, id domain.RoomID, status domain.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("SetSessionStatus"); err != nil {
		return err
	}
	r, ok := s.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	r.SessionStatus = status
	return nil
}

func (s *Store) SetThumbnail(_ context.Context, id domain.RoomID, url *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("SetThumbnail"); err != nil {
		return err
	}
	r, ok := s.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if url == nil {
		r.ThumbnailURL = nil
		return nil
	}
	u := *url
	r.ThumbnailURL = &u
	return nil
}

func (s *Store) ActiveParticipants(_ context.Context, room domain.RoomID) (domain.Roster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ActiveParticipants"); err != nil {
		return nil, err
	}
	out := domain.Roster{}
	for _, p := range s.participants {
		if p.RoomID == room && p.Active() {
			out = append(out, *p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Participant) int { return cmp.Compare(a.SeatNumber, b.SeatNumber) })
	return out, nil
}

// seatHeldLocked reports whether another active row holds seat. Caller holds mu.
func (s *Store) seatHeldLocked(room domain.RoomID, seat int, except string) bool {
	for id, p := range s.participants {
		if id != except && p.RoomID == room && p.SeatNumber == seat && p.Active() {
			return true
		}
	}
	return false
}

func (s *Store) CreateParticipant(_ context.Context, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateParticipant"); err != nil {
		return err
	}
	if !s.opts.UnguardedSeats {
		if s.seatHeldLocked(p.RoomID, p.SeatNumber, "") {
			return domain.ErrSeatTaken
		}
		for _, other := range s.participants {
			if other.RoomID == p.RoomID && other.UserID == p.UserID && other.Active() {
				return domain.ErrAlreadySeated
			}
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = s.opts.Now()
	}
	cp := *p
	s.participants[p.ID] = &cp
	log.Debug().Str("module", "store.memory").Str("room", string(p.RoomID)).Int("seat", p.SeatNumber).Msg("participant created")
	return nil
}

func (s *Store) MoveSeat(_ context.Context, participantID string, seat int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("MoveSeat"); err != nil {
		return err
	}
	p, err := s.activeLocked(participantID)
	if err != nil {
		return err
	}
	if !s.opts.UnguardedSeats && s.seatHeldLocked(p.RoomID, seat, participantID) {
		return domain.ErrSeatTaken
	}
	p.SeatNumber = seat
	return nil
}

func (s *Store) activeLocked(id string) (*domain.Participant, error) {
	p, ok := s.participants[id]
	if !ok || !p.Active() {
		return nil, domain.ErrNotSeated
	}
	return p, nil
}

func (s *Store) mutate(op, id string, fn func(*domain.Participant)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(op); err != nil {
		return err
	}
	p, err := s.activeLocked(id)
	if err != nil {
		return err
	}
	fn(p)
	return nil
}

func (s *Store) SetCameraEnabled(_ context.Context, id string, on bool) error {
	return s.mutate("SetCameraEnabled", id, func(p *domain.Participant) { p.CameraEnabled = on })
}

func (s *Store) SetMicEnabled(_ context.Context, id string, on bool) error {
	return s.mutate("SetMicEnabled", id, func(p *domain.Participant) { p.MicEnabled = on })
}

func (s *Store) SetStatus(_ context.Context, id string, status domain.ParticipantStatus) error {
	return s.mutate("SetStatus", id, func(p *domain.Participant) { p.Status = status })
}

func (s *Store) SetSessionMinutes(_ context.Context, id string, minutes int) error {
	return s.mutate("SetSessionMinutes", id, func(p *domain.Participant) { p.CurrentSessionMinutes = minutes })
}

func (s *Store) MarkLeft(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("MarkLeft"); err != nil {
		return false, err
	}
	p, ok := s.participants[id]
	if !ok {
		return false, fmt.Errorf("participant %s: %w", id, domain.ErrNotSeated)
	}
	if !p.Active() {
		return false, nil
	}
	p.LeftAt = &at
	p.Status = domain.StatusOffline
	return true, nil
}

func (s *Store) RecentMessages(_ context.Context, room domain.RoomID, limit int) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("RecentMessages"); err != nil {
		return nil, err
	}
	all := s.messages[room]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return slices.Clone(all), nil
}

func (s *Store) InsertMessage(ctx context.Context, m *domain.ChatMessage) error {
	s.mu.Lock()
	if err := s.fault("InsertMessage"); err != nil {
		s.mu.Unlock()
		return err
	}
	m.ID = uuid.NewString()
	now := s.opts.Now()
	if !now.After(s.lastCreated) {
		now = s.lastCreated.Add(time.Nanosecond)
	}
	s.lastCreated = now
	m.CreatedAt = now
	cp := *m
	cp.Sender = nil
	s.messages[m.RoomID] = append(s.messages[m.RoomID], cp)
	s.mu.Unlock()

	s.feed.Publish(cp)
	if s.opts.AfterInsert != nil {
		s.opts.AfterInsert(ctx, cp)
	}
	return nil
}

func (s *Store) Profile(_ context.Context, id domain.UserID) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("Profile"); err != nil {
		return nil, err
	}
	p, ok := s.profiles[id]
	if !ok {
		anon := domain.AnonymousProfile(id)
		return &anon, nil
	}
	return &p, nil
}

// Subscribe exposes the store's own insert events as a chat change-feed.
func (s *Store) Subscribe(ctx context.Context, room domain.RoomID, handler func(domain.ChatMessage)) (core.Subscription, error) {
	return s.feed.Subscribe(ctx, room, handler)
}

// Feed returns the broker that fans out inserts.
func (s *Store) Feed() *Feed { return s.feed }
