package domain

import (
	"errors"
	"time"
)

var (
	ErrSeatTaken     = errors.New("seat already taken")
	ErrNotSeated     = errors.New("no active participant")
	ErrAlreadySeated = errors.New("already seated in room")
	ErrInvalidGoal   = errors.New("invalid goal duration")
)

const (
	MinGoalMinutes = 1
	MaxGoalMinutes = 12 * 60
)

type ParticipantStatus string

const (
	StatusStudying ParticipantStatus = "studying"
	StatusBreak    ParticipantStatus = "break"
	StatusAway     ParticipantStatus = "away"
	StatusOffline  ParticipantStatus = "offline"
)

func (s ParticipantStatus) IsValid() bool {
	switch s {
	case StatusStudying, StatusBreak, StatusAway, StatusOffline:
		return true
	}
	return false
}

// Participant is one user's stay in a room. The active row is the one with a nil LeftAt.
// No transport or lifecycle logic here.
type Participant struct {
	ID                    string            `json:"id"`
	RoomID                RoomID            `json:"room_id"`
	UserID                UserID            `json:"user_id"`
	SeatNumber            int               `json:"seat_number"`
	Status                ParticipantStatus `json:"status"`
	CameraEnabled         bool              `json:"camera_enabled"`
	MicEnabled            bool              `json:"mic_enabled"`
	GoalMinutes           int               `json:"goal_minutes"`
	CurrentSessionMinutes int               `json:"current_session_minutes"`
	JoinedAt              time.Time         `json:"joined_at"`
	LeftAt                *time.Time        `json:"left_at,omitempty"`
}

func (p *Participant) Active() bool { return p.LeftAt == nil }

func ValidateGoal(minutes int) error {
	if minutes < MinGoalMinutes || minutes > MaxGoalMinutes {
		return ErrInvalidGoal
	}
	return nil
}

// Roster is the set of active participants of one room as last loaded.
type Roster []Participant

// Occupant returns the active participant sitting at seat, if any.
func (r Roster) Occupant(seat int) (Participant, bool) {
	for _, p := range r {
		if p.SeatNumber == seat && p.Active() {
			return p, true
		}
	}
	return Participant{}, false
}

func (r Roster) ByUser(id UserID) (Participant, bool) {
	for _, p := range r {
		if p.UserID == id && p.Active() {
			return p, true
		}
	}
	return Participant{}, false
}

// AnyCameraExcept reports whether an active participant other than id has its camera flag set.
func (r Roster) AnyCameraExcept(id UserID) bool {
	for _, p := range r {
		if p.UserID != id && p.Active() && p.CameraEnabled {
			return true
		}
	}
	return false
}
