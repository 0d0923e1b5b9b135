package domain

import "errors"

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrSeatOutOfRange = errors.New("seat out of range")
)

type RoomID string

type SessionStatus string

const (
	SessionWaiting SessionStatus = "waiting"
	SessionLive    SessionStatus = "live"
	SessionEnded   SessionStatus = "ended"
)

func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionWaiting, SessionLive, SessionEnded:
		return true
	}
	return false
}

// Room is a bounded space with a numbered seat grid 1..Capacity.
type Room struct {
	ID                  RoomID        `json:"id"`
	Name                string        `json:"name"`
	Capacity            int           `json:"capacity"`
	CurrentParticipants int           `json:"current_participants"`
	SessionStatus       SessionStatus `json:"session_status"`
	InviteCode          *string       `json:"invite_code,omitempty"`
	ThumbnailURL        *string       `json:"thumbnail_url,omitempty"`
}

// CheckSeat reports whether seat is a valid position in this room's grid.
func (r *Room) CheckSeat(seat int) error {
	if seat < 1 || seat > r.Capacity {
		return ErrSeatOutOfRange
	}
	return nil
}
