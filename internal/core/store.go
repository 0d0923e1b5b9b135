package core

//go:generate mockgen -destination=mocks/store_mock.go -package=mocks github.com/dkeye/CoStudy/internal/core RoomStore

import (
	"context"
	"time"

	"github.com/dkeye/CoStudy/internal/domain"
)

// RoomStore reads and writes the Room fields the live session owns.
type RoomStore interface {
	GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	AdjustParticipants(ctx context.Context, id domain.RoomID, delta int) error
	SetSessionStatus(ctx context.Context, id domain.RoomID, status domain.SessionStatus) error
	// SetThumbnail stores url; nil clears the thumbnail.
	SetThumbnail(ctx context.Context, id domain.RoomID, url *string) error
}

// ParticipantStore persists Participant rows keyed by (room, user).
// CreateParticipant and MoveSeat must fail with domain.ErrSeatTaken when another
// active row already holds the seat; the check and the write are one atomic step.
type ParticipantStore interface {
	ActiveParticipants(ctx context.Context, room domain.RoomID) (domain.Roster, error)
	CreateParticipant(ctx context.Context, p *domain.Participant) error
	MoveSeat(ctx context.Context, participantID string, seat int) error
	SetCameraEnabled(ctx context.Context, participantID string, on bool) error
	SetMicEnabled(ctx context.Context, participantID string, on bool) error
	SetStatus(ctx context.Context, participantID string, status domain.ParticipantStatus) error
	SetSessionMinutes(ctx context.Context, participantID string, minutes int) error
	// MarkLeft sets left_at on an active row and reports whether the row changed.
	MarkLeft(ctx context.Context, participantID string, at time.Time) (bool, error)
}

// ChatStore is the append-only message log plus sender lookup.
type ChatStore interface {
	// RecentMessages returns the newest limit messages in ascending creation order.
	RecentMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.ChatMessage, error)
	InsertMessage(ctx context.Context, m *domain.ChatMessage) error
	Profile(ctx context.Context, id domain.UserID) (*domain.Profile, error)
}

// Store bundles everything a live session persists.
type Store interface {
	RoomStore
	ParticipantStore
	ChatStore
}
