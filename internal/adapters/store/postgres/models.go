package postgres

import (
	"time"

	"github.com/dkeye/CoStudy/internal/domain"
)

type roomRow struct {
	ID                  string `gorm:"primaryKey;type:varchar(64)"`
	Name                string `gorm:"not null"`
	Capacity            int    `gorm:"not null;check:capacity > 0"`
	CurrentParticipants int    `gorm:"not null;default:0"`
	SessionStatus       string `gorm:"type:varchar(16);not null;default:waiting"`
	InviteCode          *string
	ThumbnailURL        *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (roomRow) TableName() string { return "rooms" }

// participantRow carries two partial unique indexes: one seat per active row
// and one active row per user in a room.
type participantRow struct {
	ID                    string     `gorm:"primaryKey;type:uuid"`
	RoomID                string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_active_seat,where:left_at IS NULL;uniqueIndex:idx_active_user,where:left_at IS NULL"`
	UserID                string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_active_user,where:left_at IS NULL"`
	SeatNumber            int        `gorm:"not null;uniqueIndex:idx_active_seat,where:left_at IS NULL"`
	Status                string     `gorm:"type:varchar(16);not null"`
	CameraEnabled         bool       `gorm:"not null;default:false"`
	MicEnabled            bool       `gorm:"not null;default:false"`
	GoalMinutes           int        `gorm:"not null"`
	CurrentSessionMinutes int        `gorm:"not null;default:0"`
	JoinedAt              time.Time  `gorm:"not null"`
	LeftAt                *time.Time `gorm:"index"`
}

func (participantRow) TableName() string { return "participants" }

type messageRow struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	RoomID    string    `gorm:"type:varchar(64);not null;index:idx_room_created,priority:1"`
	SenderID  string    `gorm:"type:varchar(36);not null"`
	Text      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_room_created,priority:2"`
}

func (messageRow) TableName() string { return "chat_messages" }

type profileRow struct {
	UserID      string `gorm:"primaryKey;type:varchar(36)"`
	DisplayName string `gorm:"not null"`
	AvatarURL   string
}

func (profileRow) TableName() string { return "profiles" }

func (r roomRow) toDomain() *domain.Room {
	return &domain.Room{
		ID:                  domain.RoomID(r.ID),
		Name:                r.Name,
		Capacity:            r.Capacity,
		CurrentParticipants: r.CurrentParticipants,
		SessionStatus:       domain.SessionStatus(r.SessionStatus),
		InviteCode:          r.InviteCode,
		ThumbnailURL:        r.ThumbnailURL,
	}
}

func (p participantRow) toDomain() domain.Participant {
	return domain.Participant{
		ID:                    p.ID,
		RoomID:                domain.RoomID(p.RoomID),
		UserID:                domain.UserID(p.UserID),
		SeatNumber:            p.SeatNumber,
		Status:                domain.ParticipantStatus(p.Status),
		CameraEnabled:         p.CameraEnabled,
		MicEnabled:            p.MicEnabled,
		GoalMinutes:           p.GoalMinutes,
		CurrentSessionMinutes: p.CurrentSessionMinutes,
		JoinedAt:              p.JoinedAt,
		LeftAt:                p.LeftAt,
	}
}

func participantFromDomain(p *domain.Participant) participantRow {
	return participantRow{
		ID:                    p.ID,
		RoomID:                string(p.RoomID),
		UserID:                string(p.UserID),
		SeatNumber:            p.SeatNumber,
		Status:                string(p.Status),
		CameraEnabled:         p.CameraEnabled,
		MicEnabled:            p.MicEnabled,
		GoalMinutes:           p.GoalMinutes,
		CurrentSessionMinutes: p.CurrentSessionMinutes,
		JoinedAt:              p.JoinedAt,
		LeftAt:                p.LeftAt,
	}
}

func (m messageRow) toDomain() domain.ChatMessage {
	return domain.ChatMessage{
		ID:        m.ID,
		RoomID:    domain.RoomID(m.RoomID),
		SenderID:  domain.UserID(m.SenderID),
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}
