// Package postgres is the relational persisted store backed by gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	uniqueViolation = "23505"
	activeSeatIndex = "idx_active_seat"
	activeUserIndex = "idx_active_user"
)

type Options struct {
	DSN string
	// AfterInsert runs after a chat message commits, e.g. to publish it on a feed.
	AfterInsert func(ctx context.Context, m domain.ChatMessage)
	LogSQL      bool
}

type Store struct {
	db          *gorm.DB
	afterInsert func(context.Context, domain.ChatMessage)
}

var _ core.Store = (*Store)(nil)

func Open(opts Options) (*Store, error) {
	level := logger.Warn
	if opts.LogSQL {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return New(db, opts.AfterInsert), nil
}

func New(db *gorm.DB, afterInsert func(context.Context, domain.ChatMessage)) *Store {
	return &Store{db: db, afterInsert: afterInsert}
}

// DB exposes the handle for migrations and health checks.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&roomRow{}, &participantRow{}, &messageRow{}, &profileRow{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("module", "store.postgres").Msg("schema migrated")
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PutRoom inserts or replaces a room; used for seeding.
func (s *Store) PutRoom(ctx context.Context, r domain.Room) error {
	status := string(r.SessionStatus)
	if status == "" {
		status = string(domain.SessionWaiting)
	}
	row := roomRow{
		ID:                  string(r.ID),
		Name:                r.Name,
		Capacity:            r.Capacity,
		CurrentParticipants: r.CurrentParticipants,
		SessionStatus:       status,
		InviteCode:          r.InviteCode,
		ThumbnailURL:        r.ThumbnailURL,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *Store) PutProfile(ctx context.Context, p domain.Profile) error {
	row := profileRow{UserID: string(p.UserID), DisplayName: p.DisplayName, AvatarURL: p.AvatarURL}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *Store) GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var row roomRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", id, err)
	}
	return row.toDomain(), nil
}

func (s *Store) AdjustParticipants(ctx context.Context, id domain.RoomID, delta int) error {
	res := s.db.WithContext(ctx).Model(&roomRow{}).
		Where("id = ?", string(id)).
		UpdateColumn("current_participants", gorm.Expr("GREATEST(current_participants + ?, 0)", delta))
	return roomResult(res, id)
}

func (s *Store) SetSessionStatus(ctx context.Context, id domain.RoomID, status domain.SessionStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid session status %q", status)
	}
	res := s.db.WithContext(ctx).Model(&roomRow{}).
		Where("id = ?", string(id)).
		Update("session_status", string(status))
	return roomResult(res, id)
}

func (s *Store) SetThumbnail(ctx context.Context, id domain.RoomID, url *string) error {
	res := s.db.WithContext(ctx).Model(&roomRow{}).
		Where("id = ?", string(id)).
		Update("thumbnail_url", url)
	return roomResult(res, id)
}

func roomResult(res *gorm.DB, id domain.RoomID) error {
	if res.Error != nil {
		return fmt.Errorf("update room %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (s *Store) ActiveParticipants(ctx context.Context, room domain.RoomID) (domain.Roster, error) {
	var rows []participantRow
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND left_at IS NULL", string(room)).
		Order("seat_number").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("active participants: %w", err)
	}
	out := make(domain.Roster, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// CreateParticipant relies on the partial unique indexes for the atomic seat check.
func (s *Store) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	row := participantFromDomain(p)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) MoveSeat(ctx context.Context, participantID string, seat int) error {
	res := s.db.WithContext(ctx).Model(&participantRow{}).
		Where("id = ? AND left_at IS NULL", participantID).
		Update("seat_number", seat)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotSeated
	}
	return nil
}

func (s *Store) updateActive(ctx context.Context, id, column string, value any) error {
	res := s.db.WithContext(ctx).Model(&participantRow{}).
		Where("id = ? AND left_at IS NULL", id).
		Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotSeated
	}
	return nil
}

func (s *Store) SetCameraEnabled(ctx context.Context, id string, on bool) error {
	return s.updateActive(ctx, id, "camera_enabled", on)
}

func (s *Store) SetMicEnabled(ctx context.Context, id string, on bool) error {
	return s.updateActive(ctx, id, "mic_enabled", on)
}

func (s *Store) SetStatus(ctx context.Context, id string, status domain.ParticipantStatus) error {
	return s.updateActive(ctx, id, "status", string(status))
}

func (s *Store) SetSessionMinutes(ctx context.Context, id string, minutes int) error {
	return s.updateActive(ctx, id, "current_session_minutes", minutes)
}

func (s *Store) MarkLeft(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&participantRow{}).
		Where("id = ? AND left_at IS NULL", id).
		Updates(map[string]any{"left_at": at, "status": string(domain.StatusOffline)})
	if res.Error != nil {
		return false, fmt.Errorf("mark left: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&participantRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("mark left: %w", err)
	}
	if n == 0 {
		return false, fmt.Errorf("participant %s: %w", id, domain.ErrNotSeated)
	}
	return false, nil
}

func (s *Store) RecentMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.ChatMessage, error) {
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("room_id = ?", string(room)).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	slices.Reverse(rows)
	out := make([]domain.ChatMessage, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) InsertMessage(ctx context.Context, m *domain.ChatMessage) error {
	row := messageRow{
		ID:        uuid.NewString(),
		RoomID:    string(m.RoomID),
		SenderID:  string(m.SenderID),
		Text:      m.Text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	m.ID, m.CreatedAt = row.ID, row.CreatedAt
	if s.afterInsert != nil {
		s.afterInsert(ctx, row.toDomain())
	}
	return nil
}

func (s *Store) Profile(ctx context.Context, id domain.UserID) (*domain.Profile, error) {
	var row profileRow
	err := s.db.WithContext(ctx).First(&row, "user_id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		anon := domain.AnonymousProfile(id)
		return &anon, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", id, err)
	}
	return &domain.Profile{UserID: id, DisplayName: row.DisplayName, AvatarURL: row.AvatarURL}, nil
}

// translate maps unique violations of the active-row indexes onto domain errors.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case activeUserIndex:
			return domain.ErrAlreadySeated
		case activeSeatIndex:
			return domain.ErrSeatTaken
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrSeatTaken
	}
	return fmt.Errorf("participant write: %w", err)
}
