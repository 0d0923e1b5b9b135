// Command participant runs one headless co-study session: it takes a seat,
// publishes synthetic camera and microphone media through the gateway and
// stays until interrupted.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/CoStudy/internal/adapters/backend"
	"github.com/dkeye/CoStudy/internal/adapters/device"
	"github.com/dkeye/CoStudy/internal/adapters/rtcclient"
	"github.com/dkeye/CoStudy/internal/app/session"
	"github.com/dkeye/CoStudy/internal/app/thumbnail"
	"github.com/dkeye/CoStudy/internal/config"
	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
)

const seatAttempts = 3

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config.InitLogger(os.Stderr)
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.ApplyLogLevel(cfg.LogLevel)

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("participant stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	pc := cfg.Participant
	if pc.Room == "" {
		return errors.New("participant.room is required")
	}
	roomID := domain.RoomID(pc.Room)
	userID := domain.UserID(pc.User)
	if userID == "" {
		userID = domain.UserID(uuid.NewString())
	}
	logger := log.With().Str("module", "cmd.participant").Str("room", pc.Room).Str("user", string(userID)).Logger()

	be, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	var seed *domain.Room
	if cfg.Store.Driver == "memory" {
		seed = &domain.Room{ID: roomID, Name: pc.Room, Capacity: 12, SessionStatus: domain.SessionWaiting}
	}
	var profile *domain.Profile
	if pc.Name != "" {
		profile = &domain.Profile{UserID: userID, DisplayName: pc.Name}
	}
	if err := be.Seed(ctx, seed, profile); err != nil {
		return err
	}

	notifier := core.NotifierFunc(func(kind core.NoticeKind, msg string) {
		logger.Warn().Str("notice", string(kind)).Msg(msg)
	})
	s := session.New(session.Deps{
		Store: be.Store,
		Feed:  be.Feed,
		Blobs: be.Blobs,
		Transport: rtcclient.New(rtcclient.Options{
			URL:        cfg.Signal.URL,
			ICEServers: cfg.Signal.ICEServers,
		}),
		Devices:  device.New(device.Options{FirstFrameAfter: 500 * time.Millisecond}),
		Notifier: notifier,
	}, roomID, userID, session.Config{
		HistoryLimit:     cfg.Session.HistoryLimit,
		TransportIDRange: cfg.Session.TransportIDRange,
		LevelInterval:    cfg.Session.LevelInterval,
		ClockTick:        cfg.Session.ClockTick,
		Thumbnail: thumbnail.Config{
			Warmup:        cfg.Session.ThumbnailWarmup,
			Period:        cfg.Session.ThumbnailPeriod,
			UploadTimeout: cfg.Session.ThumbnailUploadTimeout,
		},
	})

	if err := s.Mount(ctx); err != nil {
		return err
	}
	if err := takeSeat(ctx, s, pc.Seat, pc.GoalMinutes); err != nil {
		s.Unmount(context.Background())
		return err
	}
	st := s.State()
	logger.Info().Int("seat", st.OwnSeat).Stringer("phase", st.Phase).Msg("studying")

	var chatMu sync.Mutex
	seen := 0
	s.Chat().OnChange(func() {
		chatMu.Lock()
		defer chatMu.Unlock()
		msgs := s.Chat().Messages()
		for _, m := range msgs[min(seen, len(msgs)):] {
			logger.Info().Str("from", string(m.SenderID)).Str("text", m.Text).Msg("chat")
		}
		seen = len(msgs)
	})

	if pc.Camera && !s.Media().CameraOn() {
		if err := s.ToggleCamera(ctx); err != nil {
			logger.Warn().Err(err).Msg("camera")
		}
	}
	if pc.Mic && !s.Media().MicOn() {
		if err := s.ToggleMic(ctx); err != nil {
			logger.Warn().Err(err).Msg("microphone")
		}
	}

	<-ctx.Done()
	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer leaveCancel()
	if err := s.Leave(leaveCtx); err != nil {
		return err
	}
	logger.Info().Msg("left room")
	return nil
}

// takeSeat keeps an active seat, otherwise claims preferred or the first free
// seat, retrying when another participant wins the seat first.
func takeSeat(ctx context.Context, s *session.Session, preferred, goal int) error {
	for range seatAttempts {
		st := s.State()
		seat, ok := chooseSeat(s.Seats().Room(), s.Seats().Roster(), st.OwnSeat, preferred)
		if !ok {
			return domain.ErrSeatTaken
		}
		if err := s.PickSeat(ctx, seat); err != nil {
			if errors.Is(err, domain.ErrSeatTaken) {
				preferred = 0
				continue
			}
			return err
		}
		if s.Phase() == session.PhaseGoalSelection {
			if err := s.ConfirmGoal(ctx, goal); err != nil {
				if errors.Is(err, domain.ErrSeatTaken) {
					preferred = 0
					continue
				}
				return err
			}
		}
		if s.Phase() == session.PhaseStudying {
			return nil
		}
		preferred = 0
	}
	return domain.ErrSeatTaken
}

// chooseSeat prefers the user's own seat, then preferred when free, then the
// lowest free seat.
func chooseSeat(room *domain.Room, roster domain.Roster, own, preferred int) (int, bool) {
	if own > 0 {
		return own, true
	}
	if room == nil {
		return 0, false
	}
	free := func(seat int) bool {
		if room.CheckSeat(seat) != nil {
			return false
		}
		_, taken := roster.Occupant(seat)
		return !taken
	}
	if preferred > 0 && free(preferred) {
		return preferred, true
	}
	for seat := 1; seat <= room.Capacity; seat++ {
		if free(seat) {
			return seat, true
		}
	}
	return 0, false
}
