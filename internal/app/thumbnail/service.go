// Package thumbnail periodically grabs the local camera surface and publishes it
// as the room's thumbnail while the camera is on.
package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/dkeye/CoStudy/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

const (
	DefaultWarmup        = 3 * time.Second
	DefaultPeriod        = 30 * time.Second
	DefaultUploadTimeout = 15 * time.Second
	jpegQuality          = 70
	contentType          = "image/jpeg"
)

type Config struct {
	Warmup        time.Duration
	Period        time.Duration
	UploadTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Warmup <= 0 {
		c.Warmup = DefaultWarmup
	}
	if c.Period <= 0 {
		c.Period = DefaultPeriod
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = DefaultUploadTimeout
	}
	return c
}

// Service is idle until Start and capturing until Stop.
type Service struct {
	blobs  core.BlobStorage
	rooms  core.RoomStore
	roomID domain.RoomID
	cfg    Config
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// gen changes on every Start and Stop; an upload only writes the room URL
	// if the generation it was captured under is still current. publishMu
	// makes the check and the write one step with respect to Stop.
	publishMu sync.Mutex
	gen       atomic.Uint64
	captures  atomic.Int64
	inflight  conc.WaitGroup

	logger zerolog.Logger
}

func NewService(blobs core.BlobStorage, rooms core.RoomStore, room domain.RoomID, cfg Config) *Service {
	return &Service{
		blobs:  blobs,
		rooms:  rooms,
		roomID: room,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		logger: log.With().Str("module", "app.thumbnail").Str("room", string(room)).Logger(),
	}
}

// Running reports whether the capture loop is scheduled.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Captures counts frames grabbed since creation.
func (s *Service) Captures() int64 { return s.captures.Load() }

// Start schedules the first capture after the warm-up delay. Starting a running service is a no-op.
func (s *Service) Start(src core.Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	gen := s.gen.Add(1)
	go s.loop(ctx, src, gen, done)
	s.logger.Debug().Msg("capture started")
}

// Stop cancels the schedule and waits for the loop to exit. Uploads already
// in flight are not awaited.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	s.publishMu.Lock()
	s.gen.Add(1)
	s.publishMu.Unlock()
	cancel()
	<-done
	s.logger.Debug().Msg("capture stopped")
}

func (s *Service) loop(ctx context.Context, src core.Surface, gen uint64, done chan<- struct{}) {
	defer close(done)
	t := time.NewTimer(s.cfg.Warmup)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if r := panics.Try(func() { s.capture(src, gen) }); r != nil {
				s.logger.Error().Err(r.AsError()).Msg("capture panicked")
			}
			t.Reset(s.cfg.Period)
		}
	}
}

func (s *Service) capture(src core.Surface, gen uint64) {
	frame, ok := src.CurrentFrame()
	if !ok || frame == nil {
		return
	}
	s.captures.Add(1)
	data, err := Encode(frame)
	if err != nil {
		s.logger.Warn().Err(err).Msg("encode failed")
		return
	}
	s.inflight.Go(func() { s.upload(data, gen) })
}

// Drain blocks until uploads already in flight have finished.
func (s *Service) Drain() { s.inflight.Wait() }

func (s *Service) upload(data []byte, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.UploadTimeout)
	defer cancel()

	url, err := s.blobs.Upload(ctx, Path(s.roomID, s.now()), data, contentType)
	if err != nil {
		s.logger.Warn().Err(err).Msg("upload failed")
		return
	}
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	if s.gen.Load() != gen {
		s.logger.Debug().Msg("upload finished after stop, url dropped")
		return
	}
	if err := s.rooms.SetThumbnail(ctx, s.roomID, &url); err != nil {
		s.logger.Warn().Err(err).Msg("thumbnail url write failed")
	}
}

// Path is the room-scoped object key for a capture taken at t.
func Path(room domain.RoomID, t time.Time) string {
	return fmt.Sprintf("rooms/%s/%d.jpg", room, t.UnixMilli())
}

func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
