// Package rtcclient is the participant side of the gateway's signaling + SFU transport.
package rtcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/CoStudy/internal/adapters/signal/wire"
	"github.com/dkeye/CoStudy/internal/core"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var (
	ErrNotInitialized = errors.New("transport not initialized")
	ErrNotJoined      = errors.New("transport not joined")
	ErrAlreadyJoined  = errors.New("transport already joined")
)

type Options struct {
	URL        string
	Header     http.Header
	ICEServers []string
	// FrameInterval paces placeholder video samples while the camera is published.
	FrameInterval time.Duration
	JoinTimeout   time.Duration
	Dialer        *websocket.Dialer
}

type remote struct {
	video bool
	audio bool
	track core.VideoTrack
}

// Client implements core.Transport against the gateway's /api/ws/signal endpoint.
type Client struct {
	opts Options

	mu      sync.Mutex
	events  core.TransportEvents
	session *session
}

var _ core.Transport = (*Client)(nil)

func New(opts Options) *Client {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 100 * time.Millisecond
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = 10 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{opts: opts}
}

func (c *Client) Initialize(events core.TransportEvents) error {
	if events == nil {
		return errors.New("transport: nil events")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = events
	return nil
}

func (c *Client) current() (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, ErrNotJoined
	}
	return c.session, nil
}

// JoinAsBroadcaster dials the gateway, joins channel as localID and starts publishing
// (muted) camera and microphone tracks.
func (c *Client) JoinAsBroadcaster(ctx context.Context, channel string, localID core.TransportID) error {
	c.mu.Lock()
	if c.events == nil {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	if c.session != nil {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	events := c.events
	c.mu.Unlock()

	s, err := dialSession(ctx, c.opts, events, localID)
	if err != nil {
		return err
	}
	if err := s.join(ctx, channel); err != nil {
		s.close()
		return err
	}

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		s.close()
		return ErrAlreadyJoined
	}
	c.session = s
	c.mu.Unlock()
	log.Info().Str("module", "rtcclient").Str("channel", channel).Uint32("tid", uint32(localID)).Msg("joined")
	return nil
}

func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	s.sendJSON(wire.Simple{Type: wire.TypeLeave})
	s.close()
	log.Info().Str("module", "rtcclient").Uint32("tid", uint32(s.localID)).Msg("left")
	return nil
}

func (c *Client) SetCameraEnabled(ctx context.Context, on bool) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	return s.setPublishing(core.KindVideo, on)
}

func (c *Client) SetMicrophoneEnabled(ctx context.Context, on bool) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	return s.setPublishing(core.KindAudio, on)
}

// LocalVideoTrack is nil unless the camera is published.
func (c *Client) LocalVideoTrack() core.VideoTrack {
	s, err := c.current()
	if err != nil {
		return nil
	}
	return s.localVideo()
}

// session is one joined signaling connection plus its peer connection.
type session struct {
	opts    Options
	events  core.TransportEvents
	localID core.TransportID

	conn       *websocket.Conn
	out        chan []byte
	writerDone chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	wg         conc.WaitGroup

	pc    *webrtc.PeerConnection
	video *webrtc.TrackLocalStaticSample
	audio *webrtc.TrackLocalStaticSample
	negMu sync.Mutex

	pending atomic.Bool
	joined  chan error

	mu      sync.Mutex
	pumps   map[core.TrackKind]context.CancelFunc
	remotes map[core.TransportID]*remote
	tracks  map[core.TransportID]core.VideoTrack
	closed  bool
}

func dialSession(ctx context.Context, opts Options, events core.TransportEvents, localID core.TransportID) (*session, error) {
	conn, _, err := opts.Dialer.DialContext(ctx, opts.URL, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial signal: %w", err)
	}
	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		opts:       opts,
		events:     events,
		localID:    localID,
		conn:       conn,
		out:        make(chan []byte, 64),
		writerDone: make(chan struct{}),
		ctx:        sctx,
		cancel:     cancel,
		joined:     make(chan error, 1),
		pumps:      make(map[core.TrackKind]context.CancelFunc),
		remotes:    make(map[core.TransportID]*remote),
		tracks:     make(map[core.TransportID]core.VideoTrack),
	}
	s.pending.Store(true)
	s.wg.Go(s.writeLoop)
	s.wg.Go(s.readLoop)
	return s, nil
}

func (s *session) join(ctx context.Context, channel string) error {
	s.sendJSON(wire.Join{Type: wire.TypeJoin, Channel: channel, TID: s.localID})

	ctx, cancel := context.WithTimeout(ctx, s.opts.JoinTimeout)
	defer cancel()
	select {
	case err := <-s.joined:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return fmt.Errorf("join %s: %w", channel, ctx.Err())
	case <-s.ctx.Done():
		return errors.New("join: signaling connection closed")
	}
	return s.startMedia()
}

func (s *session) sendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "rtcclient").Msg("marshal")
		return
	}
	select {
	case s.out <- b:
	case <-s.ctx.Done():
	}
}

func (s *session) writeLoop() {
	defer close(s.writerDone)
	for {
		select {
		case <-s.ctx.Done():
			s.flush()
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case b := <-s.out:
			if err := s.write(b); err != nil {
				s.fail(fmt.Errorf("signal write: %w", err))
				return
			}
		}
	}
}

// flush writes whatever was queued before shutdown, e.g. a leave.
func (s *session) flush() {
	for {
		select {
		case b := <-s.out:
			if s.write(b) != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *session) write(b []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.fail(fmt.Errorf("signal read: %w", err))
			}
			return
		}
		s.handle(data)
	}
}

// fail reports a transport error once and shuts the session's loops down.
func (s *session) fail(err error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	log.Warn().Err(err).Str("module", "rtcclient").Msg("transport error")
	if !s.resolveJoin(err) {
		s.events.OnError(err)
	}
	s.cancel()
}

// resolveJoin completes a pending join; it reports false once the join was already settled.
func (s *session) resolveJoin(err error) bool {
	if !s.pending.CompareAndSwap(true, false) {
		return false
	}
	s.joined <- err
	return true
}

func (s *session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for kind, stop := range s.pumps {
		stop()
		delete(s.pumps, kind)
	}
	s.remotes = map[core.TransportID]*remote{}
	s.mu.Unlock()

	s.cancel()
	select {
	case <-s.writerDone:
	case <-time.After(2 * time.Second):
	}
	if pc := s.peer(); pc != nil {
		if err := pc.Close(); err != nil {
			log.Warn().Err(err).Str("module", "rtcclient").Msg("close peer connection")
		}
	}
	_ = s.conn.Close()
	s.wg.Wait()
}
