package rtcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/CoStudy/internal/adapters/signal/wire"
	"github.com/dkeye/CoStudy/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

var (
	// opusSilence is a complete 20ms opus frame of silence.
	opusSilence = []byte{0xf8, 0xff, 0xfe}
	// vp8Placeholder carries a keyframe tag; the gateway forwards it untouched.
	vp8Placeholder = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x10, 0x00, 0x10, 0x00}
)

const audioFrame = 20 * time.Millisecond

func (s *session) startMedia() error {
	var cfg webrtc.Configuration
	if len(s.opts.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: s.opts.ICEServers}}
	}
	s.negMu.Lock()
	defer s.negMu.Unlock()
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return fmt.Errorf("peer connection: %w", err)
	}
	s.pc = pc

	stream := s.localID.StreamID()
	if s.video, err = webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "camera", stream); err != nil {
		return fmt.Errorf("video track: %w", err)
	}
	if s.audio, err = webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "microphone", stream); err != nil {
		return fmt.Errorf("audio track: %w", err)
	}
	for _, tr := range []webrtc.TrackLocal{s.video, s.audio} {
		sender, err := pc.AddTrack(tr)
		if err != nil {
			return fmt.Errorf("add track: %w", err)
		}
		s.wg.Go(func() { drainRTCP(sender) })
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		ci := c.ToJSON()
		s.sendJSON(wire.Candidate{Type: wire.TypeCandidate, Candidate: ci.Candidate, SDPMid: ci.SDPMid, SDPMLineIndex: ci.SDPMLineIndex})
	})
	pc.OnTrack(s.onRemoteTrack)
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtcclient").Str("state", st.String()).Msg("peer state")
		if st == webrtc.PeerConnectionStateFailed {
			s.fail(fmt.Errorf("peer connection %s", st))
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local: %w", err)
	}
	s.sendJSON(wire.SDP{Type: wire.TypeOffer, SDP: offer.SDP})
	return nil
}

func (s *session) peer() *webrtc.PeerConnection {
	s.negMu.Lock()
	defer s.negMu.Unlock()
	return s.pc
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// onRemoteTrack keeps forwarded camera tracks so media_state events can hand them out.
func (s *session) onRemoteTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	tid, ok := core.ParseStreamID(track.StreamID())
	if !ok {
		log.Warn().Str("module", "rtcclient").Str("stream", track.StreamID()).Msg("remote track without transport id")
		return
	}
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		s.mu.Lock()
		s.tracks[tid] = track
		r := s.remotes[tid]
		announce := r != nil && r.video && r.track == nil
		if announce {
			r.track = track
		}
		s.mu.Unlock()
		if announce {
			s.events.OnRemoteVideoStateChanged(tid, true, track)
		}
	}
	s.wg.Go(func() {
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				return
			}
		}
	})
}

func (s *session) localVideo() core.VideoTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, on := s.pumps[core.KindVideo]; on && s.video != nil {
		return s.video
	}
	return nil
}

// setPublishing starts or stops the sample pump for kind and announces the new state.
func (s *session) setPublishing(kind core.TrackKind, on bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotJoined
	}
	if err := s.ctx.Err(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("transport: %w", err)
	}
	_, running := s.pumps[kind]
	if running == on {
		s.mu.Unlock()
		return nil
	}
	if on {
		ctx, stop := context.WithCancel(s.ctx)
		s.pumps[kind] = stop
		track, payload, every := s.video, vp8Placeholder, s.opts.FrameInterval
		if kind == core.KindAudio {
			track, payload, every = s.audio, opusSilence, audioFrame
		}
		s.wg.Go(func() { pump(ctx, track, payload, every) })
	} else {
		s.pumps[kind]()
		delete(s.pumps, kind)
	}
	_, video := s.pumps[core.KindVideo]
	_, audio := s.pumps[core.KindAudio]
	s.mu.Unlock()

	s.sendJSON(wire.MediaState{Type: wire.TypeMediaState, Video: video, Audio: audio})
	return nil
}

func pump(ctx context.Context, track *webrtc.TrackLocalStaticSample, payload []byte, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := track.WriteSample(media.Sample{Data: payload, Duration: every}); err != nil {
				log.Debug().Err(err).Str("module", "rtcclient").Msg("write sample")
			}
		}
	}
}

func (s *session) handle(data []byte) {
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "rtcclient").Msg("bad frame")
		return
	}
	switch env.Type {
	case wire.TypeJoined:
		var m wire.Joined
		if json.Unmarshal(data, &m) == nil {
			s.onJoined(m)
		}
	case wire.TypeMemberJoined:
		var m wire.Member
		if json.Unmarshal(data, &m) == nil && m.TID != s.localID {
			s.mu.Lock()
			if _, ok := s.remotes[m.TID]; !ok {
				s.remotes[m.TID] = &remote{}
			}
			s.mu.Unlock()
			s.events.OnRemoteUserJoined(m.TID)
		}
	case wire.TypeMemberLeft:
		var m wire.Member
		if json.Unmarshal(data, &m) == nil && m.TID != s.localID {
			s.mu.Lock()
			delete(s.remotes, m.TID)
			delete(s.tracks, m.TID)
			s.mu.Unlock()
			s.events.OnRemoteUserLeft(m.TID)
		}
	case wire.TypeMediaState:
		var m wire.MediaState
		if json.Unmarshal(data, &m) == nil && m.TID != 0 {
			s.applyMediaState(m.TID, m.Video, m.Audio)
		}
	case wire.TypeAnswer:
		var m wire.SDP
		if json.Unmarshal(data, &m) == nil {
			s.applyAnswer(m.SDP)
		}
	case wire.TypeOffer:
		var m wire.SDP
		if json.Unmarshal(data, &m) == nil {
			s.answerOffer(m.SDP)
		}
	case wire.TypeCandidate:
		var m wire.Candidate
		if json.Unmarshal(data, &m) != nil {
			return
		}
		if pc := s.peer(); pc != nil {
			ci := webrtc.ICECandidateInit{Candidate: m.Candidate, SDPMid: m.SDPMid, SDPMLineIndex: m.SDPMLineIndex}
			if err := pc.AddICECandidate(ci); err != nil {
				log.Warn().Err(err).Str("module", "rtcclient").Msg("add candidate")
			}
		}
	case wire.TypeError:
		var m wire.Error
		if json.Unmarshal(data, &m) == nil {
			err := fmt.Errorf("signal: %s", m.Error)
			if s.resolveJoin(err) {
				return
			}
			log.Warn().Str("module", "rtcclient").Str("code", m.Error).Msg("gateway error")
			s.events.OnError(err)
		}
	case wire.TypeLeft, wire.TypePong:
	default:
		log.Debug().Str("module", "rtcclient").Str("type", env.Type).Msg("ignored frame")
	}
}

func (s *session) onJoined(m wire.Joined) {
	ids := make([]core.TransportID, 0, len(m.Members))
	s.mu.Lock()
	for _, mem := range m.Members {
		if mem.ID == s.localID {
			continue
		}
		ids = append(ids, mem.ID)
		s.remotes[mem.ID] = &remote{}
	}
	s.mu.Unlock()

	s.events.OnRemoteRosterUpdated(ids)
	for _, mem := range m.Members {
		if mem.ID != s.localID {
			s.applyMediaState(mem.ID, mem.Video, mem.Audio)
		}
	}
	s.resolveJoin(nil)
}

// applyMediaState emits video/audio callbacks only for flags that changed.
func (s *session) applyMediaState(tid core.TransportID, video, audio bool) {
	s.mu.Lock()
	r, ok := s.remotes[tid]
	if !ok {
		r = &remote{}
		s.remotes[tid] = r
	}
	videoChanged := r.video != video
	audioChanged := r.audio != audio
	r.video, r.audio = video, audio
	if video {
		r.track = s.tracks[tid]
	} else {
		r.track = nil
	}
	track := r.track
	s.mu.Unlock()

	if videoChanged {
		s.events.OnRemoteVideoStateChanged(tid, video, track)
	}
	if audioChanged {
		s.events.OnRemoteAudioStateChanged(tid, audio)
	}
}

func (s *session) applyAnswer(sdp string) {
	s.negMu.Lock()
	defer s.negMu.Unlock()
	if s.pc == nil {
		return
	}
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		log.Warn().Err(err).Str("module", "rtcclient").Msg("apply answer")
	}
}

// answerOffer accepts a gateway renegotiation that adds or removes forwarded tracks.
func (s *session) answerOffer(sdp string) {
	s.negMu.Lock()
	defer s.negMu.Unlock()
	if s.pc == nil {
		return
	}
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		log.Warn().Err(err).Str("module", "rtcclient").Msg("apply offer")
		return
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "rtcclient").Msg("create answer")
		return
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		log.Warn().Err(err).Str("module", "rtcclient").Msg("set local answer")
		return
	}
	s.sendJSON(wire.SDP{Type: wire.TypeAnswer, SDP: answer.SDP})
}
