package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/CoStudy/internal/adapters/rtc"
	"github.com/dkeye/CoStudy/internal/adapters/signal/wire"
	"github.com/dkeye/CoStudy/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) sendCandidate(c core.SignalConnection, ci webrtc.ICECandidateInit) {
	ctl.sendJSON(c, wire.Candidate{
		Type:          wire.TypeCandidate,
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	})
}

// handleOffer answers the member's offer, creating the peer connection on first use.
func (ctl *SignalWSController) handleOffer(sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p wire.SDP
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		ctl.sendJSON(conn, wire.NewError(wire.ErrBadPayload))
		return
	}
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}

	if mc := sess.Media(); mc != nil && !mc.IsClosed() {
		answer, err := mc.ApplyOfferAndCreateAnswer(offer)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("webrtc renegotiate")
			return
		}
		ctl.sendJSON(conn, wire.SDP{Type: wire.TypeAnswer, SDP: answer.SDP})
		return
	}

	wc, err := rtc.NewWebRTCConnection(ctl.opts.RTC, sid)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
		return
	}
	wc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		ctl.sendCandidate(conn, ci)
	})
	wc.OnNegotiationNeeded(func() { go ctl.renegotiate(sid, conn, wc) })
	ctl.Orch.BindMediaHandlers(wc, sid)

	if err = wc.Start(context.Background()); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc start")
		wc.Close()
		return
	}
	sess.UpdateMedia(wc)

	answer, err := wc.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc apply offer")
		sess.UpdateMedia(nil)
		wc.Close()
		return
	}
	ctl.sendJSON(conn, wire.SDP{Type: wire.TypeAnswer, SDP: answer.SDP})
	ctl.Orch.OnMediaReady(sid)
}

// renegotiate offers the member the tracks forwarded to it since the last exchange.
func (ctl *SignalWSController) renegotiate(sid core.SessionID, conn *WsSignalConn, mc core.MediaConnection) {
	offer, err := mc.CreateAndSetOffer()
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("server offer")
		return
	}
	ctl.sendJSON(conn, wire.SDP{Type: wire.TypeOffer, SDP: offer.SDP})
}

func (ctl *SignalWSController) handleAnswer(sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p wire.SDP
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendJSON(conn, wire.NewError(wire.ErrBadPayload))
		return
	}
	mc := ctl.media(sid)
	if mc == nil {
		ctl.sendJSON(conn, wire.NewError(wire.ErrNoMedia))
		return
	}
	if err := mc.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("apply answer")
	}
}

func (ctl *SignalWSController) handleCandidate(sid core.SessionID, _ *WsSignalConn, data []byte) {
	var p wire.Candidate
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}
	mc := ctl.media(sid)
	if mc == nil {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("candidate: no media connection")
		return
	}
	cand := webrtc.ICECandidateInit{Candidate: p.Candidate, SDPMid: p.SDPMid, SDPMLineIndex: p.SDPMLineIndex}
	if err := mc.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("add ice candidate")
	}
}

func (ctl *SignalWSController) media(sid core.SessionID) core.MediaConnection {
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return nil
	}
	return sess.Media()
}
