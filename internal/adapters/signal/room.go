package signal

import (
	"encoding/json"
	"strings"

	"github.com/dkeye/CoStudy/internal/adapters/signal/wire"
	"github.com/dkeye/CoStudy/internal/core"
	"github.com/rs/zerolog/log"
)

const maxChannelLen = 64

func (ctl *SignalWSController) handleJoin(sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p wire.Join
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendJSON(conn, wire.NewError(wire.ErrBadPayload))
		return
	}
	p.Channel = strings.TrimSpace(p.Channel)
	if p.Channel == "" || len(p.Channel) > maxChannelLen || p.TID == 0 {
		ctl.sendJSON(conn, wire.NewError(wire.ErrBadPayload))
		return
	}
	if l := ctl.opts.Limiter; l != nil && !l.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
		ctl.sendJSON(conn, wire.NewError(wire.ErrRateLimited))
		return
	}

	members, ok := ctl.Orch.Join(sid, p.Channel, p.TID)
	if !ok {
		ctl.sendJSON(conn, wire.NewError(wire.ErrNotJoined))
		return
	}
	if members == nil {
		members = []core.MemberDTO{}
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("channel", p.Channel).Uint32("tid", uint32(p.TID)).Msg("join")
	ctl.sendJSON(conn, wire.Joined{Type: wire.TypeJoined, Channel: p.Channel, TID: p.TID, Members: members})
	ctl.broadcastFrom(sid, wire.Member{Type: wire.TypeMemberJoined, TID: p.TID})
}

// handleLeave leaves the current channel; the socket stays open.
func (ctl *SignalWSController) handleLeave(sid core.SessionID, conn *WsSignalConn) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.KickBySID(sid)
	ctl.sendJSON(conn, wire.Simple{Type: wire.TypeLeft})
}

func (ctl *SignalWSController) handleMediaState(sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p wire.MediaState
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendJSON(conn, wire.NewError(wire.ErrBadPayload))
		return
	}
	tid, ok := ctl.Orch.SetMediaState(sid, core.MediaState{Video: p.Video, Audio: p.Audio})
	if !ok {
		ctl.sendJSON(conn, wire.NewError(wire.ErrNotJoined))
		return
	}
	ctl.broadcastFrom(sid, wire.MediaState{Type: wire.TypeMediaState, TID: tid, Video: p.Video, Audio: p.Audio})
}
