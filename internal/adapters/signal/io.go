package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/CoStudy/internal/adapters/signal/wire"
	"github.com/dkeye/CoStudy/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ping := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ping.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, sess core.MemberSession, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Orch.Disconnect(sid, sess)
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		ctl.handleSignal(sid, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(sid core.SessionID, c *WsSignalConn, data []byte) {
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendJSON(c, wire.NewError(wire.ErrBadPayload))
		return
	}

	switch env.Type {
	case wire.TypeJoin:
		ctl.handleJoin(sid, c, data)
	case wire.TypeLeave:
		ctl.handleLeave(sid, c)
	case wire.TypeMediaState:
		ctl.handleMediaState(sid, c, data)
	case wire.TypePing:
		ctl.handlePing(c)
	case wire.TypeWhoAmI:
		ctl.handleWhoAmI(sid, c)
	case wire.TypeOffer:
		ctl.handleOffer(sid, c, data)
	case wire.TypeAnswer:
		ctl.handleAnswer(sid, c, data)
	case wire.TypeCandidate:
		ctl.handleCandidate(sid, c, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	f, err := wire.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(f)
}

// broadcastFrom sends v to sid's channel mates.
func (ctl *SignalWSController) broadcastFrom(sid core.SessionID, v any) {
	f, err := wire.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	ctl.Orch.OnFrame(sid, f)
}

func (ctl *SignalWSController) broadcastLeft(channel string, tid core.TransportID) {
	f, err := wire.Encode(wire.Member{Type: wire.TypeMemberLeft, TID: tid})
	if err != nil {
		return
	}
	ctl.Orch.Publish(channel, f)
}
