package signal

import (
	"github.com/dkeye/CoStudy/internal/adapters/signal/wire"
	"github.com/dkeye/CoStudy/internal/core"
)

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, wire.Simple{Type: wire.TypePong})
}

func (ctl *SignalWSController) handleWhoAmI(sid core.SessionID, conn *WsSignalConn) {
	resp := wire.WhoAmI{Type: wire.TypeWhoAmI, SID: string(sid)}
	if channel, sess, ok := ctl.Orch.Registry.ChannelOf(sid); ok {
		resp.Channel = channel
		resp.TID = sess.TransportID()
	}
	ctl.sendJSON(conn, resp)
}
