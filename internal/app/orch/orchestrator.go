package orch

import (
	"github.com/dkeye/CoStudy/internal/app"
	"github.com/dkeye/CoStudy/internal/app/sfu"
	"github.com/dkeye/CoStudy/internal/core"
	"github.com/rs/zerolog/log"
)

// Orchestrator ties signaling sessions, channels and SFU relays together.
type Orchestrator struct {
	Registry *app.Registry
	Channels core.ChannelManager
	Policy   app.Policy
	Relays   *sfu.RelayManager

	// OnLeft runs after a member was removed from a channel, whatever the reason.
	OnLeft func(channel string, tid core.TransportID)
}

// OnFrame fans data out to every other member of sid's channel.
func (o *Orchestrator) OnFrame(sid core.SessionID, data core.Frame) {
	channel, _, ok := o.Registry.ChannelOf(sid)
	if !ok {
		return
	}
	o.publish(o.Channels.GetOrCreate(channel), sid, data)
}

// Publish sends data to every member of channel.
func (o *Orchestrator) Publish(channel string, data core.Frame) {
	ch, ok := o.Channels.Get(channel)
	if !ok {
		return
	}
	o.publish(ch, "", data)
}

func (o *Orchestrator) publish(ch core.ChannelService, from core.SessionID, data core.Frame) {
	res := ch.Broadcast(from, data)
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(ch, slow) {
		case app.KickMember:
			sid, ok := o.Registry.SIDOf(slow)
			if !ok {
				continue
			}
			log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("channel", ch.Name()).Msg("kicking slow member")
			o.KickBySID(sid)
			o.Registry.Cancel(sid)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}
