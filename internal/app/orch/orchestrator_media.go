package orch

import (
	"context"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) BindMediaHandlers(mc core.MediaConnection, sid core.SessionID) {
	mc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		o.OnTrack(trackCtx, sid, track)
	})
	mc.OnClosed(func() { o.OnMediaDisconnect(sid, mc) })
}

// OnMediaDisconnect cleans up after a peer connection died on its own.
func (o *Orchestrator) OnMediaDisconnect(sid core.SessionID, mc core.MediaConnection) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok || sess.Media() != mc {
		return
	}
	o.cleanupMedia(sid)
}

func (o *Orchestrator) cleanupMedia(sid core.SessionID) {
	if o.Relays != nil {
		o.Relays.StopRelays(sid)

		if channel, _, ok := o.Registry.ChannelOf(sid); ok {
			for _, snap := range o.Registry.MembersOf(channel) {
				o.Relays.MarkSubscriberDelete(snap.SID, sid)
			}
		}
	}

	if sess, ok := o.Registry.GetSession(sid); ok {
		if mc := sess.Media(); mc != nil {
			sess.UpdateMedia(nil)
			mc.Close()
		}
	}
}

// OnTrack is called when a new remote media track appears for a given session.
func (o *Orchestrator) OnTrack(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote) {
	if o.Relays == nil {
		return
	}
	channel, sess, ok := o.Registry.ChannelOf(sid)
	if !ok || sess.Media() == nil {
		log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("OnTrack: no channel for sid")
		return
	}
	o.Relays.StartRelay(ctx, sid, sess.TransportID(), track)

	// Subscribe all existing members in the channel to this speaker.
	for _, snap := range o.Registry.MembersOf(channel) {
		if snap.SID == sid {
			continue
		}
		pc := snap.Session.Media()
		if pc == nil {
			continue
		}
		if err := o.Relays.Subscribe(sid, track.Kind(), snap.SID, pc); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("src_sid", string(sid)).Str("dst_sid", string(snap.SID)).Msg("subscribe failed")
		}
	}
}

// OnMediaReady subscribes sid to every relay already running in its channel.
func (o *Orchestrator) OnMediaReady(sid core.SessionID) {
	if o.Relays == nil {
		return
	}
	channel, sess, ok := o.Registry.ChannelOf(sid)
	if !ok {
		return
	}
	mc := sess.Media()
	if mc == nil {
		return
	}

	for _, snap := range o.Registry.MembersOf(channel) {
		if snap.SID == sid {
			continue
		}
		for _, kind := range o.Relays.Kinds(snap.SID) {
			if err := o.Relays.Subscribe(snap.SID, kind, sid, mc); err != nil {
				log.Warn().Err(err).Str("module", "orch").Str("src_sid", string(snap.SID)).Str("dst_sid", string(sid)).Msg("subscribe failed")
			}
		}
	}
}
