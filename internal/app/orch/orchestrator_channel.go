package orch

import (
	"github.com/dkeye/CoStudy/internal/core"
	"github.com/rs/zerolog/log"
)

// Join puts sid into channel under tid and returns the members already there.
// A session that is in another channel leaves it first.
func (o *Orchestrator) Join(sid core.SessionID, channel string, tid core.TransportID) ([]core.MemberDTO, bool) {
	if from, _, ok := o.Registry.ChannelOf(sid); ok {
		o.KickBySID(sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_channel", from).Msg("left previous channel")
	}
	session, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, false
	}
	ch := o.Channels.GetOrCreate(channel)
	existing := ch.MembersSnapshot()

	session.SetTransportID(tid)
	session.SetMediaState(core.MediaState{})
	ch.AddMember(sid, session)
	o.Registry.UpdateChannel(sid, channel)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("channel", channel).Uint32("tid", uint32(tid)).Msg("joined channel")

	o.OnMediaReady(sid)
	return existing, true
}

// SetMediaState records what sid publishes; ok is false outside a channel.
func (o *Orchestrator) SetMediaState(sid core.SessionID, st core.MediaState) (core.TransportID, bool) {
	_, session, ok := o.Registry.ChannelOf(sid)
	if !ok {
		return 0, false
	}
	session.SetMediaState(st)
	return session.TransportID(), true
}

// Roster lists the members of sid's channel, sid included.
func (o *Orchestrator) Roster(sid core.SessionID) ([]core.MemberDTO, bool) {
	channel, _, ok := o.Registry.ChannelOf(sid)
	if !ok {
		return nil, false
	}
	return o.Channels.GetOrCreate(channel).MembersSnapshot(), true
}

// KickBySID removes sid from its channel and tears its media down.
// The signaling connection stays open.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	channel, session, ok := o.Registry.ChannelOf(sid)
	o.cleanupMedia(sid)
	if !ok {
		return
	}
	tid := session.TransportID()
	o.cleanupMembership(sid, channel)
	if o.OnLeft != nil {
		o.OnLeft(channel, tid)
	}
}

// Disconnect is KickBySID plus dropping the session, for a closed signaling connection.
func (o *Orchestrator) Disconnect(sid core.SessionID, session core.MemberSession) {
	if cur, ok := o.Registry.GetSession(sid); !ok || cur != session {
		return
	}
	o.KickBySID(sid)
	o.Registry.Unbind(sid, session)
}

func (o *Orchestrator) cleanupMembership(sid core.SessionID, channel string) {
	ch := o.Channels.GetOrCreate(channel)
	ch.RemoveMember(sid)
	o.Registry.RemoveChannel(sid)
	if ch.MemberCount() == 0 {
		o.Channels.StopChannel(channel)
	}
}

// EvictChannel kicks every member of channel.
func (o *Orchestrator) EvictChannel(channel string) {
	for _, snap := range o.Registry.MembersOf(channel) {
		o.KickBySID(snap.SID)
	}
	o.Channels.StopChannel(channel)
}
