package core

import (
	"cmp"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// channelImpl is a threadsafe in-memory channel.
// It never closes adapter-owned resources.
type channelImpl struct {
	name  string
	mu    sync.RWMutex
	bySID map[SessionID]MemberSession
}

func NewChannelService(name string) ChannelService {
	return &channelImpl{
		name:  name,
		bySID: make(map[SessionID]MemberSession),
	}
}

func (c *channelImpl) Name() string { return c.name }

func (c *channelImpl) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bySID)
}

func (c *channelImpl) AddMember(sid SessionID, ms MemberSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bySID[sid] = ms
	log.Info().Str("module", "core.channel").Str("channel", c.name).Str("sid", string(sid)).
		Uint32("tid", uint32(ms.TransportID())).Msg("member added")
}

func (c *channelImpl) RemoveMember(sid SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.bySID[sid]; !ok {
		return
	}
	delete(c.bySID, sid)
	log.Info().Str("module", "core.channel").Str("channel", c.name).Str("sid", string(sid)).Msg("member removed")
}

func (c *channelImpl) Broadcast(from SessionID, data Frame) PublishResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range c.bySID {
		if sid == from {
			continue
		}
		sig := m.Signal()
		if sig == nil {
			continue
		}
		if err := sig.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.channel").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// MembersSnapshot is ordered by transport id so clients get a stable roster.
func (c *channelImpl) MembersSnapshot() []MemberDTO {
	c.mu.RLock()
	out := make([]MemberDTO, 0, len(c.bySID))
	for _, ms := range c.bySID {
		st := ms.MediaState()
		out = append(out, MemberDTO{ID: ms.TransportID(), Video: st.Video, Audio: st.Audio})
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b MemberDTO) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
