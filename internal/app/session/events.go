package session

import (
	"context"
	"time"

	"github.com/dkeye/CoStudy/internal/app/presence"
	"github.com/dkeye/CoStudy/internal/core"
)

const rosterSyncTimeout = 5 * time.Second

// transportEvents feeds the presence map and reloads the roster when the
// transport reports someone new, so their events resolve to a participant.
type transportEvents struct {
	*presence.Synchronizer
	s *Session
}

var _ core.TransportEvents = transportEvents{}

func (e transportEvents) OnRemoteUserJoined(id core.TransportID) {
	e.Synchronizer.OnRemoteUserJoined(id)
	if len(e.Resolve(id)) == 0 {
		e.s.syncRoster()
	}
}

func (e transportEvents) OnRemoteRosterUpdated(ids []core.TransportID) {
	e.Synchronizer.OnRemoteRosterUpdated(ids)
	for _, id := range ids {
		if len(e.Resolve(id)) == 0 {
			e.s.syncRoster()
			return
		}
	}
}

// syncRoster runs on the transport callback path and must not take s.mu.
func (s *Session) syncRoster() {
	ctx, cancel := context.WithTimeout(context.Background(), rosterSyncTimeout)
	defer cancel()
	roster, err := s.seats.Refresh(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("roster sync failed")
		return
	}
	s.presence.TrackRoster(roster)
}
