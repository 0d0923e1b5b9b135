package core

type SessionID string

// MediaState is what a member currently publishes.
type MediaState struct {
	Video bool `json:"video"`
	Audio bool `json:"audio"`
}

// MemberSession binds a signaling connection, an optional media connection
// and the transport id the member announced on join.
// This is what a channel stores and fans out to.
type MemberSession interface {
	TransportID() TransportID
	SetTransportID(TransportID)
	MediaState() MediaState
	SetMediaState(MediaState)
	Signal() SignalConnection
	Media() MediaConnection
	UpdateSignal(SignalConnection) MemberSession
	UpdateMedia(MediaConnection) MemberSession
}
