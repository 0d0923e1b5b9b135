package core

// PublishResult reports delivery stats/backpressure to the orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is the read-only view of a channel member sent to clients.
type MemberDTO struct {
	ID    TransportID `json:"tid"`
	Video bool        `json:"video"`
	Audio bool        `json:"audio"`
}

// ChannelService is one transport channel (one room's live media session).
// It owns the membership set but never touches transport resources.
type ChannelService interface {
	Name() string
	MemberCount() int
	MembersSnapshot() []MemberDTO

	AddMember(sid SessionID, ms MemberSession)
	RemoveMember(sid SessionID)
	Broadcast(from SessionID, data Frame) PublishResult
}

type ChannelInfo struct {
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
}

type ChannelManager interface {
	GetOrCreate(name string) ChannelService
	Get(name string) (ChannelService, bool)
	List() []ChannelInfo
	StopChannel(name string)
}
