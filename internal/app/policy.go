package app

import "github.com/dkeye/CoStudy/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose signaling queue is full.
type Policy interface {
	OnBackPressure(ch core.ChannelService, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks every slow member.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.ChannelService, core.MemberSession) BackpressureAction {
	return KickMember
}
