package app

import (
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// BackpressurePolicy decides what happens to a member whose signal queue is full.
type BackpressurePolicy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
}

// SimplePolicy drops the frame for agents and kicks everybody else.
// An agent falling behind is usually busy persisting, not gone.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ core.RoomService, member core.MemberSession) BackpressureAction {
	if member.Meta().Role == domain.RoleAgent {
		return DropFrame
	}
	return KickMember
}
