package core

import (
	"time"

	"github.com/dkeye/voxroom/internal/domain"
)

// PublishResult reports delivery stats/backpressure to the hub.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	Identity     domain.Identity `json:"identity"`
	Name         string          `json:"name"`
	AudioEnabled bool            `json:"audio_enabled"`
	Speaking     bool            `json:"speaking"`
}

func MemberDTOOf(m *domain.Member) MemberDTO {
	return MemberDTO{
		Identity:     m.Identity,
		Name:         m.Name,
		AudioEnabled: m.AudioEnabled.Load(),
		Speaking:     m.Speaking.Load(),
	}
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO
	// SessionOf returns the session currently holding identity in this room.
	SessionOf(identity domain.Identity) (SessionID, bool)

	AddMember(sid SessionID, ms MemberSession) error
	RemoveMember(sid SessionID)
	Broadcast(from SessionID, data Frame) PublishResult
	// IdleSince reports when the room became empty; ok is false while occupied.
	IdleSince() (time.Time, bool)
}

type RoomInfo struct {
	ID          domain.RoomID `json:"name"`
	MemberCount int           `json:"num_participants"`
	CreatedAt   time.Time     `json:"creation_time"`
}

type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.RoomID)
	// StopIdle stops rooms that have been empty for longer than timeout.
	StopIdle(now time.Time, timeout time.Duration) []domain.RoomID
}
