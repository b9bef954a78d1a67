package domain

import "time"

type RoomID string

type Room struct {
	ID        RoomID
	CreatedAt time.Time
}

// Phase is the connection state of one session.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseReconnecting
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}
