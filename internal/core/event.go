package core

import (
	"time"

	"github.com/dkeye/voxroom/internal/domain"
)

type EventKind int

const (
	EventPhaseChanged EventKind = iota
	EventMessageReceived
	EventParticipantJoined
	EventParticipantLeft
	EventTrackSubscribed
	EventTrackUnsubscribed
	EventSpeakingChanged
	EventMuteChanged
)

func (k EventKind) String() string {
	switch k {
	case EventPhaseChanged:
		return "phase_changed"
	case EventMessageReceived:
		return "message_received"
	case EventParticipantJoined:
		return "participant_joined"
	case EventParticipantLeft:
		return "participant_left"
	case EventTrackSubscribed:
		return "track_subscribed"
	case EventTrackUnsubscribed:
		return "track_unsubscribed"
	case EventSpeakingChanged:
		return "speaking_changed"
	case EventMuteChanged:
		return "mute_changed"
	default:
		return "unknown"
	}
}

// Event is one transport notification, delivered in transport order.
type Event struct {
	Kind  EventKind
	Phase domain.Phase
	// Participant is nil when the transport attaches no sender,
	// which for messages means the local endpoint's own echo.
	Participant *ParticipantInfo
	Text        string
	At          time.Time
}

// AffectsRoster reports whether the event changes anything a roster shows.
func (e Event) AffectsRoster() bool {
	switch e.Kind {
	case EventParticipantJoined, EventParticipantLeft,
		EventTrackSubscribed, EventTrackUnsubscribed,
		EventSpeakingChanged, EventMuteChanged:
		return true
	}
	return false
}

func PhaseEvent(p domain.Phase) Event {
	return Event{Kind: EventPhaseChanged, Phase: p, At: time.Now()}
}

func ParticipantEvent(kind EventKind, p ParticipantInfo) Event {
	return Event{Kind: kind, Participant: &p, At: time.Now()}
}
