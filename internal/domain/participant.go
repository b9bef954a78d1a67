package domain

import "time"

// UnknownTransport is the transport label when no sample is available.
const UnknownTransport = "—"

// UnknownSender is used for remote messages that carry no participant reference.
const UnknownSender Identity = "unknown"

// ParticipantView is one roster row as the client presents it. Derived, never patched.
type ParticipantView struct {
	Identity     Identity `json:"identity"`
	IsSelf       bool     `json:"isSelf"`
	IsSpeaking   bool     `json:"isSpeaking"`
	AudioEnabled bool     `json:"audioEnabled"`
}

// ChatEntry is one transcript line. System entries have an empty sender.
type ChatEntry struct {
	SenderIdentity Identity  `json:"senderIdentity"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	IsLocal        bool      `json:"isLocal"`
	IsSystem       bool      `json:"isSystem"`
}

// StoredMessage is a persisted chat line.
type StoredMessage struct {
	ID             string    `json:"id"`
	Room           RoomID    `json:"roomName"`
	SenderIdentity Identity  `json:"senderIdentity"`
	SenderName     string    `json:"senderName"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
}
