// Package wire holds the JSON frames exchanged over the signalling websocket.
package wire

import (
	"encoding/json"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/pion/webrtc/v4"
)

type Type string

const (
	// client -> server
	TypeMute  Type = "mute"
	TypePing  Type = "ping"
	TypeLeave Type = "leave"

	// both directions
	TypeChat      Type = "chat"
	TypeOffer     Type = "offer"
	TypeAnswer    Type = "answer"
	TypeCandidate Type = "candidate"

	// server -> client
	TypeRoomState        Type = "room_state"
	TypeMemberJoined     Type = "member_joined"
	TypeMemberLeft       Type = "member_left"
	TypeMemberUpdated    Type = "member_updated"
	TypeTrackUnpublished Type = "track_unpublished"
	TypePong             Type = "pong"
	TypeError            Type = "error"
)

type Envelope struct {
	Type Type `json:"type"`
}

type RoomState struct {
	Type    Type             `json:"type"`
	Room    domain.RoomID    `json:"room"`
	Self    core.MemberDTO   `json:"self"`
	Members []core.MemberDTO `json:"members"`
}

// MemberEvent carries member_joined and member_updated.
type MemberEvent struct {
	Type   Type           `json:"type"`
	Member core.MemberDTO `json:"member"`
}

// IdentityEvent carries member_left and track_unpublished.
type IdentityEvent struct {
	Type     Type            `json:"type"`
	Identity domain.Identity `json:"identity"`
}

// Chat is sent by clients with Text only; the server fills From and Name.
type Chat struct {
	Type Type            `json:"type"`
	From domain.Identity `json:"from,omitempty"`
	Name string          `json:"name,omitempty"`
	Text string          `json:"text"`
}

type Mute struct {
	Type    Type `json:"type"`
	Enabled bool `json:"enabled"`
}

type SDP struct {
	Type Type   `json:"type"`
	SDP  string `json:"sdp"`
}

type Candidate struct {
	Type          Type    `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func CandidateOf(ci webrtc.ICECandidateInit) Candidate {
	return Candidate{Type: TypeCandidate, Candidate: ci.Candidate, SDPMid: ci.SDPMid, SDPMLineIndex: ci.SDPMLineIndex}
}

func (c Candidate) Init() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: c.Candidate, SDPMid: c.SDPMid, SDPMLineIndex: c.SDPMLineIndex}
}

type Error struct {
	Type  Type   `json:"type"`
	Error string `json:"error"`
}

func Errorf(msg string) Error { return Error{Type: TypeError, Error: msg} }

// Marshal encodes any frame struct.
func Marshal(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}

// Peek reads only the type tag of a frame.
func Peek(data []byte) (Type, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}
