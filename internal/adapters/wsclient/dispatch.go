package wsclient

import (
	"encoding/json"
	"time"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/wire"
	"github.com/pion/webrtc/v4"
)

// handle turns one server frame into session state and events.
func (s *Session) handle(data []byte) {
	typ, err := wire.Peek(data)
	if err != nil {
		s.logger.Error().Err(err).Msg("bad frame")
		return
	}

	switch typ {
	case wire.TypeChat:
		var f wire.Chat
		if s.decode(data, &f) {
			ev := core.Event{Kind: core.EventMessageReceived, Text: f.Text, At: time.Now()}
			if f.From != "" {
				ev.Participant = &core.ParticipantInfo{Identity: f.From, Name: f.Name}
			}
			s.emit(ev)
		}

	case wire.TypeMemberJoined:
		var f wire.MemberEvent
		if s.decode(data, &f) {
			info := infoOf(f.Member)
			s.mu.Lock()
			s.remotes = append(removeIdentity(s.remotes, info.Identity), info)
			s.mu.Unlock()
			s.emit(core.ParticipantEvent(core.EventParticipantJoined, info))
		}

	case wire.TypeMemberLeft:
		var f wire.IdentityEvent
		if s.decode(data, &f) {
			s.mu.Lock()
			info, ok := findIdentity(s.remotes, f.Identity)
			s.remotes = removeIdentity(s.remotes, f.Identity)
			s.mu.Unlock()
			if !ok {
				info = core.ParticipantInfo{Identity: f.Identity}
			}
			s.emit(core.ParticipantEvent(core.EventParticipantLeft, info))
		}

	case wire.TypeMemberUpdated:
		var f wire.MemberEvent
		if s.decode(data, &f) {
			for _, ev := range s.update(f.Member) {
				s.emit(ev)
			}
		}

	case wire.TypeTrackUnpublished:
		var f wire.IdentityEvent
		if s.decode(data, &f) {
			s.mu.Lock()
			info, ok := findIdentity(s.remotes, f.Identity)
			s.mu.Unlock()
			if !ok {
				info = core.ParticipantInfo{Identity: f.Identity}
			}
			s.emit(core.ParticipantEvent(core.EventTrackUnsubscribed, info))
		}

	case wire.TypeOffer:
		var f wire.SDP
		if s.decode(data, &f) {
			s.answerOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: f.SDP})
		}

	case wire.TypeAnswer:
		var f wire.SDP
		if s.decode(data, &f) {
			if media := s.currentMedia(); media != nil {
				if err := media.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: f.SDP}); err != nil {
					s.logger.Error().Err(err).Msg("apply answer")
				}
			}
		}

	case wire.TypeCandidate:
		var f wire.Candidate
		if s.decode(data, &f) {
			if media := s.currentMedia(); media != nil {
				if err := media.AddICECandidate(f.Init()); err != nil {
					s.logger.Warn().Err(err).Msg("add ice candidate")
				}
			}
		}

	case wire.TypeError:
		var f wire.Error
		if s.decode(data, &f) {
			s.logger.Warn().Str("error", f.Error).Msg("server error")
		}

	case wire.TypePong, wire.TypeRoomState:
	default:
		s.logger.Debug().Str("type", string(typ)).Msg("unknown frame")
	}
}

func (s *Session) decode(data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Error().Err(err).Msg("bad frame payload")
		return false
	}
	return true
}

// update applies a member_updated frame and reports what changed.
func (s *Session) update(m core.MemberDTO) []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evs []core.Event
	if m.Identity == s.local.Identity {
		// Our own mute state is authoritative locally; only speaking comes from the server.
		if s.local.Speaking != m.Speaking {
			s.local.Speaking = m.Speaking
			evs = append(evs, core.ParticipantEvent(core.EventSpeakingChanged, s.local))
		}
		return evs
	}
	for i := range s.remotes {
		r := &s.remotes[i]
		if r.Identity != m.Identity {
			continue
		}
		speaking, muted := r.Speaking != m.Speaking, r.AudioEnabled != m.AudioEnabled
		r.Speaking, r.AudioEnabled = m.Speaking, m.AudioEnabled
		if m.Name != "" {
			r.Name = m.Name
		}
		if speaking {
			evs = append(evs, core.ParticipantEvent(core.EventSpeakingChanged, *r))
		}
		if muted {
			evs = append(evs, core.ParticipantEvent(core.EventMuteChanged, *r))
		}
	}
	return evs
}

func (s *Session) emit(ev core.Event) { s.q.Push(ev) }

func findIdentity(list []core.ParticipantInfo, id domain.Identity) (core.ParticipantInfo, bool) {
	for _, p := range list {
		if p.Identity == id {
			return p, true
		}
	}
	return core.ParticipantInfo{}, false
}

func removeIdentity(list []core.ParticipantInfo, id domain.Identity) []core.ParticipantInfo {
	out := list[:0]
	for _, p := range list {
		if p.Identity != id {
			out = append(out, p)
		}
	}
	return out
}
