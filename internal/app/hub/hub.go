// Package hub runs the voice server side of a room: membership, chat fan-out and media relays.
package hub

import (
	"context"
	"time"

	"github.com/dkeye/voxroom/internal/app"
	"github.com/dkeye/voxroom/internal/app/sfu"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/wire"
	"github.com/rs/zerolog/log"
)

type Hub struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.BackpressurePolicy
	Relays   *sfu.RelayManager
}

// Join binds sid to room and announces it. An older session holding the
// same identity in that room is kicked and its sid returned.
func (h *Hub) Join(sid core.SessionID, ms core.MemberSession, roomID domain.RoomID, cancel context.CancelFunc) (core.SessionID, error) {
	room := h.Rooms.GetOrCreate(roomID)
	identity := ms.Meta().Identity

	var replaced core.SessionID
	if old, ok := room.SessionOf(identity); ok && old != sid {
		replaced = old
		h.SendTo(old, wire.Errorf("replaced by a newer session"))
		h.Kick(old)
		log.Info().Str("module", "app.hub").Str("room", string(roomID)).Str("identity", string(identity)).Str("sid", string(old)).Msg("replaced duplicate identity")
	}

	if err := room.AddMember(sid, ms); err != nil {
		return replaced, err
	}
	h.Registry.BindSignal(sid, ms, cancel)
	h.Registry.UpdateRoom(sid, roomID)

	h.SendTo(sid, wire.RoomState{
		Type:    wire.TypeRoomState,
		Room:    roomID,
		Self:    core.MemberDTOOf(ms.Meta()),
		Members: othersOf(room.MembersSnapshot(), identity),
	})
	h.broadcast(room, sid, wire.MemberEvent{Type: wire.TypeMemberJoined, Member: core.MemberDTOOf(ms.Meta())})
	log.Info().Str("module", "app.hub").Str("sid", string(sid)).Str("room", string(roomID)).Msg("added to room")
	return replaced, nil
}

func othersOf(all []core.MemberDTO, self domain.Identity) []core.MemberDTO {
	out := make([]core.MemberDTO, 0, len(all))
	for _, m := range all {
		if m.Identity != self {
			out = append(out, m)
		}
	}
	return out
}

// Chat fans text out to everyone in the sender's room except the sender.
func (h *Hub) Chat(sid core.SessionID, text string) bool {
	roomID, ms, ok := h.Registry.RoomOf(sid)
	if !ok {
		return false
	}
	room, ok := h.Rooms.Get(roomID)
	if !ok {
		return false
	}
	meta := ms.Meta()
	h.broadcast(room, sid, wire.Chat{Type: wire.TypeChat, From: meta.Identity, Name: meta.Name, Text: text})
	return true
}

// SetAudioEnabled records the member's mute state and tells the room.
// With dynacast the member's relay stops forwarding while muted.
func (h *Hub) SetAudioEnabled(sid core.SessionID, enabled bool) {
	_, ms, ok := h.Registry.RoomOf(sid)
	if !ok {
		return
	}
	meta := ms.Meta()
	meta.AudioEnabled.Store(enabled)
	if !enabled {
		meta.Speaking.Store(false)
	}
	if meta.Dynacast && h.Relays != nil {
		h.Relays.SetMuted(sid, !enabled)
	}
	h.announceUpdate(sid, meta)
}

func (h *Hub) onSpeaking(sid core.SessionID, speaking bool) {
	_, ms, ok := h.Registry.RoomOf(sid)
	if !ok {
		return
	}
	meta := ms.Meta()
	if meta.Speaking.Swap(speaking) == speaking {
		return
	}
	h.announceUpdate(sid, meta)
}

func (h *Hub) announceUpdate(sid core.SessionID, meta *domain.Member) {
	roomID, _, ok := h.Registry.RoomOf(sid)
	if !ok {
		return
	}
	h.BroadcastRoom(roomID, wire.MemberEvent{Type: wire.TypeMemberUpdated, Member: core.MemberDTOOf(meta)})
}

// Kick disconnects sid from the server side.
func (h *Hub) Kick(sid core.SessionID) {
	sess, ok := h.Registry.GetSession(sid)
	h.Registry.Cancel(sid)
	h.OnDisconnect(sid)
	if ok {
		if sig := sess.Signal(); sig != nil {
			sig.Close()
		}
	}
}

// OnDisconnect tears down everything sid owned. Safe to call more than once.
func (h *Hub) OnDisconnect(sid core.SessionID) {
	roomID, ms, ok := h.Registry.Detach(sid)
	if !ok {
		return
	}
	h.cleanupMedia(sid, ms, roomID)
	if roomID == "" {
		return
	}
	if room, ok := h.Rooms.Get(roomID); ok {
		room.RemoveMember(sid)
	}
	h.BroadcastRoom(roomID, wire.IdentityEvent{Type: wire.TypeMemberLeft, Identity: ms.Meta().Identity})
	log.Info().Str("module", "app.hub").Str("sid", string(sid)).Str("room", string(roomID)).Msg("member disconnected")
}

// EvictRoom kicks every member and stops the room.
func (h *Hub) EvictRoom(roomID domain.RoomID) {
	for _, snap := range h.Registry.MembersOfRoom(roomID) {
		h.Kick(snap.SID)
	}
	h.Rooms.StopRoom(roomID)
}

// SendTo delivers one frame to sid, dropping it when the queue is full.
func (h *Hub) SendTo(sid core.SessionID, v any) bool {
	sess, ok := h.Registry.GetSession(sid)
	if !ok {
		return false
	}
	return send(sess, v)
}

func send(sess core.MemberSession, v any) bool {
	sig := sess.Signal()
	if sig == nil {
		return false
	}
	f, err := wire.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Msg("marshal frame")
		return false
	}
	return sig.TrySend(f) == nil
}

// BroadcastRoom sends v to every member of roomID, best effort.
func (h *Hub) BroadcastRoom(roomID domain.RoomID, v any) {
	for _, snap := range h.Registry.MembersOfRoom(roomID) {
		send(snap.Session, v)
	}
}

// broadcast sends to everyone but from and applies the backpressure policy to slow members.
func (h *Hub) broadcast(room core.RoomService, from core.SessionID, v any) {
	f, err := wire.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Msg("marshal frame")
		return
	}
	res := room.Broadcast(from, f)
	if h.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch h.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			if sid, ok := h.Registry.SIDOf(slow); ok {
				log.Warn().Str("module", "app.hub").Str("sid", string(sid)).Msg("kicking slow member")
				h.Kick(sid)
			}
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

// RunJanitor stops rooms that stayed empty for longer than timeout until ctx is done.
func (h *Hub) RunJanitor(ctx context.Context, interval, timeout time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			for _, id := range h.Rooms.StopIdle(now, timeout) {
				log.Info().Str("module", "app.hub").Str("room", string(id)).Msg("stopped empty room")
			}
		}
	}
}
