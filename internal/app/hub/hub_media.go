package hub

import (
	"context"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/wire"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (h *Hub) BindMediaHandlers(mc core.MediaConnection, sid core.SessionID) {
	mc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		h.OnTrack(trackCtx, sid, track)
	})
	mc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		h.SendTo(sid, wire.CandidateOf(ci))
	})
	mc.OnClosed(func() { h.OnMediaDisconnect(sid) })
}

// OnMediaDisconnect drops the member's relays but keeps its signalling alive.
func (h *Hub) OnMediaDisconnect(sid core.SessionID) {
	roomID, sess, ok := h.Registry.RoomOf(sid)
	if !ok {
		return
	}
	h.cleanupMedia(sid, sess, roomID)
}

func (h *Hub) cleanupMedia(sid core.SessionID, sess core.MemberSession, roomID domain.RoomID) {
	if h.Relays != nil {
		published := h.Relays.HasRelay(sid)
		h.Relays.StopRelay(sid)

		if roomID != "" {
			for _, snap := range h.Registry.MembersOfRoom(roomID) {
				h.Relays.MarkSubscriberDelete(snap.SID, sid)
			}
			if published {
				h.BroadcastRoom(roomID, wire.IdentityEvent{Type: wire.TypeTrackUnpublished, Identity: sess.Meta().Identity})
			}
		}
	}
	if mc := sess.Media(); mc != nil {
		sess.UpdateMedia(nil)
		if !mc.IsClosed() {
			mc.Close()
		}
	}
}

// OnTrack is called when a member publishes a new remote track.
func (h *Hub) OnTrack(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote) {
	if h.Relays == nil {
		return
	}
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	if sess, ok := h.Registry.GetSession(sid); !ok || sess.Media() == nil {
		return
	}
	h.Relays.StartRelay(ctx, sid, track, func(speaking bool) { h.onSpeaking(sid, speaking) })

	roomID, sess, ok := h.Registry.RoomOf(sid)
	if !ok {
		log.Info().
			Str("module", "sfu").
			Str("sid", string(sid)).
			Msg("OnTrack: no room for sid")
		return
	}
	if !sess.Meta().AudioEnabled.Load() && sess.Meta().Dynacast {
		h.Relays.SetMuted(sid, true)
	}

	for _, snap := range h.Registry.MembersOfRoom(roomID) {
		if snap.SID == sid || !snap.Session.Meta().AutoSubscribe {
			continue
		}
		h.subscribe(sid, sess.Meta().Identity, snap.SID, snap.Session.Media(), track)
	}
}

// OnMediaReady subscribes sid to every relay already running in its room.
func (h *Hub) OnMediaReady(sid core.SessionID) {
	if h.Relays == nil {
		return
	}
	roomID, sess, ok := h.Registry.RoomOf(sid)
	if !ok || !sess.Meta().AutoSubscribe {
		return
	}
	mc := sess.Media()
	if mc == nil {
		return
	}

	for _, snap := range h.Registry.MembersOfRoom(roomID) {
		if snap.SID == sid {
			continue
		}
		srcTrack, ok := h.Relays.SrcTrack(snap.SID)
		if !ok {
			continue
		}
		h.subscribe(snap.SID, snap.Session.Meta().Identity, sid, mc, srcTrack)
	}
}

// subscribe adds a copy of src's track to dst's peer connection and renegotiates.
func (h *Hub) subscribe(srcSID core.SessionID, srcIdentity domain.Identity, dstSID core.SessionID, dst core.MediaConnection, src *webrtc.TrackRemote) {
	if dst == nil {
		return
	}
	logger := log.With().Str("module", "sfu").Str("src", string(srcSID)).Str("dst", string(dstSID)).Logger()

	local, err := webrtc.NewTrackLocalStaticRTP(src.Codec().RTPCodecCapability, "audio-"+string(srcIdentity), string(srcIdentity))
	if err != nil {
		logger.Error().Err(err).Msg("create local track")
		return
	}
	sender, err := dst.AddLocalTrack(local)
	if err != nil {
		logger.Error().Err(err).Msg("add local track")
		return
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	if !h.Relays.AddSubscriber(srcSID, dstSID, local) {
		return
	}
	err = dst.Renegotiate(func(offer webrtc.SessionDescription) {
		h.SendTo(dstSID, wire.SDP{Type: wire.TypeOffer, SDP: offer.SDP})
	})
	if err != nil {
		logger.Error().Err(err).Msg("renegotiate")
	}
}
