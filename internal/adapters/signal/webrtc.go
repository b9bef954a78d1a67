package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/voxroom/internal/adapters/rtc"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/wire"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleOffer(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p wire.SDP
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("bad offer payload")
		return
	}
	sess, ok := ctl.Hub.Registry.GetSession(sid)
	if !ok {
		return
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}

	if mc := sess.Media(); mc != nil {
		answer, err := mc.ApplyOfferAndCreateAnswer(offer)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.signal").Msg("webrtc reapply offer")
			return
		}
		ctl.sendJSON(conn, wire.SDP{Type: wire.TypeAnswer, SDP: answer.SDP})
		return
	}

	wc, err := rtc.NewConnection(ctl.opts.RTC, string(sid))
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("webrtc new pc")
		return
	}
	ctl.Hub.BindMediaHandlers(wc, sid)

	if err = wc.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("webrtc start")
		wc.Close()
		return
	}
	sess.UpdateMedia(wc)

	answer, err := wc.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("webrtc apply offer")
		sess.UpdateMedia(nil)
		wc.Close()
		return
	}

	ctl.sendJSON(conn, wire.SDP{Type: wire.TypeAnswer, SDP: answer.SDP})
	ctl.Hub.OnMediaReady(sid)
}

func (ctl *SignalWSController) handleAnswer(sid core.SessionID, data []byte) {
	var p wire.SDP
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("bad answer payload")
		return
	}
	mc := ctl.media(sid)
	if mc == nil {
		return
	}
	if err := mc.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("apply answer")
	}
}

func (ctl *SignalWSController) handleCandidate(sid core.SessionID, data []byte) {
	var p wire.Candidate
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("bad candidate payload")
		return
	}
	mc := ctl.media(sid)
	if mc == nil {
		return
	}
	if err := mc.AddICECandidate(p.Init()); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("add ice candidate")
	}
}

func (ctl *SignalWSController) media(sid core.SessionID) core.MediaConnection {
	sess, ok := ctl.Hub.Registry.GetSession(sid)
	if !ok {
		log.Warn().Str("module", "adapters.signal").Str("sid", string(sid)).Msg("no session for sid")
		return nil
	}
	mc := sess.Media()
	if mc == nil {
		log.Warn().Str("module", "adapters.signal").Str("sid", string(sid)).Msg("no media connection for sid")
	}
	return mc
}
