package signal

import (
	"encoding/json"
	"strings"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/wire"
	"github.com/rs/zerolog/log"
)

const maxChatLen = 4096

func (ctl *SignalWSController) handleChat(sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p wire.Chat
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("bad chat payload")
		ctl.sendJSON(conn, wire.Errorf("bad_payload"))
		return
	}
	if strings.TrimSpace(p.Text) == "" {
		return
	}
	if len(p.Text) > maxChatLen {
		ctl.sendJSON(conn, wire.Errorf("message too long"))
		return
	}
	if !ctl.limits.Allow(sid) {
		ctl.sendJSON(conn, wire.Errorf(domain.ErrRateLimited.Error()))
		return
	}
	ctl.Hub.Chat(sid, p.Text)
}

func (ctl *SignalWSController) handleMute(sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p wire.Mute
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("bad mute payload")
		ctl.sendJSON(conn, wire.Errorf("bad_payload"))
		return
	}
	log.Info().Str("module", "adapters.signal").Str("sid", string(sid)).Bool("enabled", p.Enabled).Msg("mute")
	ctl.Hub.SetAudioEnabled(sid, p.Enabled)
}
