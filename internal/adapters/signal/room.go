package signal

import (
	"github.com/dkeye/voxroom/internal/core"
	"github.com/rs/zerolog/log"
)

// handleLeave ends the member's presence. A token is bound to one room,
// so leaving also closes the connection.
func (ctl *SignalWSController) handleLeave(sid core.SessionID) {
	log.Info().Str("module", "adapters.signal").Str("sid", string(sid)).Msg("leave")
	ctl.Hub.OnDisconnect(sid)
}
