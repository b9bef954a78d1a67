package signal

import "github.com/dkeye/voxroom/internal/wire"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, wire.Envelope{Type: wire.TypePong})
}
