package core

import (
	"context"

	"github.com/dkeye/voxroom/internal/domain"
)

// ConnectOptions are recognised by TransportSession.Connect.
type ConnectOptions struct {
	AutoSubscribe bool
	Dynacast      bool
	// AutoReconnect lets the session move through PhaseReconnecting after a
	// network failure instead of going straight to PhaseDisconnected.
	AutoReconnect bool
}

// ParticipantInfo is what the transport knows about one endpoint in the room.
type ParticipantInfo struct {
	Identity     domain.Identity
	Name         string
	Speaking     bool
	AudioEnabled bool
}

// DisplayName prefers the human name and falls back to the identity.
func (p ParticipantInfo) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return string(p.Identity)
}

// TransportSession is one connection between an identity and a room.
//
// A session is single-use. Events() exists from construction, so a consumer
// started before Connect cannot miss anything. The channel is closed once the
// session is terminal: after Disconnect (even a failed one), after a failed
// Connect, or after an unrecoverable network failure. Consumers must drain it.
type TransportSession interface {
	Connect(ctx context.Context, url, token string, opts ConnectOptions) error
	Disconnect(ctx context.Context) error
	SendText(ctx context.Context, text string) error
	SetLocalAudioEnabled(ctx context.Context, enabled bool) error

	Events() <-chan Event

	Local() ParticipantInfo
	// Remotes enumerates remote participants in join order.
	Remotes() []ParticipantInfo
	Phase() domain.Phase
	// TransportProtocol samples the network protocol of the active media path.
	TransportProtocol(ctx context.Context) (string, error)
}

// TransportProvider creates sessions and owns process-wide transport resources.
type TransportProvider interface {
	NewSession() TransportSession
	Close() error
}
