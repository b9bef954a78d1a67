package domain

import "sync/atomic"

// Member represents a participant's presence in a room on the voice server.
// Flags are atomics because relays and signal handlers touch them concurrently.
type Member struct {
	Identity Identity
	Name     string
	Role     Role

	// AutoSubscribe: the member wants every published track in the room.
	AutoSubscribe bool
	// Dynacast: stop forwarding this member's audio while it is muted.
	Dynacast bool

	AudioEnabled atomic.Bool
	Speaking     atomic.Bool
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(identity Identity, name string, role Role) *Member {
	if name == "" {
		name = string(identity)
	}
	return &Member{Identity: identity, Name: name, Role: role}
}
