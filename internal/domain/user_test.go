package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateIdentity(t *testing.T) {
	require.NoError(t, ValidateIdentity("alice"))
	require.ErrorIs(t, ValidateIdentity("  "), ErrIdentityEmpty)
	require.ErrorIs(t, ValidateIdentity(Identity(strings.Repeat("a", MaxIdentityLen+1))), ErrIdentityTooLong)
}

func TestValidateRoomID(t *testing.T) {
	require.NoError(t, ValidateRoomID("standup"))
	require.ErrorIs(t, ValidateRoomID(""), ErrRoomEmpty)
	require.ErrorIs(t, ValidateRoomID(RoomID(strings.Repeat("r", MaxRoomIDLen+1))), ErrRoomTooLong)
}

func TestConnectionError_Unwraps(t *testing.T) {
	cause := errors.New("refused")
	err := &ConnectionError{Room: "r1", Identity: "alice", Err: &TransportError{Op: "connect", Err: cause}}

	var te *TransportError
	require.ErrorAs(t, err, &te)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), `connect "alice" to room "r1"`)
}

func TestNewMember_DefaultsNameToIdentity(t *testing.T) {
	m := NewMember("alice", "", RoleParticipant)
	require.Equal(t, "alice", m.Name)
	require.False(t, m.AudioEnabled.Load())
}

func TestPhase_String(t *testing.T) {
	require.Equal(t, "reconnecting", PhaseReconnecting.String())
	require.Equal(t, "disconnected", Phase(42).String())
}
