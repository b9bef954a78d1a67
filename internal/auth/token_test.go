package auth

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/voxroom/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestIssuer() *Issuer {
	return NewIssuer(Config{APIKey: "devkey", APISecret: "secret", AgentName: "AI Assistant"})
}

func TestIssueAndValidate_Participant(t *testing.T) {
	iss := newTestIssuer()
	tok, err := iss.IssueJoinToken(context.Background(), "r1", "alice", domain.RoleParticipant)
	require.NoError(t, err)

	claims, err := iss.Validate(tok)
	require.NoError(t, err)
	require.Equal(t, domain.Identity("alice"), claims.Identity())
	require.Equal(t, "alice", claims.Name)
	require.Equal(t, domain.RoomID("r1"), claims.Video.Room)
	require.True(t, claims.Video.CanPublishData)
	require.WithinDuration(t, time.Now().Add(10*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestIssue_AgentGetsNameAndLongerTTL(t *testing.T) {
	iss := newTestIssuer()
	tok, err := iss.IssueJoinToken(context.Background(), "r1", "ai-agent", domain.RoleAgent)
	require.NoError(t, err)

	claims, err := iss.Validate(tok)
	require.NoError(t, err)
	require.Equal(t, "AI Assistant", claims.Name)
	require.Equal(t, domain.RoleAgent, claims.Role)
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestIssue_RejectsBadInput(t *testing.T) {
	iss := newTestIssuer()
	_, err := iss.IssueJoinToken(context.Background(), "", "alice", domain.RoleParticipant)
	require.ErrorIs(t, err, domain.ErrRoomEmpty)
	_, err = iss.IssueJoinToken(context.Background(), "r1", "  ", domain.RoleParticipant)
	require.ErrorIs(t, err, domain.ErrIdentityEmpty)
	_, err = iss.IssueJoinToken(context.Background(), "r1", "alice", domain.Role("admin"))
	require.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	iss := newTestIssuer()
	tok, err := iss.IssueJoinToken(context.Background(), "r1", "alice", domain.RoleParticipant)
	require.NoError(t, err)

	other := NewIssuer(Config{APIKey: "devkey", APISecret: "other"})
	_, err = other.Validate(tok)
	require.ErrorIs(t, err, domain.ErrInvalidToken)

	wrongIssuer := NewIssuer(Config{APIKey: "prodkey", APISecret: "secret"})
	_, err = wrongIssuer.Validate(tok)
	require.ErrorIs(t, err, domain.ErrInvalidToken)

	later := newTestIssuer()
	later.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = later.Validate(tok)
	require.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = iss.Validate("garbage")
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}
