package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voxroom/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// memAccounts is an in-memory AccountStore.
type memAccounts struct {
	mu    sync.Mutex
	users map[string]domain.Account
}

func (m *memAccounts) CreateAccount(_ context.Context, username, hash string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return domain.Account{}, domain.ErrUsernameTaken
	}
	acc := domain.Account{ID: uuid.NewString(), Username: username, PasswordHash: hash, CreatedAt: time.Now()}
	m.users[username] = acc
	return acc, nil
}

func (m *memAccounts) FindAccount(_ context.Context, username string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.users[username]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return acc, nil
}

func newTestAccounts() *Accounts {
	return NewAccounts(&memAccounts{users: map[string]domain.Account{}}, AccountsConfig{
		Secret:   "jwt-secret",
		Reserved: []string{"ai-agent"},
	})
}

func TestRegister_SignsInAndHashes(t *testing.T) {
	a := newTestAccounts()
	sess, err := a.Register(context.Background(), " alice ", "pw")
	require.NoError(t, err)
	require.Equal(t, "alice", sess.Account.Username)
	require.NotEqual(t, "pw", sess.Account.PasswordHash)

	claims, err := a.Verify(sess.Token)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, sess.Account.ID, claims.Subject)
	require.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestRegister_Rejects(t *testing.T) {
	a := newTestAccounts()
	ctx := context.Background()
	_, err := a.Register(ctx, "alice", "pw")
	require.NoError(t, err)

	_, err = a.Register(ctx, "alice", "other")
	require.ErrorIs(t, err, domain.ErrUsernameTaken)
	_, err = a.Register(ctx, "AI-Agent", "pw")
	require.ErrorIs(t, err, domain.ErrUsernameTaken)
	_, err = a.Register(ctx, "", "pw")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = a.Register(ctx, "bob", "")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin(t *testing.T) {
	a := newTestAccounts()
	ctx := context.Background()
	_, err := a.Register(ctx, "alice", "pw")
	require.NoError(t, err)

	sess, err := a.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	require.Equal(t, "alice", sess.Account.Username)

	_, err = a.Login(ctx, "alice", "wrong")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = a.Login(ctx, "nobody", "pw")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestVerify_RejectsForeignAndExpired(t *testing.T) {
	a := newTestAccounts()
	sess, err := a.Register(context.Background(), "alice", "pw")
	require.NoError(t, err)

	other := NewAccounts(&memAccounts{users: map[string]domain.Account{}}, AccountsConfig{Secret: "different"})
	_, err = other.Verify(sess.Token)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	a.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	_, err = a.Verify(sess.Token)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	// Join tokens are not session tokens.
	join, err := newTestIssuer().IssueJoinToken(context.Background(), "r1", "alice", domain.RoleParticipant)
	require.NoError(t, err)
	_, err = newTestAccounts().Verify(join)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestComparePassword(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	ok, err := ComparePassword("secret", hash)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = ComparePassword("nope", hash)
	require.NoError(t, err)
	require.False(t, ok)
}
