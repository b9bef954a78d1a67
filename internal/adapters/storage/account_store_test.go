package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/dkeye/voxroom/internal/domain"
	"github.com/stretchr/testify/require"
)

func Test_Create_And_Find_Account(t *testing.T) {
	req := require.New(t)
	s := newStore(t).Accounts()
	ctx := context.Background()

	acc, err := s.CreateAccount(ctx, "alice", "hash")
	req.NoError(err)
	req.NotEmpty(acc.ID)

	got, err := s.FindAccount(ctx, "alice")
	req.NoError(err)
	req.Equal(acc.ID, got.ID)
	req.Equal("hash", got.PasswordHash)
	req.Equal(acc.CreatedAt.UnixNano(), got.CreatedAt.UnixNano())
}

func Test_Duplicate_Username_Is_Taken(t *testing.T) {
	s := newStore(t).Accounts()
	ctx := context.Background()
	_, err := s.CreateAccount(ctx, "alice", "h1")
	require.NoError(t, err)
	_, err = s.CreateAccount(ctx, "alice", "h2")
	require.ErrorIs(t, err, domain.ErrUsernameTaken)

	got, err := s.FindAccount(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "h1", got.PasswordHash)
}

func Test_Concurrent_Registration_Keeps_One(t *testing.T) {
	s := newStore(t).Accounts()
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CreateAccount(context.Background(), "bob", "h"); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else {
				require.ErrorIs(t, err, domain.ErrUsernameTaken)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)
}

func Test_Find_Missing_Account(t *testing.T) {
	_, err := newStore(t).Accounts().FindAccount(context.Background(), "nobody")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}
