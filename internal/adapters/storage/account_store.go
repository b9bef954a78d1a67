package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AccountStore keeps one record per username under "user:<username>".
type AccountStore struct {
	db     *badger.DB
	logger zerolog.Logger
	now    func() time.Time
}

func NewAccountStore(db *badger.DB) *AccountStore {
	return &AccountStore{
		db:     db,
		logger: log.With().Str("module", "adapters.storage").Logger(),
		now:    time.Now,
	}
}

func accountKey(username string) []byte {
	return []byte("user:" + base64.RawURLEncoding.EncodeToString([]byte(username)))
}

// CreateAccount stores a new user. An existing username fails with domain.ErrUsernameTaken.
func (s *AccountStore) CreateAccount(ctx context.Context, username, passwordHash string) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}
	acc := domain.Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}
	data, err := marshalAccount(accountRecord{
		ID:           acc.ID,
		Username:     acc.Username,
		PasswordHash: acc.PasswordHash,
		UnixNano:     acc.CreatedAt.UnixNano(),
	})
	if err != nil {
		return domain.Account{}, err
	}
	key := accountKey(username)
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return domain.ErrUsernameTaken
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key, data)
	})
	// A concurrent registration of the same name loses the commit race.
	if errors.Is(err, badger.ErrConflict) {
		err = domain.ErrUsernameTaken
	}
	if err != nil {
		if errors.Is(err, domain.ErrUsernameTaken) {
			return domain.Account{}, err
		}
		return domain.Account{}, fmt.Errorf("store account: %w", err)
	}
	s.logger.Debug().Str("username", username).Msg("account stored")
	return acc, nil
}

// FindAccount loads a user by name, or fails with domain.ErrAccountNotFound.
func (s *AccountStore) FindAccount(ctx context.Context, username string) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}
	var r accountRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return unmarshalAccount(v, &r) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	return domain.Account{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		CreatedAt:    time.Unix(0, r.UnixNano).UTC(),
	}, nil
}
