// Package storage persists chat messages in BadgerDB.
package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MessageStore keeps messages under "msg:<room>:<unix-nano>:<id>" so a
// prefix scan returns one room in chronological order.
type MessageStore struct {
	db     *badger.DB
	logger zerolog.Logger
	now    func() time.Time

	// last guards against two appends in the same nanosecond reordering.
	mu   sync.Mutex
	last int64
}

// Open opens (or creates) a store at path. An empty path keeps everything in memory.
func Open(path string) (*MessageStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return NewMessageStore(db), nil
}

func NewMessageStore(db *badger.DB) *MessageStore {
	return &MessageStore{
		db:     db,
		logger: log.With().Str("module", "adapters.storage").Logger(),
		now:    time.Now,
	}
}

func (s *MessageStore) Close() error { return s.db.Close() }

// Accounts returns the account store sharing this database.
func (s *MessageStore) Accounts() *AccountStore { return NewAccountStore(s.db) }

func roomPrefix(room domain.RoomID) []byte {
	return []byte("msg:" + base64.RawURLEncoding.EncodeToString([]byte(room)) + ":")
}

func (s *MessageStore) stamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.now().UnixNano()
	if n <= s.last {
		n = s.last + 1
	}
	s.last = n
	return time.Unix(0, n).UTC()
}

// AppendMessage stores one line and returns the persisted record.
func (s *MessageStore) AppendMessage(ctx context.Context, room domain.RoomID, senderIdentity domain.Identity, senderName, text string) (domain.StoredMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredMessage{}, err
	}
	if err := domain.ValidateRoomID(room); err != nil {
		return domain.StoredMessage{}, err
	}
	at := s.stamp()
	msg := domain.StoredMessage{
		ID:             uuid.NewString(),
		Room:           room,
		SenderIdentity: senderIdentity,
		SenderName:     senderName,
		Message:        text,
		Timestamp:      at,
	}
	data, err := marshal(record{
		ID:             msg.ID,
		Room:           string(room),
		SenderIdentity: string(senderIdentity),
		SenderName:     senderName,
		Message:        text,
		UnixNano:       at.UnixNano(),
	})
	if err != nil {
		return domain.StoredMessage{}, err
	}
	key := fmt.Sprintf("%s%019d:%s", roomPrefix(room), at.UnixNano(), msg.ID)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	}); err != nil {
		return domain.StoredMessage{}, fmt.Errorf("store message: %w", err)
	}
	s.logger.Debug().Str("room", string(room)).Str("id", msg.ID).Msg("message stored")
	return msg, nil
}

// History returns the oldest limit messages of room in chronological order. limit <= 0 means all.
func (s *MessageStore) History(ctx context.Context, room domain.RoomID, limit int) ([]domain.StoredMessage, error) {
	prefix := roomPrefix(room)
	var out []domain.StoredMessage

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(v []byte) error {
				var r record
				if err := unmarshal(v, &r); err != nil {
					return fmt.Errorf("failed to unmarshal message: %w", err)
				}
				out = append(out, domain.StoredMessage{
					ID:             r.ID,
					Room:           domain.RoomID(r.Room),
					SenderIdentity: domain.Identity(r.SenderIdentity),
					SenderName:     r.SenderName,
					Message:        r.Message,
					Timestamp:      time.Unix(0, r.UnixNano).UTC(),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error during history fetch: %w", err)
	}
	return out, nil
}
