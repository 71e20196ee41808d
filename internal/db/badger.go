package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MobasirSarkar/chatrelay/internal/chat"
	"github.com/dgraph-io/badger/v4"
)

const (
	messagePrefix = "msg:"
	userPrefix    = "user:"
)

// BadgerStore keeps messages in an embedded BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

// OpenBadger opens (or creates) a store at path.
func OpenBadger(path string, log *slog.Logger) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	log.Info("badger store opened", "path", path)
	return NewBadgerStore(db, log), nil
}

// NewBadgerStore wraps an already opened database.
func NewBadgerStore(db *badger.DB, log *slog.Logger) *BadgerStore {
	return &BadgerStore{db: db, log: log, now: time.Now}
}

// conversationPrefix is the key prefix shared by all messages of {a, b}.
func conversationPrefix(a, b string) string {
	return messagePrefix + chat.ConversationKey(a, b) + ":"
}

// messageKey is "msg:{conversation}:{unix nanos, 19 digits}:{id}". The zero
// padding keeps lexicographic order equal to chronological order and the id
// separates messages stored within the same nanosecond.
func messageKey(m chat.Message) []byte {
	return fmt.Appendf(nil, "%s%019d:%s",
		conversationPrefix(m.SenderID, m.ReceiverID),
		m.CreatedAt.UnixNano(),
		m.ID,
	)
}

func (s *BadgerStore) Append(_ context.Context, d chat.Draft) (chat.Message, error) {
	m, err := prepareAppend(d, s.now(), 0)
	if err != nil {
		return chat.Message{}, err
	}
	value, err := json.Marshal(m)
	if err != nil {
		return chat.Message{}, fmt.Errorf("encode message: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(m), value)
	}); err != nil {
		return chat.Message{}, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

func (s *BadgerStore) ListConversation(_ context.Context, a, b string) ([]chat.Message, error) {
	messages := []chat.Message{}
	if a == "" || b == "" {
		return messages, nil
	}
	prefix := []byte(conversationPrefix(a, b))
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m chat.Message
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &m)
			}); err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return messages, nil
}

func (s *BadgerStore) ListUsers(_ context.Context) ([]chat.User, error) {
	users := []chat.User{}
	prefix := []byte(userPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var u chat.User
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &u)
			}); err != nil {
				return err
			}
			users = append(users, u)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *BadgerStore) UpsertUser(_ context.Context, u chat.User) error {
	if err := chat.ValidateUser(u); err != nil {
		return err
	}
	key := []byte(userPrefix + u.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		if u.RegisteredAt.IsZero() {
			u.RegisteredAt = s.now().UTC()
			// keep the first registration time on updates
			if item, err := txn.Get(key); err == nil {
				var existing chat.User
				if err := item.Value(func(v []byte) error {
					return json.Unmarshal(v, &existing)
				}); err == nil && !existing.RegisteredAt.IsZero() {
					u.RegisteredAt = existing.RegisteredAt
				}
			}
		}
		value, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		return txn.Set(key, value)
	})
}

func (s *BadgerStore) Close() error {
	s.log.Info("closing badger store")
	return s.db.Close()
}
