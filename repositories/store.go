//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
// Package repositories implements the hub's collaborator contracts on
// BadgerDB: conversation membership, message persistence, the social
// graph and online status. In production these would live behind the
// CRUD backend; the contracts in contract/ are the only coupling.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"live-hub/domain"
)

// Key layout. The message key embeds a 19-digit zero-padded nanosecond
// timestamp so a prefix scan returns messages in chronological order,
// with the uuid as a collision disconnector for same-nanosecond inserts.
const (
	msgKeyFmt    = "msg:%s:%019d:%s"
	memberKeyFmt = "member:%s:%s"
	followKeyFmt = "follow:%s:%s"
	statusKeyFmt = "status:%s"
	readKeyFmt   = "read:%s:%s"
)

type Store struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewStore(db *badger.DB, log *slog.Logger, limitMessages *int) *Store {
	return &Store{db: db, log: log, limitMessages: limitMessages}
}

type storedMessage struct {
	ID           string     `json:"id"`
	Conversation string     `json:"conversation"`
	Sender       string     `json:"sender"`
	Type         string     `json:"type"`
	Content      string     `json:"content"`
	ReplyTo      *uuid.UUID `json:"replyTo,omitempty"`
	At           int64      `json:"at"`
}

type storedStatus struct {
	IsOnline bool  `json:"isOnline"`
	LastSeen int64 `json:"lastSeen"`
}

func (s *Store) IsConversationMember(_ context.Context, conversation domain.ConversationID, identity domain.Identity) (bool, error) {
	key := []byte(fmt.Sprintf(memberKeyFmt, conversation, identity))
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListConversationMembers(_ context.Context, conversation domain.ConversationID) ([]domain.Identity, error) {
	prefix := []byte(fmt.Sprintf("member:%s:", conversation))
	var members []domain.Identity
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			members = append(members, domain.Identity(key[len(prefix):]))
		}
		return nil
	})
	return members, err
}

// AddMember records authoritative conversation membership. Used by the
// seeding tool and tests; the CRUD backend owns it in production.
func (s *Store) AddMember(_ context.Context, conversation domain.ConversationID, identity domain.Identity) error {
	key := []byte(fmt.Sprintf(memberKeyFmt, conversation, identity))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, nil)
	})
}

// InsertMessage persists a message, assigning the id and timestamp.
func (s *Store) InsertMessage(_ context.Context, conversation domain.ConversationID,
	sender domain.Identity, content string, replyTo *uuid.UUID) (domain.Message, error) {

	msg := domain.Message{
		ID:           uuid.New(),
		Conversation: conversation,
		Sender:       sender,
		Type:         domain.MessageTypeText,
		Content:      content,
		ReplyTo:      replyTo,
		CreatedAt:    time.Now().UTC(),
	}

	key := fmt.Sprintf(msgKeyFmt, conversation, msg.CreatedAt.UnixNano(), msg.ID)
	value, err := json.Marshal(toStored(msg))
	if err != nil {
		return domain.Message{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// ListMessages retrieves a page of messages for a conversation, newest
// first, using a reverse prefix scan. The returned cursor is the key
// suffix of the last row; passing it back resumes the scan after it.
func (s *Store) ListMessages(conversation domain.ConversationID, cursor *string) ([]domain.Message, *string, error) {
	prefixStr := fmt.Sprintf("msg:%s:", conversation)
	prefix := []byte(prefixStr)

	var rows [][]byte
	var lastKey string
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk back.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if s.limitMessages != nil && len(rows) == *s.limitMessages {
				s.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *s.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			if err := item.Value(func(value []byte) error {
				rows = append(rows, append([]byte(nil), value...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(rows))
	for _, raw := range rows {
		var stored storedMessage
		if err := json.Unmarshal(raw, &stored); err != nil {
			return nil, nil, err
		}
		msg, err := fromStored(stored)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, msg)
	}
	return messages, &lastKey, nil
}

// MarkRead stores the read watermark of one identity in one
// conversation. A nil watermark means "everything so far".
func (s *Store) MarkRead(_ context.Context, conversation domain.ConversationID, identity domain.Identity, upTo *uuid.UUID) error {
	key := []byte(fmt.Sprintf(readKeyFmt, conversation, identity))
	var value []byte
	if upTo != nil {
		value = []byte(upTo.String())
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// ReadWatermark returns the stored watermark, or nil when the identity
// never marked anything read (or marked "everything so far").
func (s *Store) ReadWatermark(conversation domain.ConversationID, identity domain.Identity) (*uuid.UUID, error) {
	key := []byte(fmt.Sprintf(readKeyFmt, conversation, identity))
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	id, err := uuid.Parse(string(raw))
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// AreMutualConnections reports whether a and b follow each other.
func (s *Store) AreMutualConnections(_ context.Context, a, b domain.Identity) (bool, error) {
	keys := [][]byte{
		[]byte(fmt.Sprintf(followKeyFmt, a, b)),
		[]byte(fmt.Sprintf(followKeyFmt, b, a)),
	}
	mutual := true
	err := s.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			if _, err := txn.Get(key); err == badger.ErrKeyNotFound {
				mutual = false
				return nil
			} else if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return mutual, nil
}

// AddFollow records a one-way follow edge. Seeding/tests only.
func (s *Store) AddFollow(_ context.Context, follower, followee domain.Identity) error {
	key := []byte(fmt.Sprintf(followKeyFmt, follower, followee))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, nil)
	})
}

func (s *Store) SetOnlineStatus(_ context.Context, identity domain.Identity, online bool, lastSeen time.Time) error {
	key := []byte(fmt.Sprintf(statusKeyFmt, identity))
	value, err := json.Marshal(storedStatus{IsOnline: online, LastSeen: lastSeen.UnixNano()})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// OnlineStatus returns the persisted flag and last-seen. The registry,
// not this record, is authoritative for live presence; this exists for
// out-of-band staleness checks.
func (s *Store) OnlineStatus(identity domain.Identity) (bool, time.Time, error) {
	key := []byte(fmt.Sprintf(statusKeyFmt, identity))
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, err
	}
	var stored storedStatus
	if err := json.Unmarshal(raw, &stored); err != nil {
		return false, time.Time{}, err
	}
	return stored.IsOnline, time.Unix(0, stored.LastSeen).UTC(), nil
}

func toStored(m domain.Message) storedMessage {
	return storedMessage{
		ID:           m.ID.String(),
		Conversation: m.Conversation.String(),
		Sender:       m.Sender.String(),
		Type:         m.Type,
		Content:      m.Content,
		ReplyTo:      m.ReplyTo,
		At:           m.CreatedAt.UnixNano(),
	}
}

func fromStored(stored storedMessage) (domain.Message, error) {
	id, err := uuid.Parse(stored.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:           id,
		Conversation: domain.ConversationID(stored.Conversation),
		Sender:       domain.Identity(stored.Sender),
		Type:         stored.Type,
		Content:      stored.Content,
		ReplyTo:      stored.ReplyTo,
		CreatedAt:    time.Unix(0, stored.At).UTC(),
	}, nil
}
