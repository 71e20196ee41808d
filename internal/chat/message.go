// Package chat holds the message model shared by the stores, the relay and the clients.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field limits, in runes.
const (
	MaxIDLength        = 191
	MaxMessageIDLength = 64
	MaxContentLength   = 10000
)

// MaxFrameBytes bounds the JSON encoding of any valid Message inside an event
// envelope. JSON escaping turns one rune into at most six bytes.
const MaxFrameBytes = 6*(2*MaxIDLength+MaxMessageIDLength+MaxContentLength) + 1<<10

// Message is a persisted one-to-one chat message. It is never mutated after creation.
type Message struct {
	ID         string    `json:"id,omitempty" validate:"max=64"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
}

// Draft is the input of an append: a message before it gets an id and a timestamp.
type Draft struct {
	SenderID   string `json:"senderId" validate:"required,max=191"`
	ReceiverID string `json:"receiverId" validate:"required,max=191"`
	Content    string `json:"content" validate:"notblank,max=10000"`
}

// Draft returns the fields of m that a client supplies.
func (m Message) Draft() Draft {
	return Draft{SenderID: m.SenderID, ReceiverID: m.ReceiverID, Content: m.Content}
}

// Involves reports whether m belongs to the conversation {a, b}, in either direction.
func (m Message) Involves(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// NewMessage stamps d with a fresh id and createdAt. precision truncates the
// timestamp to what the backing store can hold; zero keeps nanoseconds.
func NewMessage(d Draft, now time.Time, precision time.Duration) Message {
	at := now.UTC()
	if precision > 0 {
		at = at.Truncate(precision)
	}
	return Message{
		ID:         uuid.NewString(),
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Content:    d.Content,
		CreatedAt:  at,
	}
}

// ConversationKey is the canonical key of the unordered pair {a, b}.
// Both ids are length-prefixed so ids containing separators cannot collide.
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%s:%d:%s", len(a), a, len(b), b)
}

// User is a directory entry used to populate peer selection.
type User struct {
	ID           string    `json:"id" validate:"required"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Image        string    `json:"image,omitempty"`
	RegisteredAt time.Time `json:"registeredAt,omitzero"`
}

// DisplayName falls back to the id when no name is known.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return u.ID
}

// MessageStore is the durable message log.
type MessageStore interface {
	// Append validates and persists d, returning the stored record.
	Append(ctx context.Context, d Draft) (Message, error)
	// ListConversation returns every message between a and b, oldest first.
	// Missing ids or an unknown pair yield an empty slice.
	ListConversation(ctx context.Context, a, b string) ([]Message, error)
}

// UserDirectory lists known users.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]User, error)
	UpsertUser(ctx context.Context, u User) error
}

// Store is what a storage backend provides.
type Store interface {
	MessageStore
	UserDirectory
	Close() error
}
