package chat

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConversationKey_Is_Symmetric(t *testing.T) {
	req := require.New(t)
	req.Equal(ConversationKey("alice", "bob"), ConversationKey("bob", "alice"))
	req.NotEqual(ConversationKey("alice", "bob"), ConversationKey("alice", "carol"))
}

func TestConversationKey_Separators_Do_Not_Collide(t *testing.T) {
	req := require.New(t)
	req.NotEqual(ConversationKey("a:1", "b"), ConversationKey("a", "1:b"))
	req.NotEqual(ConversationKey("a", "b:c"), ConversationKey("a:b", "c"))
}

func TestMessage_Involves(t *testing.T) {
	req := require.New(t)
	m := Message{SenderID: "A", ReceiverID: "B"}

	req.True(m.Involves("A", "B"))
	req.True(m.Involves("B", "A"))
	req.False(m.Involves("A", "C"))
	req.False(m.Involves("C", "D"))
}

func TestNewMessage_Truncates_To_Precision(t *testing.T) {
	req := require.New(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.FixedZone("X", 3600))

	m := NewMessage(Draft{SenderID: "A", ReceiverID: "B", Content: "hi"}, now, time.Millisecond)

	req.NotEmpty(m.ID)
	req.Equal(time.UTC, m.CreatedAt.Location())
	req.Equal(123000000, m.CreatedAt.Nanosecond())
	req.Equal("hi", m.Content)
}

func TestValidateDraft(t *testing.T) {
	tests := []struct {
		name    string
		draft   Draft
		missing string
	}{
		{"valid", Draft{SenderID: "A", ReceiverID: "B", Content: "hi"}, ""},
		{"no sender", Draft{ReceiverID: "B", Content: "hi"}, "senderId"},
		{"no receiver", Draft{SenderID: "A", Content: "hi"}, "receiverId"},
		{"empty content", Draft{SenderID: "A", ReceiverID: "B"}, "content"},
		{"blank content", Draft{SenderID: "A", ReceiverID: "B", Content: "  \n"}, "content"},
		{"longest content", Draft{SenderID: "A", ReceiverID: "B", Content: strings.Repeat("é", MaxContentLength)}, ""},
		{"content too long", Draft{SenderID: "A", ReceiverID: "B", Content: strings.Repeat("x", MaxContentLength+1)}, "content longer than 10000"},
		{"longest sender", Draft{SenderID: strings.Repeat("a", MaxIDLength), ReceiverID: "B", Content: "hi"}, ""},
		{"sender too long", Draft{SenderID: strings.Repeat("a", MaxIDLength+1), ReceiverID: "B", Content: "hi"}, "senderId longer than 191"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDraft(tt.draft)
			if tt.missing == "" {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, ErrValidation))
			require.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestUser_DisplayName(t *testing.T) {
	req := require.New(t)
	req.Equal("Alice", User{ID: "u1", Name: " Alice "}.DisplayName())
	req.Equal("u1", User{ID: "u1"}.DisplayName())
}

func TestValidateMessage_Bounds_Client_Id(t *testing.T) {
	req := require.New(t)
	m := Message{SenderID: "A", ReceiverID: "B", Content: "hi"}

	m.ID = strings.Repeat("i", MaxMessageIDLength)
	req.NoError(ValidateMessage(m))

	m.ID = strings.Repeat("i", MaxMessageIDLength+1)
	req.ErrorIs(ValidateMessage(m), ErrValidation)

	m.ID, m.Content = "m1", " "
	req.ErrorIs(ValidateMessage(m), ErrValidation)
}
