package db

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MobasirSarkar/chatrelay/internal/chat"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// steppingClock returns a clock that advances by step on every read.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

// testStore runs the behaviour every backend must share.
func testStore(t *testing.T, store chat.Store) {
	t.Run("append stamps id and time", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()

		m1, err := store.Append(ctx, chat.Draft{SenderID: "stamp-a", ReceiverID: "stamp-b", Content: "one"})
		req.NoError(err)
		m2, err := store.Append(ctx, chat.Draft{SenderID: "stamp-a", ReceiverID: "stamp-b", Content: "one"})
		req.NoError(err)

		req.NotEmpty(m1.ID)
		req.NotEqual(m1.ID, m2.ID)
		req.False(m1.CreatedAt.IsZero())
		req.Equal(time.UTC, m1.CreatedAt.Location())
		req.Equal("one", m1.Content)
	})

	t.Run("append rejects incomplete drafts", func(t *testing.T) {
		ctx := context.Background()
		for _, d := range []chat.Draft{
			{ReceiverID: "b", Content: "x"},
			{SenderID: "a", Content: "x"},
			{SenderID: "a", ReceiverID: "b"},
			{SenderID: "a", ReceiverID: "b", Content: "  \t"},
		} {
			_, err := store.Append(ctx, d)
			require.ErrorIs(t, err, chat.ErrValidation, "%+v", d)
		}
		got, err := store.ListConversation(ctx, "a", "b")
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("conversation is symmetric and chronological", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()

		// Given messages in both directions and noise in other conversations
		var want []string
		for i, d := range []chat.Draft{
			{SenderID: "alice", ReceiverID: "bob", Content: "hi"},
			{SenderID: "bob", ReceiverID: "alice", Content: "hey"},
			{SenderID: "alice", ReceiverID: "carol", Content: "other"},
			{SenderID: "alice", ReceiverID: "bob", Content: "how are you"},
			{SenderID: "carol", ReceiverID: "bob", Content: "other"},
		} {
			m, err := store.Append(ctx, d)
			req.NoError(err)
			if i != 2 && i != 4 {
				want = append(want, m.ID)
			}
		}

		// When either side lists the conversation
		ab, err := store.ListConversation(ctx, "alice", "bob")
		req.NoError(err)
		ba, err := store.ListConversation(ctx, "bob", "alice")
		req.NoError(err)

		// Then both see the same three messages oldest first
		req.Equal(ab, ba)
		got := make([]string, 0, len(ab))
		for i, m := range ab {
			got = append(got, m.ID)
			req.True(m.Involves("alice", "bob"))
			if i > 0 {
				req.False(m.CreatedAt.Before(ab[i-1].CreatedAt))
			}
		}
		req.Equal(want, got)
	})

	t.Run("unknown or missing ids list nothing", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		for _, pair := range [][2]string{{"nobody", "ghost"}, {"", "bob"}, {"alice", ""}, {"", ""}} {
			got, err := store.ListConversation(ctx, pair[0], pair[1])
			req.NoError(err)
			req.NotNil(got)
			req.Empty(got)
		}
	})

	t.Run("user directory upsert", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()

		req.ErrorIs(store.UpsertUser(ctx, chat.User{Name: "no id"}), chat.ErrValidation)

		req.NoError(store.UpsertUser(ctx, chat.User{ID: "u2", Name: "Zed"}))
		req.NoError(store.UpsertUser(ctx, chat.User{ID: "u1", Name: "Ann", Email: "ann@example.com"}))
		users, err := store.ListUsers(ctx)
		req.NoError(err)
		req.Len(users, 2)
		req.Equal("u1", users[0].ID)
		req.Equal("u2", users[1].ID)
		registered := users[0].RegisteredAt
		req.False(registered.IsZero())

		// When the user is synced again, the profile changes and the
		// registration time stays
		req.NoError(store.UpsertUser(ctx, chat.User{ID: "u1", Name: "Anne"}))
		users, err = store.ListUsers(ctx)
		req.NoError(err)
		req.Len(users, 2)
		req.Equal("Anne", users[0].Name)
		req.True(registered.Equal(users[0].RegisteredAt))
	})
}
