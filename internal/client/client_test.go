package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MobasirSarkar/chatrelay/internal/chat"
	"github.com/MobasirSarkar/chatrelay/internal/db"
	"github.com/MobasirSarkar/chatrelay/internal/relay"
	"github.com/MobasirSarkar/chatrelay/internal/server"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := db.OpenBadger(t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := server.New(store, relay.NewHandler(relay.NewRegistry(log), nil, false, log), server.Options{}, log)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return New(hs.URL+"/", time.Second)
}

func TestClient_Messages_Round_Trip(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c := newTestClient(t)

	empty, err := c.ListConversation(ctx, "alice", "bob")
	req.NoError(err)
	req.NotNil(empty)
	req.Empty(empty)

	sent, err := c.PostMessage(ctx, chat.Draft{SenderID: "alice", ReceiverID: "bob", Content: "hello"})
	req.NoError(err)
	req.NotEmpty(sent.ID)

	got, err := c.ListConversation(ctx, "bob", "alice")
	req.NoError(err)
	req.Len(got, 1)
	req.Equal(sent.ID, got[0].ID)
	req.True(sent.CreatedAt.Equal(got[0].CreatedAt))
}

func TestClient_Rejected_Draft_Is_Validation_Error(t *testing.T) {
	_, err := newTestClient(t).PostMessage(context.Background(), chat.Draft{SenderID: "alice", ReceiverID: "bob"})
	require.ErrorIs(t, err, chat.ErrValidation)
}

func TestClient_Users(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c := newTestClient(t)

	req.NoError(c.UpsertUser(ctx, chat.User{ID: "bob", Email: "bob@example.com"}))
	req.ErrorIs(c.UpsertUser(ctx, chat.User{}), chat.ErrValidation)

	users, err := c.ListUsers(ctx)
	req.NoError(err)
	req.Len(users, 1)
	req.Equal("bob", users[0].DisplayName())
	req.Equal("bob@example.com", users[0].Email)
}

func TestClient_Server_Error(t *testing.T) {
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to fetch messages"}`))
	}))
	defer hs.Close()

	_, err := New(hs.URL, time.Second).ListConversation(context.Background(), "a", "b")
	require.ErrorContains(t, err, "failed to fetch messages")
	require.NotErrorIs(t, err, chat.ErrValidation)
}

func TestClient_WebSocketURL(t *testing.T) {
	require.Equal(t, "http://localhost:8080/ws", New("http://localhost:8080/", 0).WebSocketURL())
}
