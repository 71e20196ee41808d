package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MobasirSarkar/chatrelay/internal/chat"
	"github.com/MobasirSarkar/chatrelay/internal/db"
	"github.com/MobasirSarkar/chatrelay/internal/relay"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	*Server
	url      string
	registry *relay.Registry
}

func startServer(t *testing.T, store chat.Store) *testServer {
	t.Helper()
	log := testLogger()
	if store == nil {
		badger, err := db.OpenBadger(t.TempDir(), log)
		require.NoError(t, err)
		t.Cleanup(func() { _ = badger.Close() })
		store = badger
	}
	registry := relay.NewRegistry(log)
	srv := New(store, relay.NewHandler(registry, nil, false, log), Options{
		QueueSize:    8,
		WriteTimeout: time.Second,
		PingInterval: time.Minute,
	}, log)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.ShutdownGracefully(ctx)
	})
	return &testServer{Server: srv, url: hs.URL, registry: registry}
}

func doJSON(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

// failingStore fails every operation.
type failingStore struct{}

var errDown = errors.New("database down")

func (failingStore) Append(context.Context, chat.Draft) (chat.Message, error) {
	return chat.Message{}, errDown
}

func (failingStore) ListConversation(context.Context, string, string) ([]chat.Message, error) {
	return nil, errDown
}

func (failingStore) ListUsers(context.Context) ([]chat.User, error) { return nil, errDown }

func (failingStore) UpsertUser(context.Context, chat.User) error { return errDown }

func (failingStore) Close() error { return nil }

func TestAPI_Post_Then_History(t *testing.T) {
	req := require.New(t)
	s := startServer(t, nil)

	// Given a stored message
	status, body := doJSON(t, http.MethodPost, s.url+"/api/messages",
		`{"senderId":"alice","receiverId":"bob","content":"hello"}`)
	req.Equal(http.StatusCreated, status)
	var created chat.Message
	req.NoError(json.Unmarshal(body, &created))
	req.NotEmpty(created.ID)
	req.Equal("hello", created.Content)
	req.False(created.CreatedAt.IsZero())

	// When bob reads the conversation, with current and legacy parameters
	for _, query := range []string{"selfId=bob&peerId=alice", "senderId=alice&receiverId=bob"} {
		status, body = doJSON(t, http.MethodGet, s.url+"/api/history?"+query, "")
		req.Equal(http.StatusOK, status)
		var history []chat.Message
		req.NoError(json.Unmarshal(body, &history))
		req.Len(history, 1)
		req.Equal(created.ID, history[0].ID)
	}
}

func TestAPI_History_Without_Ids_Is_Empty_List(t *testing.T) {
	req := require.New(t)
	s := startServer(t, nil)

	for _, query := range []string{"", "?selfId=alice", "?selfId=alice&peerId=nobody"} {
		status, body := doJSON(t, http.MethodGet, s.url+"/api/history"+query, "")
		req.Equal(http.StatusOK, status)
		req.JSONEq(`[]`, string(body))
	}
}

func TestAPI_Post_Rejects_Bad_Input(t *testing.T) {
	s := startServer(t, nil)
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{`},
		{name: "missing sender", body: `{"receiverId":"b","content":"x"}`},
		{name: "missing receiver", body: `{"senderId":"a","content":"x"}`},
		{name: "blank content", body: `{"senderId":"a","receiverId":"b","content":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			status, body := doJSON(t, http.MethodPost, s.url+"/api/messages", tt.body)
			req.Equal(http.StatusBadRequest, status)
			var e errorResponse
			req.NoError(json.Unmarshal(body, &e))
			req.NotEmpty(e.Error)
		})
	}

	_, body := doJSON(t, http.MethodGet, s.url+"/api/history?selfId=a&peerId=b", "")
	require.JSONEq(t, `[]`, string(body))
}

func TestAPI_Store_Failures_Are_500(t *testing.T) {
	req := require.New(t)
	s := startServer(t, failingStore{})

	status, body := doJSON(t, http.MethodGet, s.url+"/api/history?selfId=a&peerId=b", "")
	req.Equal(http.StatusInternalServerError, status)
	req.JSONEq(`{"error":"failed to fetch messages"}`, string(body))

	status, body = doJSON(t, http.MethodPost, s.url+"/api/messages", `{"senderId":"a","receiverId":"b","content":"x"}`)
	req.Equal(http.StatusInternalServerError, status)
	req.JSONEq(`{"error":"failed to send message"}`, string(body))

	status, _ = doJSON(t, http.MethodGet, s.url+"/api/users", "")
	req.Equal(http.StatusInternalServerError, status)
}

func TestAPI_Users(t *testing.T) {
	req := require.New(t)
	s := startServer(t, nil)

	status, _ := doJSON(t, http.MethodPut, s.url+"/api/users", `{"id":"alice","name":"Alice"}`)
	req.Equal(http.StatusNoContent, status)
	status, _ = doJSON(t, http.MethodPut, s.url+"/api/users", `{"name":"nobody"}`)
	req.Equal(http.StatusBadRequest, status)

	status, body := doJSON(t, http.MethodGet, s.url+"/api/users", "")
	req.Equal(http.StatusOK, status)
	var users []chat.User
	req.NoError(json.Unmarshal(body, &users))
	req.Len(users, 1)
	req.Equal("Alice", users[0].DisplayName())
}

func TestAPI_Health_And_Methods(t *testing.T) {
	req := require.New(t)
	s := startServer(t, nil)

	status, body := doJSON(t, http.MethodGet, s.url+"/health", "")
	req.Equal(http.StatusOK, status)
	req.Equal("ok\n", string(body))

	status, _ = doJSON(t, http.MethodDelete, s.url+"/api/messages", "")
	req.Equal(http.StatusMethodNotAllowed, status)
}
