// Package client calls the relay's HTTP history and directory API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MobasirSarkar/chatrelay/internal/chat"
)

// Client is an HTTP client for one relay server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL (e.g. http://localhost:8080).
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WebSocketURL is the relay endpoint on the same server.
func (c *Client) WebSocketURL() string {
	return c.baseURL + "/ws"
}

// ListConversation fetches the history between self and peer, oldest first.
func (c *Client) ListConversation(ctx context.Context, self, peer string) ([]chat.Message, error) {
	q := url.Values{}
	q.Set("selfId", self)
	q.Set("peerId", peer)
	var messages []chat.Message
	if err := c.do(ctx, http.MethodGet, "/api/history?"+q.Encode(), nil, &messages); err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, nil
}

// PostMessage persists d and returns the stored record. A rejected draft
// yields an error wrapping chat.ErrValidation.
func (c *Client) PostMessage(ctx context.Context, d chat.Draft) (chat.Message, error) {
	var msg chat.Message
	if err := c.do(ctx, http.MethodPost, "/api/messages", d, &msg); err != nil {
		return chat.Message{}, fmt.Errorf("post message: %w", err)
	}
	if msg.ID == "" {
		return chat.Message{}, fmt.Errorf("post message: server returned no id")
	}
	return msg, nil
}

// ListUsers fetches the user directory.
func (c *Client) ListUsers(ctx context.Context) ([]chat.User, error) {
	var users []chat.User
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpsertUser creates or updates a directory entry.
func (c *Client) UpsertUser(ctx context.Context, u chat.User) error {
	if err := c.do(ctx, http.MethodPut, "/api/users", u, nil); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		if resp.StatusCode == http.StatusBadRequest {
			return fmt.Errorf("%w: %s", chat.ErrValidation, apiErr.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, apiErr.Error)
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
