// Package session is the client side of the relay: one Controller per open
// chat view, owning its connection and the list of displayed messages.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MobasirSarkar/chatrelay/internal/chat"
	"github.com/MobasirSarkar/chatrelay/internal/ws"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoPeer       = errors.New("no peer selected")
	ErrInactive     = errors.New("session is not active")
	ErrNoIdentity   = errors.New("user id required")
)

// HistoryAPI is the durable side: history reads and message writes.
type HistoryAPI interface {
	ListConversation(ctx context.Context, self, peer string) ([]chat.Message, error)
	PostMessage(ctx context.Context, d chat.Draft) (chat.Message, error)
}

// Options configure the relay connection.
type Options struct {
	RelayURL         string
	WriteTimeout     time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// Controller reconciles history fetched over HTTP with realtime events.
type Controller struct {
	api  HistoryAPI
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	self     string
	token    string
	peer     string
	gen      uint64 // bumped on every peer or identity change
	messages []chat.Message
	seen     map[string]struct{}
	link     *link

	subMu sync.Mutex
	subs  map[*Subscription]struct{}
}

func New(api HistoryAPI, opts Options, log *slog.Logger) *Controller {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = 500 * time.Millisecond
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	return &Controller{
		api:  api,
		opts: opts,
		log:  log,
		seen: make(map[string]struct{}),
		subs: make(map[*Subscription]struct{}),
	}
}

// Activate connects as userID and joins its room. Activating again as the same
// user is a no-op; a different user replaces the connection and clears the view.
func (c *Controller) Activate(ctx context.Context, userID, token string) error {
	if userID == "" {
		return ErrNoIdentity
	}
	c.mu.Lock()
	if c.link != nil && c.self == userID {
		c.mu.Unlock()
		return nil
	}
	old := c.link
	c.link = nil
	if c.self != userID {
		c.resetLocked()
		c.peer = ""
	}
	c.self, c.token = userID, token
	c.mu.Unlock()

	if old != nil {
		old.close()
	}

	conn, err := c.dial(ctx, userID, token)
	if err != nil {
		return fmt.Errorf("connect relay: %w", err)
	}
	c.mu.Lock()
	if c.self != userID || c.link != nil {
		// a concurrent Activate won
		c.mu.Unlock()
		conn.CloseNow()
		return nil
	}
	l := newLink(conn)
	c.link = l
	c.mu.Unlock()

	go c.run(l, userID, token)
	c.log.Info("session activated", "user", userID)
	c.notify()
	return nil
}

// Close tears down the connection. The displayed messages are kept.
func (c *Controller) Close() {
	c.mu.Lock()
	l := c.link
	c.link = nil
	c.mu.Unlock()
	if l != nil {
		l.close()
		c.log.Info("session closed", "user", c.Self())
	}
}

// SelectPeer switches the conversation and loads its history. The view is
// replaced by the fetched history; a fetch overtaken by a newer selection is
// discarded.
func (c *Controller) SelectPeer(ctx context.Context, peer string) error {
	c.mu.Lock()
	if c.self == "" {
		c.mu.Unlock()
		return ErrInactive
	}
	c.peer = peer
	c.resetLocked()
	gen, self := c.gen, c.self
	c.mu.Unlock()
	c.notify()

	if peer == "" {
		return nil
	}
	history, err := c.api.ListConversation(ctx, self, peer)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	c.applyHistory(gen, history)
	return nil
}

// Send persists content for the selected peer, shows the stored record and
// forwards it through the relay. Nothing is shown when persistence fails.
func (c *Controller) Send(ctx context.Context, content string) (chat.Message, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return chat.Message{}, ErrEmptyMessage
	}
	c.mu.Lock()
	self, peer, l := c.self, c.peer, c.link
	c.mu.Unlock()
	if self == "" {
		return chat.Message{}, ErrInactive
	}
	if peer == "" {
		return chat.Message{}, ErrNoPeer
	}

	msg, err := c.api.PostMessage(ctx, chat.Draft{SenderID: self, ReceiverID: peer, Content: text})
	if err != nil {
		return chat.Message{}, fmt.Errorf("send message: %w", err)
	}
	c.receive(msg)

	if l == nil {
		c.log.Warn("not connected, message stored without realtime forward", "id", msg.ID)
		return msg, nil
	}
	frame, err := ws.Encode(ws.EventSend, msg)
	if err == nil {
		err = l.write(ctx, frame, c.opts.WriteTimeout)
	}
	if err != nil {
		// the peer recovers it from history
		c.log.Warn("relay forward failed", "id", msg.ID, "error", err)
	}
	return msg, nil
}

// Messages returns a copy of the displayed conversation.
func (c *Controller) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.Message(nil), c.messages...)
}

func (c *Controller) Self() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

func (c *Controller) Peer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// Connected reports whether a relay connection is owned.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// receive applies the relevance filter against the peer selected now, then
// deduplicates by id.
func (c *Controller) receive(m chat.Message) {
	c.mu.Lock()
	if m.ID == "" || c.peer == "" || !m.Involves(c.self, c.peer) {
		c.mu.Unlock()
		c.log.Debug("discarding message outside the open conversation", "id", m.ID)
		return
	}
	if _, dup := c.seen[m.ID]; dup {
		c.mu.Unlock()
		return
	}
	c.seen[m.ID] = struct{}{}
	c.messages = append(c.messages, m)
	c.mu.Unlock()
	c.notify()
}

// applyHistory installs history as the view for selection gen. Realtime
// messages that arrived during the fetch and are missing from it are kept.
func (c *Controller) applyHistory(gen uint64, history []chat.Message) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	seen := make(map[string]struct{}, len(history)+len(c.messages))
	merged := make([]chat.Message, 0, len(history)+len(c.messages))
	for _, batch := range [][]chat.Message{history, c.messages} {
		for _, m := range batch {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			merged = append(merged, m)
		}
	}
	c.messages, c.seen = merged, seen
	c.mu.Unlock()
	c.notify()
}

// resync refetches the open conversation after a reconnect.
func (c *Controller) resync(ctx context.Context) {
	c.mu.Lock()
	gen, self, peer := c.gen, c.self, c.peer
	c.mu.Unlock()
	if peer == "" {
		return
	}
	history, err := c.api.ListConversation(ctx, self, peer)
	if err != nil {
		c.log.Warn("history resync failed", "peer", peer, "error", err)
		return
	}
	c.applyHistory(gen, history)
}

func (c *Controller) resetLocked() {
	c.gen++
	c.messages = nil
	c.seen = make(map[string]struct{})
}
