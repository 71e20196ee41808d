package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/MobasirSarkar/chatrelay/internal/chat"
	"github.com/MobasirSarkar/chatrelay/internal/ws"
	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
)

// link is one owned relay connection, replaced in place on reconnect.
type link struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

func newLink(conn *websocket.Conn) *link {
	ctx, cancel := context.WithCancel(context.Background())
	return &link{ctx: ctx, cancel: cancel, done: make(chan struct{}), conn: conn}
}

func (l *link) current() *websocket.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

// swap installs conn unless the link was closed meanwhile, in which case conn
// is closed instead. close cancels before reading the current conn, so either
// swap sees the cancel or close sees conn.
func (l *link) swap(conn *websocket.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		conn.CloseNow()
		return false
	}
	l.conn = conn
	return true
}

func (l *link) write(ctx context.Context, frame []byte, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return l.current().Write(wctx, websocket.MessageText, frame)
}

// close cancels the read loop and waits for it when it was started.
func (l *link) close() {
	l.cancel()
	_ = l.current().Close(websocket.StatusNormalClosure, "bye")
	select {
	case <-l.done:
	case <-time.After(5 * time.Second):
	}
}

// dial connects and sends the single join of this connection.
func (c *Controller) dial(ctx context.Context, userID, token string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, c.opts.RelayURL, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(chat.MaxFrameBytes)
	join, err := ws.Encode(ws.EventJoin, ws.JoinRequest{UserID: userID, Token: token})
	if err == nil {
		err = conn.Write(ctx, websocket.MessageText, join)
	}
	if err != nil {
		conn.CloseNow()
		return nil, err
	}
	return conn, nil
}

// run reads relay events until the link is closed, reconnecting on transport
// errors.
func (c *Controller) run(l *link, userID, token string) {
	defer close(l.done)
	for {
		err := c.readLoop(l.ctx, l.current())
		if l.ctx.Err() != nil {
			return
		}
		c.log.Warn("relay connection lost", "user", userID, "error", err)

		conn, err := c.reconnect(l.ctx, userID, token)
		if err != nil || !l.swap(conn) {
			return
		}
		c.log.Info("relay reconnected", "user", userID)
		c.resync(l.ctx)
	}
}

func (c *Controller) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		env, err := ws.DecodeEnvelope(data)
		if err != nil || env.Event != ws.EventNewMessage {
			continue
		}
		var m chat.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			c.log.Debug("dropping malformed new-message", "error", err)
			continue
		}
		c.receive(m)
	}
}

func (c *Controller) reconnect(ctx context.Context, userID, token string) (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectInitial
	b.MaxInterval = c.opts.ReconnectMax
	b.MaxElapsedTime = 0

	var conn *websocket.Conn
	err := backoff.Retry(func() error {
		dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		cn, err := c.dial(dctx, userID, token)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.log.Debug("reconnect attempt failed", "error", err)
			return err
		}
		conn = cn
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, err
	}
	return conn, nil
}
