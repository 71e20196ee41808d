package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ErrQueueFull is the close reason of a connection that fell behind.
var ErrQueueFull = errors.New("outbound queue full")

// Options tune one connection.
type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadLimit    int64
}

// Conn is one live websocket session. Outbound frames go through a bounded
// queue drained by a single writer, so they leave in enqueue order.
type Conn struct {
	ID     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	opts   Options
	log    *slog.Logger
	closed error
}

func NewConn(c *websocket.Conn, opts Options, log *slog.Logger) *Conn {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.ReadLimit > 0 {
		c.SetReadLimit(opts.ReadLimit)
	}
	id := uuid.NewString()
	return &Conn{
		ID:   id,
		conn: c,
		send: make(chan []byte, opts.QueueSize),
		done: make(chan struct{}),
		opts: opts,
		log:  log.With("conn", id),
	}
}

// Enqueue schedules data for delivery without blocking. A full queue closes
// the connection; the client recovers through history on reconnect.
func (c *Conn) Enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		c.log.Warn("outbound queue overflow, closing connection", "queue_size", cap(c.send))
		c.closeWith(websocket.StatusPolicyViolation, ErrQueueFull)
		return false
	}
}

// Read returns the next text or binary frame.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			continue
		}
		return data, nil
	}
}

// WritePump drains the queue until the connection or ctx ends.
func (c *Conn) WritePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.log.Debug("write failed", "error", err)
				c.closeWith(websocket.StatusInternalError, err)
				return
			}
		}
	}
}

// PingLoop keeps the connection alive; a failed ping closes it.
func (c *Conn) PingLoop(ctx context.Context) {
	if c.opts.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.log.Debug("ping failed", "error", err)
				c.closeWith(websocket.StatusGoingAway, err)
				return
			}
		}
	}
}

// Close ends the session with code and reason. Safe to call more than once.
func (c *Conn) Close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close(code, reason)
	})
}

func (c *Conn) closeWith(code websocket.StatusCode, err error) {
	c.once.Do(func() {
		c.closed = err
		close(c.done)
		// Close waits for the peer's close frame; do not hold the caller
		go func() { _ = c.conn.Close(code, err.Error()) }()
	})
}

// Done is closed once the connection is shutting down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection closed itself, nil while open or after Close.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.closed
	default:
		return nil
	}
}
