// Package server exposes the relay websocket and the history API over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MobasirSarkar/chatrelay/internal/chat"
	"github.com/MobasirSarkar/chatrelay/internal/relay"
	"github.com/MobasirSarkar/chatrelay/internal/ws"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	WebSocketEndPoint = "/ws"
	readLimit         = chat.MaxFrameBytes
)

// Options configure connection handling.
type Options struct {
	OriginPatterns []string
	QueueSize      int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
}

// Server owns the HTTP listener and the live connections.
type Server struct {
	ServerId   string
	store      chat.Store
	relay      *relay.Handler
	opts       Options
	log        *slog.Logger
	clientsMu  sync.Mutex
	clients    map[*ws.Conn]struct{}
	shutdown   chan struct{}
	stopOnce   sync.Once
	httpServer *http.Server
}

func New(store chat.Store, handler *relay.Handler, opts Options, log *slog.Logger) *Server {
	id := uuid.NewString()
	return &Server{
		ServerId: id,
		store:    store,
		relay:    handler,
		opts:     opts,
		log:      log.With("server", id),
		clients:  make(map[*ws.Conn]struct{}),
		shutdown: make(chan struct{}),
	}
}

// Handler routes the websocket, the history API and the health check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketEndPoint, s.HandleWs)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/messages", s.handlePostMessage)
	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("PUT /api/users", s.handleUpsertUser)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// Start binds addr and serves on it in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server stopped", "error", err)
		}
	}()
	s.log.Info("HTTP server listening", "addr", ln.Addr().String())
	return nil
}

// ShutdownGracefully stops accepting requests and closes every connection.
// Calls after the first only close connections opened since.
func (s *Server) ShutdownGracefully(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.stopOnce.Do(func() { close(s.shutdown) })
	s.log.Info("closing websocket connections", "count", s.ConnectionCount())

	s.clientsMu.Lock()
	clients := make([]*ws.Conn, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close(websocket.StatusGoingAway, "Server shutting down")
		}()
	}
	wg.Wait()
	return err
}

// ConnectionCount is the number of open websocket connections.
func (s *Server) ConnectionCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

func (s *Server) addClient(c *ws.Conn) {
	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()
}

func (s *Server) removeClient(c *ws.Conn) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
}
