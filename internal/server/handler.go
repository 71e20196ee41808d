package server

import (
	"context"
	"net/http"

	"github.com/MobasirSarkar/chatrelay/internal/ws"
	"github.com/coder/websocket"
)

// HandleWs upgrades the request and runs the relay protocol until the
// connection ends.
func (s *Server) HandleWs(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.opts.OriginPatterns,
	})
	if err != nil {
		s.log.Warn("ws accept", "error", err)
		return
	}

	c := ws.NewConn(conn, ws.Options{
		QueueSize:    s.opts.QueueSize,
		WriteTimeout: s.opts.WriteTimeout,
		PingInterval: s.opts.PingInterval,
		ReadLimit:    readLimit,
	}, s.log)
	s.addClient(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		s.removeClient(c)
		c.Close(websocket.StatusNormalClosure, "bye")
	}()
	go func() {
		select {
		case <-s.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	go c.WritePump(ctx)
	go c.PingLoop(ctx)

	s.log.Debug("connection opened", "conn", c.ID, "remote", r.RemoteAddr)
	session := s.relay.Serve(ctx, c)
	s.log.Debug("connection closed", "conn", c.ID, "state", session.State(), "reason", c.Err())
}
