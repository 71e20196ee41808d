package relay

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/MobasirSarkar/chatrelay/internal/auth"
	"github.com/MobasirSarkar/chatrelay/internal/ws"
)

// State of one connection in the relay protocol.
type State int

const (
	Disconnected State = iota
	Connected
	Joined
)

func (s State) String() string {
	switch s {
	case Connected:
		return "CONNECTED"
	case Joined:
		return "JOINED"
	default:
		return "DISCONNECTED"
	}
}

// Transport is the connection side the handler drives.
type Transport interface {
	Member
	Read(ctx context.Context) ([]byte, error)
}

// Handler implements join, send and new-message for every connection.
type Handler struct {
	registry *Registry
	verifier auth.Verifier
	// strict drops sends whose sender is not an identity the connection joined as
	strict bool
	log    *slog.Logger
}

func NewHandler(registry *Registry, verifier auth.Verifier, strict bool, log *slog.Logger) *Handler {
	if verifier == nil {
		verifier = auth.TrustVerifier{}
	}
	return &Handler{registry: registry, verifier: verifier, strict: strict, log: log}
}

// Session is the protocol state of one connection.
type Session struct {
	conn       Transport
	state      State
	identities []string
	log        *slog.Logger
}

// State reports where the session is in its lifecycle.
func (s *Session) State() State { return s.state }

// Serve runs the protocol on conn until its read side fails or ctx ends.
// Frames are handled strictly in arrival order.
func (h *Handler) Serve(ctx context.Context, conn Transport) *Session {
	s := &Session{conn: conn, state: Connected, log: h.log}
	defer h.disconnect(s)

	for {
		frame, err := conn.Read(ctx)
		if err != nil {
			s.log.Debug("read loop ended", "error", err)
			return s
		}
		h.handleFrame(ctx, s, frame)
	}
}

func (h *Handler) handleFrame(ctx context.Context, s *Session, frame []byte) {
	env, err := ws.DecodeEnvelope(frame)
	if err != nil {
		s.log.Debug("dropping frame", "error", err)
		return
	}
	switch env.Event {
	case ws.EventJoin:
		h.join(ctx, s, env)
	case ws.EventSend:
		h.send(s, env)
	default:
		s.log.Debug("ignoring event", "event", env.Event)
	}
}

func (h *Handler) join(ctx context.Context, s *Session, env ws.Envelope) {
	req, err := ws.DecodeJoin(env.Data)
	if err != nil {
		s.log.Debug("dropping join", "error", err)
		return
	}
	userID, err := h.verifier.Verify(ctx, auth.Credentials{UserID: req.UserID, Token: req.Token})
	if err != nil {
		if errors.Is(err, auth.ErrMissingIdentity) {
			s.log.Debug("join without identity ignored")
		} else {
			s.log.Warn("join rejected", "error", err)
		}
		return
	}
	if h.registry.Join(s.conn, userID) {
		s.identities = append(s.identities, userID)
		s.log = s.log.With("user", userID)
		s.log.Info("joined room", "rooms", h.registry.Rooms(s.conn))
	}
	s.state = Joined
}

func (h *Handler) send(s *Session, env ws.Envelope) {
	msg, err := ws.DecodeSend(env.Data)
	if err != nil {
		s.log.Debug("dropping send", "error", err)
		return
	}
	if h.strict && !slices.Contains(s.identities, msg.SenderID) {
		s.log.Warn("dropping send for foreign sender", "sender", msg.SenderID)
		return
	}
	frame, err := ws.Encode(ws.EventNewMessage, msg)
	if err != nil {
		s.log.Error("encode new-message", "error", err)
		return
	}
	delivered := h.registry.PublishAll([]string{msg.SenderID, msg.ReceiverID}, frame)
	s.log.Debug("message relayed", "id", msg.ID, "sender", msg.SenderID, "receiver", msg.ReceiverID, "delivered", delivered)
}

func (h *Handler) disconnect(s *Session) {
	rooms := h.registry.Leave(s.conn)
	if len(rooms) > 0 {
		s.log.Info("left rooms", "rooms", rooms, "open_rooms", h.registry.RoomCount())
	}
	s.state = Disconnected
}
