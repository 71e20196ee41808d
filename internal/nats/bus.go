package nats

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/nats-io/nats.go"
)

// DeliverFunc hands an event from another node to the local members of room
// that are not members of any room in except.
type DeliverFunc func(room string, except []string, data []byte) int

type roomSub struct {
	sub      *nats.Subscription
	refCount int
}

// frame is what travels on a room subject. Rooms lists every room the event
// was published to, in publish order.
type frame struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Rooms  []string        `json:"rooms,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// Bus subscribes to a room subject while the room has local members and
// republishes local events for the other nodes.
type Bus struct {
	nc      *nats.Conn
	nodeID  string
	deliver DeliverFunc
	log     *slog.Logger

	mu   sync.Mutex
	subs map[string]*roomSub
}

func NewBus(nc *nats.Conn, nodeID string, deliver DeliverFunc, log *slog.Logger) *Bus {
	return &Bus{
		nc:      nc,
		nodeID:  nodeID,
		deliver: deliver,
		log:     log,
		subs:    make(map[string]*roomSub),
	}
}

// subject maps a room id, which may hold any character, to a valid token.
func subject(room string) string {
	return "room." + base64.RawURLEncoding.EncodeToString([]byte(room))
}

func (b *Bus) Acquire(room string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rs, ok := b.subs[room]; ok {
		rs.refCount++
		return nil
	}

	subj := subject(room)
	sub, err := b.nc.Subscribe(subj, b.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subj, err)
	}
	b.subs[room] = &roomSub{sub: sub, refCount: 1}
	return nil
}

// handle delivers one remote frame. The frame for the i-th room skips members
// of rooms 0..i-1: this node holds a subscription for each of those rooms it
// has members in, so those members get the event from that room's frame.
func (b *Bus) handle(m *nats.Msg) {
	var f frame
	if err := json.Unmarshal(m.Data, &f); err != nil {
		b.log.Warn("failed to unmarshal room event", "subject", m.Subject, "error", err)
		return
	}
	if f.Origin == b.nodeID {
		return
	}
	var except []string
	if i := slices.Index(f.Rooms, f.Room); i > 0 {
		except = f.Rooms[:i]
	}
	b.deliver(f.Room, except, f.Data)
}

func (b *Bus) Release(room string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs, ok := b.subs[room]
	if !ok {
		return
	}
	rs.refCount--
	if rs.refCount <= 0 {
		if err := rs.sub.Unsubscribe(); err != nil {
			b.log.Warn("unsubscribe failed", "room", room, "error", err)
		}
		delete(b.subs, room)
	}
}

// Broadcast publishes data on the subject of each room.
func (b *Bus) Broadcast(rooms []string, data []byte) error {
	for _, room := range rooms {
		raw, err := json.Marshal(frame{Origin: b.nodeID, Room: room, Rooms: rooms, Data: data})
		if err != nil {
			return fmt.Errorf("encode room event: %w", err)
		}
		if err := b.nc.Publish(subject(room), raw); err != nil {
			return fmt.Errorf("publish %s: %w", room, err)
		}
	}
	return nil
}

// Subscriptions is the number of rooms currently subscribed.
func (b *Bus) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close drops every room subscription and drains the connection.
func (b *Bus) Close() error {
	b.log.Info("closing room bus", "node", b.nodeID, "subscriptions", b.Subscriptions())
	b.mu.Lock()
	for room, rs := range b.subs {
		_ = rs.sub.Unsubscribe()
		delete(b.subs, room)
	}
	b.mu.Unlock()

	if b.nc.IsClosed() {
		return nil
	}
	return b.nc.Drain()
}
