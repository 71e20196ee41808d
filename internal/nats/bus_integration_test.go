//go:build integration

package nats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/MobasirSarkar/chatrelay/internal/relay"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type member struct {
	mu  sync.Mutex
	got [][]byte
}

func (m *member) Enqueue(data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, data)
	return true
}

func (m *member) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.got)
}

func startNats(t *testing.T) string {
	t.Helper()
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)
	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}

// node is one relay process: a registry bridged by its own bus.
func node(t *testing.T, url, name string) (*relay.Registry, *Bus) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	nc, err := Connect(url, name, log)
	require.NoError(t, err)
	registry := relay.NewRegistry(log)
	bus := NewBus(nc, name, registry.DeliverLocal, log)
	registry.SetBus(bus)
	t.Cleanup(func() { _ = bus.Close() })
	return registry, bus
}

func TestBus_Delivers_Across_Nodes(t *testing.T) {
	req := require.New(t)
	url := startNats(t)
	node1, bus1 := node(t, url, "node-1")
	node2, _ := node(t, url, "node-2")

	alice, bob := &member{}, &member{}
	node1.Join(alice, "alice")
	node2.Join(bob, "bob")
	req.Equal(1, bus1.Subscriptions())
	// let the subscriptions reach the server
	time.Sleep(200 * time.Millisecond)

	// When node-1 publishes to both rooms
	node1.PublishAll([]string{"alice", "bob"}, []byte(`{"event":"new-message","data":{}}`))

	// Then bob on node-2 receives it once and alice is not echoed by her own node
	req.Eventually(func() bool { return bob.count() == 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	req.Equal(1, alice.count())
	req.Equal(1, bob.count())

	// When bob leaves, node-2 unsubscribes
	node2.Leave(bob)
	node1.Publish("bob", []byte(`{"event":"new-message","data":{}}`))
	time.Sleep(200 * time.Millisecond)
	req.Equal(1, bob.count())
}

func TestBus_Member_Of_Both_Rooms_Receives_Once(t *testing.T) {
	req := require.New(t)
	url := startNats(t)
	node1, _ := node(t, url, "node-1")
	node2, bus2 := node(t, url, "node-2")

	// Given a member on node-2 joined to both rooms of a message
	alice, both := &member{}, &member{}
	node1.Join(alice, "alice")
	node2.Join(both, "alice")
	node2.Join(both, "bob")
	req.Equal(2, bus2.Subscriptions())
	time.Sleep(200 * time.Millisecond)

	// When node-1 publishes to both rooms
	node1.PublishAll([]string{"alice", "bob"}, []byte(`{"event":"new-message","data":{}}`))

	// Then the member gets exactly one copy
	req.Eventually(func() bool { return both.count() == 1 }, 5*time.Second, 20*time.Millisecond)
	req.Never(func() bool { return both.count() != 1 }, 300*time.Millisecond, 20*time.Millisecond)
	req.Equal(1, alice.count())
}
