package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MobasirSarkar/chatrelay/internal/auth"
	"github.com/MobasirSarkar/chatrelay/internal/config"
	"github.com/MobasirSarkar/chatrelay/internal/db"
	natsbus "github.com/MobasirSarkar/chatrelay/internal/nats"
	"github.com/MobasirSarkar/chatrelay/internal/relay"
	"github.com/MobasirSarkar/chatrelay/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a relay node",
	Long: `Run a relay node: the websocket relay on /ws and the history API on /api.

Configuration comes from the environment (and an optional .env file):
  CHAT_PORT, CHAT_STORE (badger|scylla|mysql), NATS_URL, AUTH_MODE (trust|jwt), ...

Set NATS_URL on several nodes to relay between connections held by different nodes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, closeLog := config.SetupLogger(cfg.LogFile, cfg.Level())
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close store", "error", err)
		}
	}()

	registry := relay.NewRegistry(log)
	verifier, strict := newVerifier(cfg)
	srv := server.New(store, relay.NewHandler(registry, verifier, strict, log), server.Options{
		OriginPatterns: cfg.OriginPatterns(),
		QueueSize:      cfg.OutboundQueueSize,
		WriteTimeout:   cfg.WriteTimeout,
		PingInterval:   cfg.PingInterval,
	}, log)

	if cfg.NatsURL != "" {
		nc, err := natsbus.Connect(cfg.NatsURL, cfg.NodeName, log)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		bus := natsbus.NewBus(nc, srv.ServerId, registry.DeliverLocal, log)
		registry.SetBus(bus)
		defer func() { _ = bus.Close() }()
	}

	if err := srv.Start(cfg.Addr()); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	log.Info("relay node ready",
		"node", cfg.NodeName,
		"store", cfg.StoreDriver,
		"auth", cfg.AuthMode,
		"multi_node", cfg.NatsURL != "",
	)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.ShutdownGracefully(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	return nil
}

// newVerifier picks the join-time identity check. Only verified identities
// make sender checks meaningful, so strict is tied to jwt mode.
func newVerifier(cfg config.Config) (auth.Verifier, bool) {
	if cfg.AuthMode == config.AuthJWT {
		return auth.NewJWTVerifier(cfg.JWTSecret), true
	}
	return auth.TrustVerifier{}, false
}
