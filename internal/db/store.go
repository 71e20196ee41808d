// Package db provides the durable message log and user directory backends.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MobasirSarkar/chatrelay/internal/config"
	"github.com/MobasirSarkar/chatrelay/internal/chat"
)

// Backend names accepted by Open.
const (
	DriverBadger = "badger"
	DriverScylla = "scylla"
	DriverMySQL  = "mysql"
)

// Open connects the backend selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger) (chat.Store, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case DriverBadger:
		return OpenBadger(cfg.BadgerPath, log)
	case DriverScylla:
		return OpenScylla(ctx, ScyllaConfig{
			Hosts:    cfg.ScyllaHostList(),
			Keyspace: cfg.ScyllaKeyspace,
		}, log)
	case DriverMySQL:
		return OpenMySQL(ctx, cfg.MySQLDSN, log)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.StoreDriver)
	}
}

// prepareAppend validates d and stamps it. Shared by every backend.
func prepareAppend(d chat.Draft, now time.Time, precision time.Duration) (chat.Message, error) {
	if err := chat.ValidateDraft(d); err != nil {
		return chat.Message{}, err
	}
	return chat.NewMessage(d, now, precision), nil
}
