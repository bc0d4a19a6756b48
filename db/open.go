package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"whatsapp-relay/handlers"
	"whatsapp-relay/persistence"
	"whatsapp-relay/utils"
)

// Open returns the store selected by cfg.Driver. An unreachable MongoDB
// server is logged and tolerated so the process can still serve; requests
// then fail individually until the server is back.
func Open(ctx context.Context, cfg utils.DatabaseConfig) (handlers.DBManager, error) {
	switch cfg.Driver {
	case utils.DriverBolt:
		bm, err := persistence.NewBoltManager(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		slog.Info("db: using bolt store", "path", cfg.BoltPath)
		return bm, nil

	case utils.DriverMongo, "":
		mm, err := NewMongoManager(ctx, cfg.URI, cfg.Name)
		if err != nil {
			return nil, err
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := mm.Ping(pingCtx); err != nil {
			slog.Error("db: mongo unreachable, continuing without indexes", "error", err)
			return mm, nil
		}
		slog.Info("db: connected to mongo", "database", cfg.Name)

		if err := mm.ApplyMigrations(ctx); err != nil {
			slog.Error("db: migrations failed", "error", err)
		}
		return mm, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
