package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Shivanand-hulikatti/event-checkin/internal/config"
	"github.com/Shivanand-hulikatti/event-checkin/internal/database"
)

// Open builds the Store selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; records are lost on restart")
		return NewMemoryStore(), nil
	case config.DriverPostgres:
		pool, err := database.NewPool(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPostgresStore(pool), nil
	case config.DriverSQLite:
		return OpenSQLite(cfg.SQLite.Path)
	case config.DriverMongo:
		return OpenMongo(ctx, cfg.Mongo)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}
