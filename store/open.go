package store

import (
	"context"
	"fmt"

	appconfig "taxiflow/config"
	"taxiflow/logger"
)

// Open connects every enabled database backend and ensures its schema.
// On error the stores opened so far are closed.
func Open(ctx context.Context, cfg appconfig.StorageConfig) ([]Store, error) {
	log := logger.GetLogger().WithComponent("store")
	var stores []Store

	fail := func(err error) ([]Store, error) {
		for _, s := range stores {
			s.Close()
		}
		return nil, err
	}

	if cfg.ClickHouse.Enabled {
		s, err := NewClickHouseStore(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			return fail(err)
		}
		stores = append(stores, s)
	}
	if cfg.Postgres.Enabled {
		s, err := NewPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fail(err)
		}
		stores = append(stores, s)
	}
	if cfg.SQLite.Enabled {
		s, err := NewSQLiteStore(ctx, cfg.SQLite.Path)
		if err != nil {
			return fail(err)
		}
		stores = append(stores, s)
	}

	for _, s := range stores {
		if err := s.EnsureSchema(ctx); err != nil {
			return fail(fmt.Errorf("%s schema: %w", s.Name(), err))
		}
		log.WithFields(logger.Fields{"store": s.Name()}).Info("store ready")
	}
	return stores, nil
}
