package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/boazzati/AFH-Platform-sub001/internal/config"
	"github.com/boazzati/AFH-Platform-sub001/internal/db"
)

// Open returns the store selected by cfg.Driver and runs its migrations.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "sqlite", "":
		s, err = NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
