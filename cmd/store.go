package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/workless-ai/docscan/internal/store"
)

// initStore opens the configured record-store backend. Driver "none" yields
// the no-op store: the service runs without quota or scan bookkeeping.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "none":
		zap.L().Warn("record store disabled, quota and scan tracking are off")
		return store.Noop{}, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
