package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/finanzas-dev/centavo/internal/catalog"
	"github.com/finanzas-dev/centavo/internal/common"
	"github.com/finanzas-dev/centavo/internal/config"
	"github.com/finanzas-dev/centavo/internal/engine"
	"github.com/finanzas-dev/centavo/internal/recat"
	"github.com/finanzas-dev/centavo/internal/storage"
)

// initStorage opens the configured database and runs migrations.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := config.ExpandPath(viper.GetString("database.path"))
	if dbPath == "" {
		return nil, fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// app bundles the services every command needs.
type app struct {
	store    *storage.SQLiteStorage
	catalog  *catalog.Service
	resolver *engine.Resolver
	pipeline *recat.Pipeline
}

func initApp(ctx context.Context) (*app, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(store, viper.GetDuration("cache.ttl"))
	return &app{
		store:    store,
		catalog:  cat,
		resolver: engine.New(store, cat),
		pipeline: recat.New(store, store, store),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		slog.Error("failed to close storage", "error", err)
	}
}

func tenantID() int64 {
	return viper.GetInt64("tenant")
}
