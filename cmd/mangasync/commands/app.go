package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mangasync/mangasync/pkg/config"
	"github.com/mangasync/mangasync/pkg/sources/catalog"
	"github.com/mangasync/mangasync/pkg/stores"
	"github.com/mangasync/mangasync/pkg/telemetry"
)

// app holds what every command needs: configuration, telemetry and an
// initialized, migrated store.
type app struct {
	cfg   *config.Config
	tel   *telemetry.Telemetry
	store *stores.SQLiteStore
	out   io.Writer
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	store, err := stores.NewSQLiteStore(cfg.Database.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &app{cfg: cfg, tel: tel, store: store, out: os.Stdout}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.tel.Logger.WithError(err).Warn("failed to close store")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.tel.Logger.WithError(err).Warn("failed to shut down telemetry")
	}
}

func (a *app) openCatalog() (*catalog.Catalog, error) {
	return catalog.Open(a.cfg.Catalog.Path,
		catalog.WithLogger(a.tel.Logger),
		catalog.WithDebounce(a.cfg.Catalog.Debounce),
	)
}

// print writes v as JSON with --json, otherwise runs text.
func (a *app) print(v any, text func(w io.Writer)) error {
	if jsonOutput {
		return json.NewEncoder(a.out).Encode(v)
	}
	text(a.out)
	return nil
}
