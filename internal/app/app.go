// Package app wires configuration into a ready collector and manages the
// lifecycle of its resources.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stacklok/reelsync/internal/app/storage"
	"github.com/stacklok/reelsync/internal/collector"
	"github.com/stacklok/reelsync/internal/config"
)

// CollectorApp encapsulates all components needed to run collection cycles
// and the external actions on the store
type CollectorApp struct {
	config     *config.Config
	components *AppComponents
	cleanup    func()
}

// Collect runs one refresh cycle
func (app *CollectorApp) Collect(ctx context.Context, opts collector.Options) (*collector.Stats, error) {
	return app.components.Collector.Run(ctx, opts)
}

// Stop flushes telemetry and releases storage within the given timeout
func (app *CollectorApp) Stop(timeout time.Duration) error {
	slog.Debug("Shutting down collector")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if tel := app.components.Telemetry; tel != nil {
		if err := tel.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown telemetry: %w", err))
		}
	}
	if app.cleanup != nil {
		app.cleanup()
		app.cleanup = nil
	}
	return errors.Join(errs...)
}

// GetConfig returns the application configuration
func (app *CollectorApp) GetConfig() *config.Config {
	return app.config
}

// GetComponents returns the wired components
func (app *CollectorApp) GetComponents() *AppComponents {
	return app.components
}

// Unfreeze makes the given movies eligible for refresh again and returns the
// number that were frozen. It needs storage only, so no upstream credentials
// are required.
func Unfreeze(ctx context.Context, factory storage.Factory, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("at least one TMDB id is required")
	}

	store, err := factory.CreateStore(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to create store: %w", err)
	}
	defer store.Close()

	n, err := store.UnfreezeMovies(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to unfreeze movies: %w", err)
	}
	slog.InfoContext(ctx, "Unfroze movies", "requested", len(ids), "unfrozen", n)
	return n, nil
}
