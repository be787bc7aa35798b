package app

import (
	"github.com/stacklok/reelsync/internal/collector"
	"github.com/stacklok/reelsync/internal/storage"
	"github.com/stacklok/reelsync/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Collector runs refresh cycles
	Collector *collector.Collector

	// Store is the movie store the collector writes to
	Store storage.Store

	// Telemetry owns the tracer and meter providers
	Telemetry *telemetry.Telemetry
}
