package storage

import (
	"context"
	"log/slog"

	moviestore "github.com/stacklok/reelsync/internal/storage"
	"github.com/stacklok/reelsync/internal/storage/memory"
)

// MemoryFactory hands out one in-process store. Its data is lost on exit.
type MemoryFactory struct {
	store *memory.Store
}

var _ Factory = (*MemoryFactory)(nil)

// NewMemoryFactory creates a factory around an empty memory store
func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{store: memory.New()}
}

// CreateStore returns the shared memory store
func (m *MemoryFactory) CreateStore(_ context.Context) (moviestore.Store, error) {
	slog.Warn("Using in-memory storage, collected data is discarded on exit")
	return m.store, nil
}

// Cleanup is a no-op
func (*MemoryFactory) Cleanup() {}
