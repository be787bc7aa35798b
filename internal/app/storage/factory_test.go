package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/reelsync/database"
	"github.com/stacklok/reelsync/internal/config"
	"github.com/stacklok/reelsync/internal/movie"
	"github.com/stacklok/reelsync/internal/storage/memory"
)

func TestNewStorageFactory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     *config.Config
		wantErr string
	}{
		{name: "nil config", wantErr: "config cannot be nil"},
		{
			name:    "unknown type",
			cfg:     &config.Config{Storage: config.StorageConfig{Type: "file"}},
			wantErr: "unknown storage type: file",
		},
		{
			name:    "database without settings",
			cfg:     &config.Config{},
			wantErr: "database configuration is required",
		},
		{
			name: "memory",
			cfg:  &config.Config{Storage: config.StorageConfig{Type: config.StorageTypeMemory}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, err := NewStorageFactory(ctx, tt.cfg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			t.Cleanup(f.Cleanup)
			assert.IsType(t, &MemoryFactory{}, f)
		})
	}
}

func TestMemoryFactory_SharesStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := NewMemoryFactory()
	first, err := f.CreateStore(ctx)
	require.NoError(t, err)
	second, err := f.CreateStore(ctx)
	require.NoError(t, err)

	assert.IsType(t, &memory.Store{}, first)
	assert.Same(t, first, second)
}

func TestDatabaseFactory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	t.Parallel()
	ctx := context.Background()

	pool := database.SetupTestDB(t)
	connCfg := pool.Config().ConnConfig

	passwordFile := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(passwordFile, []byte(connCfg.Password+"\n"), 0o600))

	cfg := &config.Config{
		Database: &config.DatabaseConfig{
			Host:            connCfg.Host,
			Port:            int(connCfg.Port),
			User:            connCfg.User,
			PasswordFile:    passwordFile,
			Database:        connCfg.Database,
			SSLMode:         "disable",
			MaxConns:        4,
			ConnMaxLifetime: "10m",
		},
	}

	f, err := NewStorageFactory(ctx, cfg)
	require.NoError(t, err)
	require.IsType(t, &DatabaseFactory{}, f)

	store, err := f.CreateStore(ctx)
	require.NoError(t, err)

	release := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	n, err := store.UpsertMovies(ctx, []movie.Discovered{{TMDBID: 42, Title: "Factory", ReleaseDate: &release}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// closing the store leaves the pool to the factory
	store.Close()
	count, err := store.CountMovies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	f.Cleanup()
}
