package database

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/golang-migrate/migrate/v4"
)

// MigrateUp applies numSteps pending migrations, or all of them when numSteps
// is zero. An up-to-date schema is not an error.
func MigrateUp(m Migrator, numSteps uint) error {
	var err error
	if numSteps == 0 {
		err = m.Up()
	} else {
		if numSteps > math.MaxInt {
			return fmt.Errorf("number of steps exceeds maximum allowed value")
		}
		err = m.Steps(int(numSteps)) // #nosec G115 -- overflow checked above
	}
	return ignoreNoChange(err, "apply")
}

// MigrateDown reverts numSteps migrations, or all of them when numSteps is zero
func MigrateDown(m Migrator, numSteps uint) error {
	var err error
	if numSteps == 0 {
		err = m.Down()
	} else {
		if numSteps > math.MaxInt {
			return fmt.Errorf("number of steps exceeds maximum allowed value")
		}
		err = m.Steps(-1 * int(numSteps)) // #nosec G115 -- overflow checked above
	}
	return ignoreNoChange(err, "revert")
}

// GetVersion returns the current schema version and whether it is dirty
func GetVersion(m Migrator) (uint, bool, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

func ignoreNoChange(err error, action string) error {
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("No migrations to " + action)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to %s migrations: %w", action, err)
	}
	return nil
}
