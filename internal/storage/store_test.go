package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stacklok/reelsync/internal/movie"
)

func TestApplyCycle(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		outcome     CycleOutcome
		wantCycles  int
		wantRefresh bool
	}{
		{name: "unchanged fetch increments", outcome: CycleOutcome{Fetched: true}, wantCycles: 3},
		{name: "changed fetch resets", outcome: CycleOutcome{Fetched: true, Changed: true}, wantCycles: 0},
		{name: "nothing fetched keeps counter", outcome: CycleOutcome{}, wantCycles: 2},
		{name: "full refresh stamps time", outcome: CycleOutcome{Fetched: true, FullRefresh: true}, wantCycles: 3, wantRefresh: true},
		{name: "not found only still completes refresh", outcome: CycleOutcome{FullRefresh: true}, wantCycles: 2, wantRefresh: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := movie.Movie{TMDBID: 1, ConsecutiveUnchangedCycles: 2}
			ApplyCycle(&m, tt.outcome, now)
			assert.Equal(t, tt.wantCycles, m.ConsecutiveUnchangedCycles)
			if tt.wantRefresh {
				assert.Equal(t, &now, m.LastFullRefresh)
			} else {
				assert.Nil(t, m.LastFullRefresh)
			}
		})
	}
}
