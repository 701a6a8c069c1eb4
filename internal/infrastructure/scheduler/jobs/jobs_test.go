package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/infrastructure/persistence/memory"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCleaner struct {
	removed int64
	err     error
	calls   int
}

func (f *fakeCleaner) CleanupStale(context.Context) (int64, error) {
	f.calls++
	return f.removed, f.err
}

func TestPresenceCleanupJob(t *testing.T) {
	ok := &fakeCleaner{removed: 3}
	require.NoError(t, NewPresenceCleanupJob(ok, quiet()).Run(context.Background()))
	assert.Equal(t, 1, ok.calls)

	failing := &fakeCleaner{err: errors.New("redis down")}
	err := NewPresenceCleanupJob(failing, quiet()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestLedgerStatsJob(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	now := time.Now().UTC()
	for i, pair := range [][2]string{{"a", "b"}, {"a", "c"}} {
		m, err := matching.NewMatch(pair[0]+pair[1], pair[0], pair[1], 60+i*20, now)
		require.NoError(t, err)
		require.NoError(t, store.Matches().Create(ctx, m))
	}
	_, err := store.Matches().Archive(ctx, "ab", now)
	require.NoError(t, err)

	job := NewLedgerStatsJob(store.Matches(), quiet())
	assert.Nil(t, job.Last())
	require.NoError(t, job.Run(ctx))

	last := job.Last()
	require.NotNil(t, last)
	assert.Equal(t, 2, last.TotalMatches)
	assert.Equal(t, 1, last.ActiveMatches)
	assert.Equal(t, 1, last.ArchivedMatches)
	assert.InDelta(t, 70, last.AverageScore, 0.001)
}
