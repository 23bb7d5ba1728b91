package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/fanout/internal/conflict"
	"github.com/Iron-Ham/fanout/internal/coordinator"
	"github.com/Iron-Ham/fanout/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResult(runID string, success bool) *coordinator.Result {
	return &coordinator.Result{
		RunID:     runID,
		Strategy:  coordinator.StrategyConservative,
		Success:   success,
		Conflicts: &conflict.Report{Strategy: conflict.StrategyManual},
		Metrics: coordinator.Metrics{
			TotalTasks:      4,
			ParallelTasks:   3,
			SequentialTasks: 1,
			ActualSpeedup:   2.5,
			FailureCount:    1,
		},
	}
}

func TestRecordAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Record(ctx, sampleResult("run-1", false))
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "conservative", got.Strategy)
	assert.False(t, got.Success)
	assert.Equal(t, "manual", got.ConflictStrategy)
	assert.Equal(t, 4, got.Metrics.TotalTasks)
	assert.InDelta(t, 2.5, got.Metrics.ActualSpeedup, 1e-9)
	assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, 0)
}

func TestGet_NotFound(t *testing.T) {
	_, err := newTestStore(t).Get(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.NotFoundError{})
}

func TestList_NewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"run-1", "run-2", "run-3"} {
		_, err := s.Record(ctx, sampleResult(id, true))
		require.NoError(t, err)
	}

	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].RunID)
	assert.Equal(t, "run-2", runs[1].RunID)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRecord_NilResult(t *testing.T) {
	_, err := newTestStore(t).Record(context.Background(), nil)
	assert.True(t, errors.IsValidation(err))
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Record(context.Background(), sampleResult("run-1", true))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
