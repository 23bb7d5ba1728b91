package pipeline

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Iron-Ham/fanout/internal/batch"
	"github.com/Iron-Ham/fanout/internal/coordinator"
	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/executor"
	"github.com/Iron-Ham/fanout/internal/history"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/metrics"
	"github.com/Iron-Ham/fanout/internal/progress"
	"github.com/Iron-Ham/fanout/internal/task"
)

func sampleTasks() []task.Task {
	return []task.Task{
		{ID: "schema", Description: "Design the database schema", EstimatedDuration: 20},
		{ID: "api", Description: "Implement REST endpoints", EstimatedDuration: 30, DependsOn: []string{"schema"}},
		{ID: "docs", Description: "Write onboarding guide", EstimatedDuration: 15},
		{ID: "ui", Description: "Build settings page", EstimatedDuration: 25},
	}
}

func newService(t *testing.T, cfg Config, opts ...Option) *Service {
	t.Helper()
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	return s
}

func newSimulator(t *testing.T) *executor.Simulator {
	t.Helper()
	sim, err := executor.NewSimulator(executor.SimulatorConfig{SuccessRate: 1, Seed: 1})
	require.NoError(t, err)
	return sim
}

func TestNew_InvalidIgnorePattern(t *testing.T) {
	_, err := New(Config{IgnorePatterns: []string{"["}})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestBuildDependencyGraph(t *testing.T) {
	_, rec := metrics.NewRegistry()
	s := newService(t, Config{}, WithRecorder(rec))

	res, err := s.BuildDependencyGraph(context.Background(), sampleTasks(), false)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Graph.Len())
	assert.True(t, res.Graph.HasEdge("schema", "api"))
	assert.False(t, res.HasCycles)

	cyclic := []task.Task{
		{ID: "a", Description: "first", DependsOn: []string{"b"}},
		{ID: "b", Description: "second", DependsOn: []string{"a"}},
	}
	res, err = s.BuildDependencyGraph(context.Background(), cyclic, false)
	require.NoError(t, err, "cycles are reported in the result")
	assert.True(t, res.HasCycles)

	_, err = s.BuildDependencyGraph(context.Background(), []task.Task{{ID: "", Description: "x"}}, false)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.Operations.WithLabelValues(StageGraph, "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Operations.WithLabelValues(StageGraph, "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.GraphCycles))
}

func TestAnalyzeParallelizability(t *testing.T) {
	s := newService(t, Config{})
	ctx := map[string]string{"repo": "web"}

	res, err := s.AnalyzeParallelizability(context.Background(), "ship settings", sampleTasks(), ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Graph)
	assert.Equal(t, 4, res.Graph.Graph.Len())
	assert.Equal(t, ctx, res.Context)
	assert.NotEmpty(t, res.Reasoning)

	_, err = s.AnalyzeParallelizability(context.Background(), "dup", []task.Task{
		{ID: "a", Description: "x"},
		{ID: "a", Description: "y"},
	}, nil)
	assert.True(t, errors.IsValidation(err))
}

func TestOptimizeBatchDistribution(t *testing.T) {
	s := newService(t, Config{})

	plan, err := s.OptimizeBatchDistribution(context.Background(), sampleTasks(), nil, 2, batch.GoalMinimizeTime)
	require.NoError(t, err)

	seen := 0
	for _, b := range plan.Batches {
		assert.LessOrEqual(t, len(b.Tasks), 2, "batch %s exceeds maxAgents", b.ID)
		seen += len(b.Tasks)
	}
	assert.Equal(t, 4, seen)

	_, err = s.OptimizeBatchDistribution(context.Background(), sampleTasks(), nil, 2, batch.Goal("fastest"))
	assert.True(t, errors.IsValidation(err))
	_, err = s.OptimizeBatchDistribution(context.Background(), sampleTasks(), nil, 0, batch.GoalMinimizeTime)
	assert.True(t, errors.IsValidation(err))
}

func TestCoordinateExecution_NoExecutor(t *testing.T) {
	s := newService(t, Config{})
	_, err := s.CoordinateExecution(context.Background(), coordinator.Plan{}, coordinator.StrategyConservative, 2, coordinator.Constraints{})
	assert.ErrorIs(t, err, errors.ErrExecutorUnavailable)
	assert.Empty(t, s.Snapshot())
}

func TestCoordinateExecution_RecordsHistory(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var finished []string
	obs := coordinator.ObserverFuncs{
		BatchFinished: func(o coordinator.BatchOutcome) { finished = append(finished, o.BatchID) },
	}
	s := newService(t, Config{Executor: newSimulator(t)}, WithHistory(store), WithObserver(obs))

	ctx := context.Background()
	bp, err := s.OptimizeBatchDistribution(ctx, sampleTasks(), nil, 2, batch.GoalBalanceLoad)
	require.NoError(t, err)
	gr, err := s.BuildDependencyGraph(ctx, sampleTasks(), false)
	require.NoError(t, err)

	res, err := s.CoordinateExecution(ctx, coordinator.PlanFromBatches(bp, gr.Graph), coordinator.StrategyConservative, 2, coordinator.Constraints{MaxRetries: 1})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.Results, 4)
	assert.Len(t, finished, len(bp.Batches))

	runs, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].RunID)
	assert.Equal(t, 4, runs[0].Metrics.TotalTasks)
}

func TestCoordinateExecution_InvalidPlan(t *testing.T) {
	_, rec := metrics.NewRegistry()
	s := newService(t, Config{Executor: newSimulator(t)}, WithRecorder(rec))

	plan := coordinator.Plan{Batches: []batch.Batch{batch.New("batch-1", 0, sampleTasks()[:1], nil)}}
	_, err := s.CoordinateExecution(context.Background(), plan, coordinator.Strategy("reckless"), 2, coordinator.Constraints{})
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Operations.WithLabelValues(StageCoordinate, "false")))
}

func TestStageFailure_LogLevelFollowsSeverity(t *testing.T) {
	var buf bytes.Buffer
	s := newService(t, Config{}, WithLogger(logging.NewWriterLogger(&buf, "DEBUG")))

	_, err := s.CoordinateExecution(context.Background(), coordinator.Plan{}, coordinator.StrategyConservative, 2, coordinator.Constraints{})
	require.Error(t, err)
	assert.Equal(t, errors.SeverityError, errors.GetSeverity(err))
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), `"severity":"error"`)

	buf.Reset()
	_, err = s.BuildDependencyGraph(context.Background(), []task.Task{{ID: "", Description: "x"}}, false)
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"msg":"invalid input"`)
	assert.NotContains(t, buf.String(), `"level":"ERROR"`)
}

func TestDetectConflicts(t *testing.T) {
	s := newService(t, Config{IgnorePatterns: []string{"**/*.lock"}})
	results := []task.Result{
		{AgentID: "agent-1", TaskID: "t1", Success: true, Changes: []task.Change{
			{Resource: "new.go", Kind: task.ChangeCreate},
			{Resource: "deps/app.lock", Kind: task.ChangeModify},
		}},
		{AgentID: "agent-2", TaskID: "t2", Success: true, Changes: []task.Change{
			{Resource: "new.go", Kind: task.ChangeCreate},
			{Resource: "deps/app.lock", Kind: task.ChangeModify},
		}},
	}

	report, err := s.DetectConflicts(context.Background(), results, nil)
	require.NoError(t, err)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, []string{"new.go"}, report.Conflicts[0].Resources)

	results[1].TaskID = "t1"
	_, err = s.DetectConflicts(context.Background(), results, nil)
	assert.True(t, errors.IsValidation(err))
}

func TestAggregateProgress(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newService(t, Config{Now: func() time.Time { return now }})

	report, err := s.AggregateProgress(context.Background(), []progress.AgentProgress{
		{AgentID: "agent-1", PercentComplete: 50, Status: progress.StatusWorking},
		{AgentID: "agent-2", PercentComplete: 100, Status: progress.StatusComplete},
	}, progress.StrategySimpleAverage)
	require.NoError(t, err)
	assert.InDelta(t, 75, report.Overall, 1e-9)
	assert.Equal(t, now.Add(25*time.Minute), report.EstimatedCompletion)

	_, err = s.AggregateProgress(context.Background(), nil, progress.Strategy("median"))
	assert.True(t, errors.IsValidation(err))
}

func TestStageSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	s := newService(t, Config{}, WithTracerProvider(tp))

	_, err := s.BuildDependencyGraph(context.Background(), sampleTasks(), false)
	require.NoError(t, err)
	_, err = s.AggregateProgress(context.Background(), nil, progress.Strategy("median"))
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "stage."+StageGraph, spans[0].Name())
	assert.Equal(t, "stage."+StageProgress, spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
