package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/fanout/internal/analysis"
	"github.com/Iron-Ham/fanout/internal/batch"
	"github.com/Iron-Ham/fanout/internal/conflict"
	"github.com/Iron-Ham/fanout/internal/coordinator"
	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/graph"
	"github.com/Iron-Ham/fanout/internal/history"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/metrics"
	"github.com/Iron-Ham/fanout/internal/progress"
	"github.com/Iron-Ham/fanout/internal/task"
	"github.com/Iron-Ham/fanout/internal/telemetry"
	"github.com/Iron-Ham/fanout/internal/textsim"
)

// Stage names used for spans, log attributes and operation metrics.
const (
	StageAnalyze    = "analyze"
	StageGraph      = "graph"
	StageOptimize   = "optimize"
	StageCoordinate = "coordinate"
	StageConflicts  = "conflicts"
	StageProgress   = "progress"
)

// Config holds the planning and execution settings of a Service.
type Config struct {
	// Executor runs tasks for CoordinateExecution. Without one,
	// CoordinateExecution fails with ErrExecutorUnavailable.
	Executor coordinator.Executor

	Matcher       textsim.Matcher
	MinConfidence float64

	// DetectImplicit controls implicit dependency inference in
	// AnalyzeParallelizability.
	DetectImplicit bool

	Tuning            analysis.Tuning
	IgnorePatterns    []string
	MinutesPerPercent float64

	// Now is the clock for completion estimates. Nil uses time.Now.
	Now func() time.Time
}

// Service runs the six fanout operations.
type Service struct {
	cfg       Config
	matcher   textsim.Matcher
	analyzer  *analysis.Analyzer
	optimizer *batch.Optimizer
	detector  *conflict.Detector
	coord     *coordinator.Coordinator

	logger   *logging.Logger
	recorder *metrics.Recorder
	tracer   trace.Tracer
	history  *history.Store
}

// New creates a Service.
func New(cfg Config, opts ...Option) (*Service, error) {
	o := &serviceOptions{}
	for _, opt := range opts {
		opt(o)
	}
	logger := logging.OrNop(o.logger)

	matcher := cfg.Matcher
	if matcher == nil {
		matcher = textsim.DefaultMatcher()
	}
	detector, err := conflict.New(conflict.Config{IgnorePatterns: cfg.IgnorePatterns, Logger: logger})
	if err != nil {
		return nil, errors.Invalidf("ignorePatterns", cfg.IgnorePatterns, "%v", err)
	}

	s := &Service{
		cfg:     cfg,
		matcher: matcher,
		analyzer: analysis.New(analysis.Config{
			Tuning:        cfg.Tuning,
			Matcher:       matcher,
			MinConfidence: cfg.MinConfidence,
			Logger:        logger.WithStage(StageAnalyze),
		}),
		optimizer: batch.NewOptimizer(matcher, logger.WithStage(StageOptimize)),
		detector:  detector,
		logger:    logger,
		recorder:  o.recorder,
		tracer:    telemetry.Tracer(o.tp),
		history:   o.history,
	}

	if cfg.Executor != nil {
		s.coord, err = coordinator.New(coordinator.Config{
			Executor: cfg.Executor,
			Detector: detector,
			Observer: o.observer,
			Logger:   logger.WithStage(StageCoordinate),
			Recorder: o.recorder,
			Tracer:   s.tracer,
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Snapshot reports the agents of the batch currently executing, so a
// running coordination can be fed to AggregateProgress.
func (s *Service) Snapshot() []progress.AgentProgress {
	if s.coord == nil {
		return []progress.AgentProgress{}
	}
	return s.coord.Snapshot()
}

// begin opens a stage span and returns a finish func that records the
// outcome on the span, the log and the operation metric.
func (s *Service) begin(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, *logging.Logger, func(error)) {
	ctx, span := telemetry.StartStageSpan(ctx, s.tracer, stage, attrs...)
	logger := s.logger.WithStage(stage)
	if id := telemetry.TraceID(ctx); id != "" {
		logger = logger.With("trace_id", id)
	}
	start := time.Now()
	return ctx, logger, func(err error) {
		d := time.Since(start)
		s.recorder.Operation(stage, err == nil, d)
		if err != nil {
			telemetry.RecordError(span, err)
			sev := errors.GetSeverity(err)
			switch {
			case errors.IsValidation(err):
				logger.Warn("invalid input", "error", err.Error())
			case sev >= errors.SeverityError:
				logger.Error("operation failed", "error", err.Error(), "severity", sev.String())
			default:
				logger.Warn("operation failed", "error", err.Error(), "severity", sev.String())
			}
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}
}

// BuildDependencyGraph validates tasks and builds their dependency graph.
// Cycles are reported in the result, not as an error.
func (s *Service) BuildDependencyGraph(ctx context.Context, tasks []task.Task, detectImplicit bool) (res *graph.Result, err error) {
	_, logger, finish := s.begin(ctx, StageGraph,
		attribute.Int("tasks", len(tasks)),
		attribute.Bool("detect_implicit", detectImplicit),
	)
	defer func() { finish(err) }()

	if err := task.ValidateTasks(tasks); err != nil {
		return nil, err
	}
	res = graph.Build(tasks, graph.Options{
		DetectImplicit: detectImplicit,
		Matcher:        s.matcher,
		MinConfidence:  s.cfg.MinConfidence,
		Logger:         logger,
	})
	s.recorder.Graph(res.HasCycles, len(res.ImplicitDependencies))
	logger.Info("graph built",
		"nodes", res.Graph.Len(),
		"edges", len(res.Graph.Edges),
		"implicit", len(res.ImplicitDependencies),
		"has_cycles", res.HasCycles,
	)
	return res, nil
}

// AnalyzeParallelizability scores tasks and decides whether splitting them
// across agents is worthwhile.
func (s *Service) AnalyzeParallelizability(ctx context.Context, description string, tasks []task.Task, taskContext map[string]string) (res *analysis.Result, err error) {
	_, logger, finish := s.begin(ctx, StageAnalyze, attribute.Int("tasks", len(tasks)))
	defer func() { finish(err) }()

	res, err = s.analyzer.Analyze(analysis.Request{
		Description:    description,
		Tasks:          tasks,
		Context:        taskContext,
		DetectImplicit: s.cfg.DetectImplicit,
	})
	if err != nil {
		return nil, err
	}
	s.recorder.Analysis(res.Parallelizable)
	if res.Graph != nil {
		s.recorder.Graph(res.Graph.HasCycles, len(res.Graph.ImplicitDependencies))
	}
	logger.Info("analysis complete",
		"parallelizable", res.Parallelizable,
		"confidence", res.Confidence,
		"speedup", res.EstimatedSpeedup,
		"batches", len(res.Batches),
		"risks", len(res.Risks),
	)
	return res, nil
}

// OptimizeBatchDistribution partitions tasks into batches of at most
// maxAgents tasks under goal. A nil g is built from the tasks.
func (s *Service) OptimizeBatchDistribution(ctx context.Context, tasks []task.Task, g *graph.Graph, maxAgents int, goal batch.Goal) (plan *batch.Plan, err error) {
	_, logger, finish := s.begin(ctx, StageOptimize,
		attribute.Int("tasks", len(tasks)),
		attribute.Int("max_agents", maxAgents),
		attribute.String("goal", string(goal)),
	)
	defer func() { finish(err) }()

	plan, err = s.optimizer.Optimize(tasks, g, maxAgents, goal)
	if err != nil {
		return nil, err
	}
	s.recorder.Plan(string(goal), len(plan.Batches))
	logger.Info("batches optimized",
		"batches", len(plan.Batches),
		"estimated_total", plan.EstimatedTotalTime,
		"load_balance", plan.LoadBalance,
	)
	return plan, nil
}

// CoordinateExecution runs plan batch by batch. Task failures and
// conflicts are part of the result; errors mean the plan was rejected or
// no executor is configured.
func (s *Service) CoordinateExecution(ctx context.Context, plan coordinator.Plan, strategy coordinator.Strategy, maxAgents int, constraints coordinator.Constraints) (res *coordinator.Result, err error) {
	// The coordinator opens its own stage span.
	logger := s.logger.WithStage(StageCoordinate)
	start := time.Now()
	defer func() {
		s.recorder.Operation(StageCoordinate, err == nil, time.Since(start))
		if err != nil {
			logger.Warn("coordination rejected", "error", err.Error())
		}
	}()

	if s.coord == nil {
		return nil, errors.NewCoordinatorError("no executor configured", errors.ErrExecutorUnavailable)
	}
	res, err = s.coord.Execute(ctx, plan, coordinator.Options{
		Strategy:    strategy,
		MaxAgents:   maxAgents,
		Constraints: constraints,
	})
	if err != nil {
		return nil, err
	}

	if s.history != nil {
		if run, herr := s.history.Record(ctx, res); herr != nil {
			logger.Warn("failed to record run history", "run_id", res.RunID, "error", herr.Error())
		} else {
			logger.Debug("run recorded", "run_id", res.RunID, "history_id", run.ID)
		}
	}
	return res, nil
}

// DetectConflicts checks results for conflicting changes. g is optional and
// enables the dependency pass.
func (s *Service) DetectConflicts(ctx context.Context, results []task.Result, g *graph.Graph) (report *conflict.Report, err error) {
	_, logger, finish := s.begin(ctx, StageConflicts, attribute.Int("results", len(results)))
	defer func() { finish(err) }()

	if err := task.ValidateResults(results); err != nil {
		return nil, err
	}
	report = s.detector.Detect(results, g)
	for _, c := range report.Conflicts {
		s.recorder.Conflict(string(c.Type))
	}
	logger.Info("conflict detection complete",
		"conflicts", len(report.Conflicts),
		"strategy", string(report.Strategy),
	)
	return report, nil
}

// AggregateProgress combines per-agent reports under strategy.
func (s *Service) AggregateProgress(ctx context.Context, reports []progress.AgentProgress, strategy progress.Strategy) (report *progress.Report, err error) {
	_, logger, finish := s.begin(ctx, StageProgress,
		attribute.Int("agents", len(reports)),
		attribute.String("strategy", string(strategy)),
	)
	defer func() { finish(err) }()

	report, err = progress.Aggregate(reports, strategy, progress.Options{
		Now:               s.cfg.Now,
		MinutesPerPercent: s.cfg.MinutesPerPercent,
	})
	if err != nil {
		return nil, err
	}
	impacts := make([]string, len(report.Bottlenecks))
	for i, b := range report.Bottlenecks {
		impacts[i] = string(b.Impact)
	}
	s.recorder.Aggregation(string(strategy), impacts)
	logger.Debug("progress aggregated",
		"overall", report.Overall,
		"bottlenecks", len(report.Bottlenecks),
	)
	return report, nil
}
