// Package coordinator executes an ordered batch plan across a bounded pool
// of agents, enforcing the batch barrier, and reconciles the results for
// conflicts once the run is over.
package coordinator

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/fanout/internal/conflict"
	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/metrics"
	"github.com/Iron-Ham/fanout/internal/progress"
	"github.com/Iron-Ham/fanout/internal/task"
	"github.com/Iron-Ham/fanout/internal/telemetry"
)

// Strategy decides what happens downstream of a failed batch.
type Strategy string

const (
	// StrategyConservative skips every batch whose prerequisite batch
	// failed or was skipped.
	StrategyConservative Strategy = "conservative"
	// StrategyAggressive runs every batch regardless of upstream failures.
	StrategyAggressive Strategy = "aggressive"
)

// IsValid reports whether s is a known strategy.
func (s Strategy) IsValid() bool {
	return s == StrategyConservative || s == StrategyAggressive
}

// ParseStrategy converts a string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(s)
	if !st.IsValid() {
		return "", errors.Invalidf("strategy", s, "must be conservative or aggressive")
	}
	return st, nil
}

// Constraints bound individual task executions. Zero values mean no
// timeout and no retries.
type Constraints struct {
	TaskTimeout time.Duration `json:"taskTimeout,omitempty"`
	MaxRetries  int           `json:"maxRetries,omitempty"`
}

// Options configures one run.
type Options struct {
	Strategy    Strategy    `json:"strategy"`
	MaxAgents   int         `json:"maxAgents"`
	Constraints Constraints `json:"constraints"`
}

// Executor performs one task on behalf of an agent. Returning an error is a
// failed execution; a result with Success false is a failed task. Both are
// recorded as failed results.
type Executor interface {
	Execute(ctx context.Context, agentID string, t task.Task) (task.Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, agentID string, t task.Task) (task.Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, agentID string, t task.Task) (task.Result, error) {
	return f(ctx, agentID, t)
}

// Metrics summarizes a run. TotalTasks is every planned task. ParallelTasks
// counts tasks executed by a pool of more than one agent, SequentialTasks
// the rest of the executed ones, so
// ParallelTasks+SequentialTasks+SkippedCount == TotalTasks.
type Metrics struct {
	TotalTasks         int           `json:"totalTasks"`
	ParallelTasks      int           `json:"parallelTasks"`
	SequentialTasks    int           `json:"sequentialTasks"`
	TotalDuration      time.Duration `json:"totalDuration"`
	SequentialDuration time.Duration `json:"sequentialDuration"`
	ActualSpeedup      float64       `json:"actualSpeedup"`
	AgentCount         int           `json:"agentCount"`
	ConflictCount      int           `json:"conflictCount"`
	FailureCount       int           `json:"failureCount"`
	RetryCount         int           `json:"retryCount"`
	SkippedCount       int           `json:"skippedCount"`
}

// Result is the outcome of a run. Task failures live in Results; Execute
// only returns an error for an invalid plan.
type Result struct {
	RunID     string           `json:"runId"`
	Strategy  Strategy         `json:"strategy"`
	Success   bool             `json:"success"`
	Canceled  bool             `json:"canceled,omitempty"`
	Results   []task.Result    `json:"results"`
	Skipped   []string         `json:"skipped,omitempty"`
	Batches   []BatchOutcome   `json:"batches"`
	Conflicts *conflict.Report `json:"conflicts"`
	Metrics   Metrics          `json:"metrics"`
}

// Err summarises an unsuccessful run as a CoordinatorError matching
// ErrTaskFailed and, when batches were skipped, ErrTaskSkipped. It returns
// nil for a successful run.
func (r *Result) Err() error {
	if r.Success {
		return nil
	}
	cause := errors.ErrTaskFailed
	switch m := r.Metrics; {
	case m.FailureCount > 0 && m.SkippedCount > 0:
		cause = fmt.Errorf("%w, %w", errors.ErrTaskFailed, errors.ErrTaskSkipped)
	case m.SkippedCount > 0:
		cause = errors.ErrTaskSkipped
	}
	return errors.NewCoordinatorError(
		fmt.Sprintf("%d failed, %d skipped", r.Metrics.FailureCount, r.Metrics.SkippedCount),
		cause,
	).WithRunID(r.RunID)
}

// Config holds the coordinator's collaborators. Only Executor is required.
type Config struct {
	Executor Executor
	Detector *conflict.Detector
	Observer Observer
	Logger   *logging.Logger
	Recorder *metrics.Recorder
	Tracer   trace.Tracer
}

// Coordinator runs plans. It runs one plan at a time; Snapshot reports the
// agents of the batch currently executing.
type Coordinator struct {
	executor Executor
	detector *conflict.Detector
	observer Observer
	logger   *logging.Logger
	recorder *metrics.Recorder
	tracer   trace.Tracer

	runMu sync.Mutex // serializes Execute

	mu     sync.RWMutex
	agents []*agent
}

// New creates a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Executor == nil {
		return nil, errors.NewCoordinatorError("executor is required", errors.ErrExecutorUnavailable)
	}
	c := &Coordinator{
		executor: cfg.Executor,
		detector: cfg.Detector,
		observer: cfg.Observer,
		logger:   logging.OrNop(cfg.Logger),
		recorder: cfg.Recorder,
		tracer:   cfg.Tracer,
	}
	if c.detector == nil {
		d, err := conflict.New(conflict.Config{Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		c.detector = d
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.tracer == nil {
		c.tracer = telemetry.Tracer(nil)
	}
	return c, nil
}

// Snapshot returns the progress of every agent in the current batch. It is
// empty between runs.
func (c *Coordinator) Snapshot() []progress.AgentProgress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]progress.AgentProgress, 0, len(c.agents))
	for _, a := range c.agents {
		out = append(out, a.progress())
	}
	return out
}

// run holds the state of one Execute call.
type run struct {
	id     string
	opts   Options
	logger *logging.Logger

	mu       sync.Mutex
	results  []task.Result
	outcomes []BatchOutcome
	skipped  []string
	status   map[string]BatchStatus
	metrics  Metrics
}

func (r *run) record(res task.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	r.metrics.SequentialDuration += res.Duration
	if res.Attempts > 1 {
		r.metrics.RetryCount += res.Attempts - 1
	}
	if !res.Success {
		r.metrics.FailureCount++
	}
}

// Execute validates the plan and runs its batches in dependency order. A
// batch starts only after every batch it depends on has finished. Canceling
// ctx turns every remaining task into a failed result; the run still
// returns a complete Result.
func (c *Coordinator) Execute(ctx context.Context, plan Plan, opts Options) (*Result, error) {
	if err := Validate(plan, opts); err != nil {
		return nil, err
	}
	seq, err := order(plan.Batches)
	if err != nil {
		return nil, err
	}

	c.runMu.Lock()
	defer c.runMu.Unlock()

	r := &run{
		id:     uuid.New().String(),
		opts:   opts,
		status: make(map[string]BatchStatus, len(plan.Batches)),
	}
	r.logger = c.logger.WithRun(r.id)

	ctx, span := telemetry.StartStageSpan(ctx, c.tracer, "coordinate",
		attribute.String("run_id", r.id),
		attribute.String("strategy", string(opts.Strategy)),
		attribute.Int("batches", len(plan.Batches)),
		attribute.Int("max_agents", opts.MaxAgents),
	)
	defer span.End()

	r.logger.Info("run started",
		"strategy", string(opts.Strategy),
		"batches", len(plan.Batches),
		"tasks", plan.TaskCount(),
		"max_agents", opts.MaxAgents,
	)

	start := time.Now()
	for _, i := range seq {
		b := plan.Batches[i]
		if opts.Strategy == StrategyConservative && c.blocked(r, b.DependsOn) {
			c.skipBatch(r, b.ID, b.Tasks)
			continue
		}
		c.runBatch(ctx, r, b.ID, b.Tasks)
	}
	c.setAgents(nil)

	r.metrics.TotalDuration = time.Since(start)
	report := c.detector.Detect(r.results, plan.Graph)
	r.metrics.TotalTasks = plan.TaskCount()
	r.metrics.SequentialTasks = len(r.results) - r.metrics.ParallelTasks
	r.metrics.ConflictCount = len(report.Conflicts)
	r.metrics.SkippedCount = len(r.skipped)
	r.metrics.ActualSpeedup = speedup(r.metrics.SequentialDuration, r.metrics.TotalDuration)

	res := &Result{
		RunID:     r.id,
		Strategy:  opts.Strategy,
		Success:   r.metrics.FailureCount == 0 && len(r.skipped) == 0,
		Canceled:  ctx.Err() != nil,
		Results:   r.results,
		Skipped:   r.skipped,
		Batches:   r.outcomes,
		Conflicts: report,
		Metrics:   r.metrics,
	}
	if res.Results == nil {
		res.Results = []task.Result{}
	}

	c.recorder.Run(res.Metrics.ActualSpeedup)
	for _, cf := range report.Conflicts {
		c.recorder.Conflict(string(cf.Type))
	}
	if res.Success {
		telemetry.RecordSuccess(span, attribute.Float64("speedup", res.Metrics.ActualSpeedup))
	} else {
		telemetry.RecordError(span, res.Err())
	}

	r.logger.Info("run finished",
		"success", res.Success,
		"canceled", res.Canceled,
		"tasks", res.Metrics.TotalTasks,
		"failures", res.Metrics.FailureCount,
		"skipped", res.Metrics.SkippedCount,
		"conflicts", res.Metrics.ConflictCount,
		"speedup", res.Metrics.ActualSpeedup,
		"duration_ms", res.Metrics.TotalDuration.Milliseconds(),
	)
	return res, nil
}

// speedup is sequential/total, or 1 when either is zero.
func speedup(sequential, total time.Duration) float64 {
	if sequential <= 0 || total <= 0 {
		return 1
	}
	return float64(sequential) / float64(total)
}

func (c *Coordinator) blocked(r *run, deps []string) bool {
	for _, dep := range deps {
		if r.status[dep] != BatchSucceeded {
			return true
		}
	}
	return false
}

func (c *Coordinator) skipBatch(r *run, batchID string, tasks []task.Task) {
	ids := task.IDs(tasks)
	r.logger.WithBatch(batchID).Warn("batch skipped: prerequisite batch did not succeed",
		"tasks", len(ids),
	)
	outcome := BatchOutcome{BatchID: batchID, Status: BatchSkipped, Skipped: ids}
	r.status[batchID] = BatchSkipped
	r.skipped = append(r.skipped, ids...)
	r.outcomes = append(r.outcomes, outcome)
	c.recorder.Batch(string(r.opts.Strategy), string(BatchSkipped))
	c.observer.OnBatchFinished(outcome)
}

func (c *Coordinator) setAgents(agents []*agent) {
	c.mu.Lock()
	c.agents = agents
	c.mu.Unlock()
}

// runBatch executes one batch and blocks until every agent has drained
// its queue.
func (c *Coordinator) runBatch(ctx context.Context, r *run, batchID string, tasks []task.Task) {
	agents := assign(tasks, r.opts.MaxAgents)
	logger := r.logger.WithBatch(batchID)

	ctx, span := telemetry.StartBatchSpan(ctx, c.tracer, batchID, len(tasks), len(agents))
	defer span.End()

	c.setAgents(agents)
	c.observer.OnBatchStarted(batchID, len(agents))
	logger.Info("batch started", "tasks", len(tasks), "agents", len(agents))

	r.mu.Lock()
	r.metrics.AgentCount = max(r.metrics.AgentCount, len(agents))
	if len(agents) > 1 {
		r.metrics.ParallelTasks += len(tasks)
	}
	r.mu.Unlock()

	start := time.Now()
	var mu sync.Mutex
	outcome := BatchOutcome{BatchID: batchID, Agents: len(agents)}

	var wg conc.WaitGroup
	for _, a := range agents {
		wg.Go(func() {
			for _, t := range a.queue {
				c.mu.Lock()
				a.status = progress.StatusWorking
				a.current = t.ID
				a.started = time.Now()
				c.mu.Unlock()

				res := c.runTask(ctx, r, logger.WithAgent(a.id), a.id, t)

				c.mu.Lock()
				a.done++
				a.spent += t.Duration()
				a.current = ""
				if !res.Success {
					a.failed = true
				}
				c.mu.Unlock()

				r.record(res)
				mu.Lock()
				if res.Success {
					outcome.Succeeded = append(outcome.Succeeded, t.ID)
				} else {
					outcome.Failed = append(outcome.Failed, t.ID)
				}
				mu.Unlock()
				c.observer.OnTaskFinished(batchID, res)
			}

			c.mu.Lock()
			a.status = progress.StatusComplete
			if a.failed {
				a.status = progress.StatusFailed
			}
			c.mu.Unlock()
		})
	}
	if rec := wg.WaitAndRecover(); rec != nil {
		// Only reachable if an observer panicked; executor panics are
		// converted to failed results in runTask.
		logger.Error("agent panicked", "error", rec.AsError().Error())
	}

	outcome.Duration = time.Since(start)
	outcome.Status = BatchSucceeded
	if len(outcome.Failed) > 0 || len(outcome.Succeeded) < len(tasks) {
		outcome.Status = BatchFailed
	}
	slices.Sort(outcome.Succeeded)
	slices.Sort(outcome.Failed)

	r.status[batchID] = outcome.Status
	r.outcomes = append(r.outcomes, outcome)
	c.recorder.Batch(string(r.opts.Strategy), string(outcome.Status))
	c.observer.OnBatchFinished(outcome)

	if outcome.Status == BatchSucceeded {
		telemetry.RecordSuccess(span)
	} else {
		telemetry.RecordError(span, errors.NewCoordinatorError(
			fmt.Sprintf("%d of %d tasks failed", len(outcome.Failed), len(tasks)),
			errors.ErrTaskFailed,
		).WithRunID(r.id).WithBatchID(batchID))
	}
	logger.Info("batch finished",
		"status", string(outcome.Status),
		"succeeded", len(outcome.Succeeded),
		"failed", len(outcome.Failed),
		"duration_ms", outcome.Duration.Milliseconds(),
	)
}

// runTask executes t with the run's timeout and retry constraints and
// always returns a terminal result for it.
func (c *Coordinator) runTask(ctx context.Context, r *run, logger *logging.Logger, agentID string, t task.Task) task.Result {
	ctx, span := telemetry.StartTaskSpan(ctx, c.tracer, agentID, t.ID)
	defer span.End()

	limits := r.opts.Constraints
	start := time.Now()
	var (
		res task.Result
		err error
	)
	attempts := 0
	for {
		attempts++
		res, err = c.attempt(ctx, limits.TaskTimeout, agentID, t)
		if err == nil && res.Success {
			break
		}
		if attempts > limits.MaxRetries || ctx.Err() != nil {
			break
		}
		if permanent(err) {
			break
		}
		logger.Warn("retrying task", "task_id", t.ID, "attempt", attempts, "error", failureText(res, err))
	}

	res.AgentID = agentID
	res.TaskID = t.ID
	res.Attempts = attempts
	res.Duration = time.Since(start)
	if err != nil {
		res.Success = false
		res.Error = err.Error()
	} else if !res.Success && res.Error == "" {
		res.Error = errors.ErrTaskFailed.Error()
	}

	c.recorder.Task(res.Success, res.Duration, attempts-1)
	if res.Success {
		telemetry.RecordSuccess(span, attribute.Int("attempts", attempts))
		logger.Debug("task succeeded", "task_id", t.ID, "attempts", attempts, "duration_ms", res.Duration.Milliseconds())
	} else {
		cause := errors.ErrTaskFailed
		if err != nil {
			cause = err
		}
		timedOut := errors.Is(err, errors.ErrTimeout)
		span.SetAttributes(attribute.Bool("timed_out", timedOut))
		telemetry.RecordError(span, errors.NewExecutorError(res.Error, cause).
			WithAgentID(agentID).WithTaskID(t.ID))
		logger.Warn("task failed", "task_id", t.ID, "attempts", attempts, "timed_out", timedOut, "error", res.Error)
	}
	return res
}

// attempt runs the executor once. Panics, deadline overruns and
// cancellation come back as errors.
func (c *Coordinator) attempt(ctx context.Context, timeout time.Duration, agentID string, t task.Task) (task.Result, error) {
	if err := ctx.Err(); err != nil {
		return task.Result{}, errors.Wrapf(errors.ErrCanceled, "task %s not started", t.ID)
	}

	tctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		res task.Result
		err error
	)
	if rec := panics.Try(func() { res, err = c.executor.Execute(tctx, agentID, t) }); rec != nil {
		return task.Result{}, errors.NewExecutorError("executor panicked", rec.AsError()).
			WithAgentID(agentID).WithTaskID(t.ID).WithRetryable(false)
	}

	switch {
	case ctx.Err() != nil:
		return task.Result{}, errors.Wrapf(errors.ErrCanceled, "task %s", t.ID)
	case errors.Is(tctx.Err(), context.DeadlineExceeded):
		return task.Result{}, errors.NewTimeoutError("executing task "+t.ID, timeout).WithCause(tctx.Err())
	}
	return res, err
}

// permanent reports whether err explicitly opted out of retries. Plain
// errors and failed results are retried.
func permanent(err error) bool {
	var fe errors.FanoutError
	return errors.As(err, &fe) && !fe.IsRetryable()
}

func failureText(res task.Result, err error) string {
	if err != nil {
		return err.Error()
	}
	return res.Error
}
