package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/fanout/internal/batch"
	"github.com/Iron-Ham/fanout/internal/coordinator"
	"github.com/Iron-Ham/fanout/internal/pipeline"
	"github.com/Iron-Ham/fanout/internal/task"
	"github.com/Iron-Ham/fanout/internal/tui/styles"
)

var runCmd = &cobra.Command{
	Use:   "run <plan-file>",
	Short: "Plan and execute a task set batch by batch",
	Long: `Run builds the dependency graph, optimizes batches and executes them.
A batch starts only when every batch it depends on has finished.

Strategies:
  conservative  skip batches whose prerequisites did not all succeed
  aggressive    run every batch regardless of earlier failures

Executors:
  simulate  deterministic simulated agents (default)
  nats      dispatch tasks to workers over NATS; without --nats-url an
            embedded server and a local simulated worker are started

Interrupting a run cancels the remaining tasks; the partial result is still
reported and recorded.`,
	Args: cobra.ExactArgs(1),
	PreRunE: bindFlags(map[string]string{
		"strategy":     "coordinator.strategy",
		"max-agents":   "coordinator.max_agents",
		"timeout":      "coordinator.task_timeout",
		"retries":      "coordinator.max_retries",
		"goal":         "batch.goal",
		"executor":     "executor.kind",
		"nats-url":     "executor.nats_url",
		"metrics-addr": "metrics.addr",
	}),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.String("strategy", "conservative", "coordination strategy: conservative or aggressive")
	f.Int("max-agents", 4, "agent pool size; also caps the tasks per batch")
	f.Duration("timeout", 0, "per-task timeout (0 = none)")
	f.Int("retries", 0, "re-executions of a failed task")
	f.String("goal", "minimize-time", "batch optimization goal")
	f.String("executor", "simulate", "executor: simulate or nats")
	f.String("nats-url", "", "NATS server for the nats executor")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address while running")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	pf, err := loadPlan(args[0])
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	setup, err := newExecutor(a.cfg.Executor, a.logger)
	if err != nil {
		return err
	}
	defer setup.Close()

	out := cmd.OutOrStdout()
	opts := []pipeline.Option{}
	if !jsonOutput {
		opts = append(opts, pipeline.WithObserver(newRunPrinter(out)))
	}
	store, err := a.openHistory()
	if err != nil {
		a.logger.Warn("run history unavailable", "error", err.Error())
	} else if store != nil {
		opts = append(opts, pipeline.WithHistory(store))
	}

	svc, err := a.service(setup.exec, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Batches are sized to the pool that will run them.
	plan, err := buildPlan(ctx, svc, pf.Tasks, a.cfg.Graph.DetectImplicit, a.cfg.Coordinator.MaxAgents, a.cfg.Batch.Goal)
	if err != nil {
		return err
	}

	strategy, err := coordinator.ParseStrategy(a.cfg.Coordinator.Strategy)
	if err != nil {
		return err
	}
	if !jsonOutput {
		fmt.Fprintf(out, "%s %d tasks in %d batches, %s strategy, executor %s\n",
			styles.Title.Render("fanout run"), plan.TaskCount(), len(plan.Batches), strategy, setup.describe)
	}

	res, err := svc.CoordinateExecution(ctx, plan, strategy, a.cfg.Coordinator.MaxAgents, coordinator.Constraints{
		TaskTimeout: a.cfg.Coordinator.TaskTimeout,
		MaxRetries:  a.cfg.Coordinator.MaxRetries,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := writeJSON(out, res); err != nil {
			return err
		}
	} else {
		printRunResult(out, res)
	}
	return res.Err()
}

// buildPlan builds the graph and batches for tasks. Cycles are rejected
// here since no batch order exists for them.
func buildPlan(ctx context.Context, svc *pipeline.Service, tasks []task.Task, detectImplicit bool, maxAgents int, goalName string) (coordinator.Plan, error) {
	goal, err := batch.ParseGoal(goalName)
	if err != nil {
		return coordinator.Plan{}, err
	}
	gr, err := svc.BuildDependencyGraph(ctx, tasks, detectImplicit)
	if err != nil {
		return coordinator.Plan{}, err
	}
	bp, err := svc.OptimizeBatchDistribution(ctx, tasks, gr.Graph, maxAgents, goal)
	if err != nil {
		return coordinator.Plan{}, err
	}
	return coordinator.PlanFromBatches(bp, gr.Graph), nil
}

// runPrinter writes batch and task events as they happen. Task events
// arrive from agent goroutines.
type runPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func newRunPrinter(w io.Writer) *runPrinter {
	return &runPrinter{w: w}
}

func (p *runPrinter) OnBatchStarted(batchID string, agents int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s %s\n", styles.Accent.Render("▶"), batchID, styles.Muted.Render(fmt.Sprintf("(%d agents)", agents)))
}

func (p *runPrinter) OnTaskFinished(_ string, r task.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mark := styles.Secondary.Render("✓")
	detail := ""
	if !r.Success {
		mark = styles.Error.Render("✗")
		detail = " " + styles.Error.Render(r.Error)
	}
	fmt.Fprintf(p.w, "  %s %-16s %s%s\n", mark, r.TaskID,
		styles.Muted.Render(fmt.Sprintf("%s %s", r.AgentID, r.Duration.Round(time.Millisecond))), detail)
}

func (p *runPrinter) OnBatchFinished(o coordinator.BatchOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	style := styles.Secondary
	switch o.Status {
	case coordinator.BatchFailed:
		style = styles.Error
	case coordinator.BatchSkipped:
		style = styles.Warning
	}
	fmt.Fprintf(p.w, "  %s %s\n", style.Render(string(o.Status)),
		styles.Muted.Render(fmt.Sprintf("%d ok, %d failed, %d skipped in %s",
			len(o.Succeeded), len(o.Failed), len(o.Skipped), o.Duration.Round(time.Millisecond))))
}

func printRunResult(w io.Writer, res *coordinator.Result) {
	m := res.Metrics
	section(w, "Run summary")
	fmt.Fprintf(w, "Run:       %s\n", res.RunID)
	status := yesNo(res.Success, "succeeded", "failed")
	if res.Canceled {
		status = styles.Warning.Render("canceled")
	}
	fmt.Fprintf(w, "Status:    %s\n", status)
	fmt.Fprintf(w, "Tasks:     %d (%d parallel, %d sequential)\n", m.TotalTasks, m.ParallelTasks, m.SequentialTasks)
	fmt.Fprintf(w, "Failures:  %d   Retries: %d   Skipped: %d\n", m.FailureCount, m.RetryCount, m.SkippedCount)
	fmt.Fprintf(w, "Duration:  %s (sequential %s)\n", m.TotalDuration.Round(time.Millisecond), m.SequentialDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "Speedup:   %.2fx with %d agents\n", m.ActualSpeedup, m.AgentCount)

	if len(res.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped:   %s\n", styles.Warning.Render(strings.Join(res.Skipped, ", ")))
	}
	if res.Conflicts != nil {
		printConflicts(w, res.Conflicts)
	}
}
