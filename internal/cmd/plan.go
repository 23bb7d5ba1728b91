package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/fanout/internal/analysis"
	"github.com/Iron-Ham/fanout/internal/batch"
	"github.com/Iron-Ham/fanout/internal/graph"
	"github.com/Iron-Ham/fanout/internal/task"
	"github.com/Iron-Ham/fanout/internal/tui/styles"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <plan-file>",
	Short: "Decide whether a task set is worth parallelizing",
	Long: `Analyze scores a task set on independence, duration, conflict risk,
dependency complexity and resource contention, estimates the achievable
speedup, and lists the risks of running the tasks concurrently.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var graphCmd = &cobra.Command{
	Use:   "graph <plan-file>",
	Short: "Build and show the task dependency graph",
	Long: `Graph builds the dependency graph from declared prerequisites and,
with --implicit, from dependencies inferred from task descriptions.
Cycles are reported, not treated as errors.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags(map[string]string{"implicit": "graph.detect_implicit"}),
	RunE:    runGraph,
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize <plan-file>",
	Short: "Partition tasks into dependency-ordered batches",
	Long: `Optimize splits every dependency level into batches of at most
--max-agents tasks.

Goals:
  minimize-time       fill batches with the longest tasks first
  balance-load        even out total minutes across batches
  minimize-conflicts  keep similar tasks in separate batches`,
	Args: cobra.ExactArgs(1),
	PreRunE: bindFlags(map[string]string{
		"goal":       "batch.goal",
		"max-agents": "batch.max_agents",
	}),
	RunE: runOptimize,
}

func init() {
	graphCmd.Flags().Bool("implicit", true, "infer dependencies from task descriptions")
	optimizeCmd.Flags().String("goal", "minimize-time", "optimization goal")
	optimizeCmd.Flags().Int("max-agents", 4, "maximum tasks per batch")

	rootCmd.AddCommand(analyzeCmd, graphCmd, optimizeCmd)
}

func loadPlan(path string) (*task.PlanFile, error) {
	pf, err := task.LoadPlanFile(path)
	if err != nil {
		return nil, err
	}
	if pf.Description == "" {
		pf.Description = path
	}
	return pf, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	pf, err := loadPlan(args[0])
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	svc, err := a.service(nil)
	if err != nil {
		return err
	}
	res, err := svc.AnalyzeParallelizability(cmd.Context(), pf.Description, pf.Tasks, pf.Context)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, res)
	}
	printAnalysis(out, res)
	return nil
}

func printAnalysis(w io.Writer, res *analysis.Result) {
	section(w, "Analysis")
	fmt.Fprintf(w, "Parallelizable: %s\n", yesNo(res.Parallelizable, "yes", "no"))
	fmt.Fprintf(w, "Confidence:     %.0f%%\n", res.Confidence)
	fmt.Fprintf(w, "Speedup:        %.2fx\n", res.EstimatedSpeedup)
	if res.Score != nil {
		f := res.Score.Factors
		fmt.Fprintf(w, "Score:          %.1f (%s)\n", res.Score.Overall, res.Score.Recommendation)
		fmt.Fprintln(w, styles.Muted.Render(fmt.Sprintf(
			"  independence %.0f  duration %.0f  conflict risk %.0f  complexity %.0f  contention %.0f",
			f.Independence, f.DurationValue, f.ConflictRisk, f.DependencyComplexity, f.ResourceContention)))
	}
	if len(res.CriticalPath) > 0 {
		fmt.Fprintf(w, "Critical path:  %s\n", strings.Join(res.CriticalPath, " → "))
	}

	if len(res.Batches) > 0 {
		printBatches(w, res.Batches)
	}

	if len(res.Risks) > 0 {
		section(w, "Risks")
		for _, r := range res.Risks {
			fmt.Fprintf(w, "%s %s\n", styles.SeverityStyle(string(r.Severity)).Render("["+string(r.Severity)+"]"), r.Description)
			if r.Mitigation != "" {
				fmt.Fprintln(w, styles.Muted.Render("  "+r.Mitigation))
			}
		}
	}

	section(w, "Reasoning")
	fmt.Fprintln(w, res.Reasoning)
}

func runGraph(cmd *cobra.Command, args []string) error {
	pf, err := loadPlan(args[0])
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	svc, err := a.service(nil)
	if err != nil {
		return err
	}
	res, err := svc.BuildDependencyGraph(cmd.Context(), pf.Tasks, viper.GetBool("graph.detect_implicit"))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, res)
	}
	printGraph(out, res)
	return nil
}

func printGraph(w io.Writer, res *graph.Result) {
	g := res.Graph
	section(w, "Dependency graph")
	fmt.Fprintf(w, "%d tasks, %d edges (%d inferred)\n", g.Len(), len(g.Edges), len(res.ImplicitDependencies))

	levels := map[int][]string{}
	maxLevel := graph.UnreachableLevel
	for _, id := range g.Order {
		lvl := g.Nodes[id].Level
		levels[lvl] = append(levels[lvl], id)
		maxLevel = max(maxLevel, lvl)
	}
	for lvl := 0; lvl <= maxLevel; lvl++ {
		fmt.Fprintf(w, "%s %s\n", styles.Bold.Render(fmt.Sprintf("level %d:", lvl)), strings.Join(levels[lvl], ", "))
	}
	if ids := levels[graph.UnreachableLevel]; len(ids) > 0 {
		fmt.Fprintf(w, "%s %s\n", styles.Error.Render("unreachable:"), strings.Join(ids, ", "))
	}

	if len(g.Edges) > 0 {
		section(w, "Edges")
		for _, e := range g.Edges {
			line := fmt.Sprintf("%s → %s", e.From, e.To)
			if e.Kind == graph.EdgeImplicit {
				line += styles.Muted.Render(fmt.Sprintf("  (inferred, %.0f%%)", e.Confidence*100))
			}
			fmt.Fprintln(w, line)
		}
	}
	for _, d := range res.ImplicitDependencies {
		fmt.Fprintln(w, styles.Muted.Render(fmt.Sprintf("  %s → %s: %s", d.From, d.To, d.Reason)))
	}

	if res.HasCycles {
		section(w, "Cycles")
		for _, c := range res.Cycles {
			fmt.Fprintln(w, styles.Error.Render(strings.Join(c, " → ")))
		}
	}
}

func runOptimize(cmd *cobra.Command, args []string) error {
	pf, err := loadPlan(args[0])
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	svc, err := a.service(nil)
	if err != nil {
		return err
	}
	goal, err := batch.ParseGoal(a.cfg.Batch.Goal)
	if err != nil {
		return err
	}
	plan, err := svc.OptimizeBatchDistribution(cmd.Context(), pf.Tasks, nil, a.cfg.Batch.MaxAgents, goal)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, plan)
	}
	printBatches(out, plan.Batches)
	fmt.Fprintf(out, "\nEstimated total: %.1f min   Load balance: %.0f/100\n", plan.EstimatedTotalTime, plan.LoadBalance)
	fmt.Fprintln(out, styles.Muted.Render(plan.Reasoning))
	return nil
}

func printBatches(w io.Writer, batches []batch.Batch) {
	section(w, "Batches")
	for _, b := range batches {
		deps := ""
		if len(b.DependsOn) > 0 {
			deps = styles.Muted.Render(" after " + strings.Join(b.DependsOn, ", "))
		}
		fmt.Fprintf(w, "%s %s%s\n", styles.Accent.Render(b.ID), styles.Muted.Render(fmt.Sprintf("(level %d, %.0f min)", b.Level, b.EstimatedDuration)), deps)
		for _, t := range b.Tasks {
			fmt.Fprintf(w, "  • %-16s %s\n", t.ID, t.Description)
		}
	}
}
