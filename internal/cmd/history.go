package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/fanout/internal/history"
	"github.com/Iron-Ham/fanout/internal/tui/styles"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	Long: `History lists the runs recorded by 'fanout run', newest first.
Recording is controlled by history.enabled and history.path.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", history.DefaultListLimit, "maximum runs to list")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistoryFor(a *app) (*history.Store, error) {
	store, err := a.openHistory()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("run history is disabled (history.enabled = false)")
	}
	return store, nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	store, err := openHistoryFor(a)
	if err != nil {
		return err
	}
	runs, err := store.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if runs == nil {
			runs = []history.Run{}
		}
		return writeJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	section(out, "Runs")
	for _, r := range runs {
		status := yesNo(r.Success, "ok    ", "failed")
		if r.Canceled {
			status = styles.Warning.Render("cancel")
		}
		fmt.Fprintf(out, "%s  %s  %s  %-12s %3d tasks  %5.2fx\n",
			styles.Muted.Render(r.ID), r.CreatedAt.Local().Format(time.DateTime), status,
			r.Strategy, r.Metrics.TotalTasks, r.Metrics.ActualSpeedup)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	store, err := openHistoryFor(a)
	if err != nil {
		return err
	}
	run, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, run)
	}
	printRun(out, run)
	return nil
}

func printRun(w io.Writer, r *history.Run) {
	m := r.Metrics
	section(w, "Run "+r.ID)
	fmt.Fprintf(w, "Run ID:     %s\n", r.RunID)
	fmt.Fprintf(w, "Recorded:   %s\n", r.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "Strategy:   %s\n", r.Strategy)
	fmt.Fprintf(w, "Success:    %s\n", yesNo(r.Success, "yes", "no"))
	if r.Canceled {
		fmt.Fprintln(w, styles.Warning.Render("Canceled before completion"))
	}
	fmt.Fprintf(w, "Tasks:      %d (%d parallel, %d sequential)\n", m.TotalTasks, m.ParallelTasks, m.SequentialTasks)
	fmt.Fprintf(w, "Failures:   %d   Retries: %d   Skipped: %d\n", m.FailureCount, m.RetryCount, m.SkippedCount)
	fmt.Fprintf(w, "Conflicts:  %d (%s)\n", m.ConflictCount, r.ConflictStrategy)
	fmt.Fprintf(w, "Speedup:    %.2fx with %d agents in %s\n", m.ActualSpeedup, m.AgentCount, m.TotalDuration.Round(time.Millisecond))
}
