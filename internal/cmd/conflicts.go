package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/fanout/internal/conflict"
	"github.com/Iron-Ham/fanout/internal/graph"
	"github.com/Iron-Ham/fanout/internal/task"
	"github.com/Iron-Ham/fanout/internal/tui/styles"
)

var conflictsPlanFile string

var conflictsCmd = &cobra.Command{
	Use:   "conflicts <results-file>",
	Short: "Detect conflicts between agent results",
	Long: `Conflicts checks what each agent changed for overlapping resources,
references to deleted resources, duplicate or cross-task symbols and, when
--plan is given, successful tasks whose prerequisites failed.

Resources matching conflicts.ignore_patterns are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runConflicts,
}

func init() {
	conflictsCmd.Flags().StringVar(&conflictsPlanFile, "plan", "", "plan file providing the dependency graph")
	rootCmd.AddCommand(conflictsCmd)
}

func runConflicts(cmd *cobra.Command, args []string) error {
	results, err := task.LoadResultsFile(args[0])
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

	var g *graph.Graph
	if conflictsPlanFile != "" {
		pf, err := loadPlan(conflictsPlanFile)
		if err != nil {
			return err
		}
		gr, err := svc.BuildDependencyGraph(cmd.Context(), pf.Tasks, false)
		if err != nil {
			return err
		}
		g = gr.Graph
	}

	report, err := svc.DetectConflicts(cmd.Context(), results, g)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, report)
	}
	printConflicts(out, report)
	return nil
}

func printConflicts(w io.Writer, report *conflict.Report) {
	section(w, "Conflicts")
	if !report.HasConflicts {
		fmt.Fprintln(w, styles.Secondary.Render("No conflicts detected"))
		return
	}
	fmt.Fprintf(w, "%d conflicts, recommended resolution: %s\n", len(report.Conflicts), styles.Bold.Render(string(report.Strategy)))
	for _, c := range report.Conflicts {
		fmt.Fprintf(w, "\n%s %s %s\n",
			styles.SeverityStyle(string(c.Severity)).Render("["+string(c.Severity)+"]"),
			styles.Bold.Render(c.ID),
			styles.Muted.Render(fmt.Sprintf("%s/%s", c.Type, c.DetectionMethod)))
		fmt.Fprintf(w, "  %s\n", c.Description)
		fmt.Fprintf(w, "  tasks: %s   resources: %s\n", strings.Join(c.TaskIDs, ", "), strings.Join(c.Resources, ", "))
		for _, r := range c.Resolutions {
			auto := ""
			if r.Automatic {
				auto = styles.Secondary.Render(" (automatic)")
			}
			fmt.Fprintln(w, styles.Muted.Render(fmt.Sprintf("    %s: %s", r.Strategy, r.Description))+auto)
		}
	}
}
