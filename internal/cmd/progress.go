package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/fanout/internal/natsbus"
	"github.com/Iron-Ham/fanout/internal/pipeline"
	"github.com/Iron-Ham/fanout/internal/progress"
	"github.com/Iron-Ham/fanout/internal/tui"
	"github.com/Iron-Ham/fanout/internal/tui/styles"
)

var (
	progressWatch   bool
	progressNATSURL string
)

var progressCmd = &cobra.Command{
	Use:   "progress [snapshot-file]",
	Short: "Aggregate per-agent progress reports",
	Long: `Progress combines agent reports into overall completion, an estimated
completion time and a list of bottlenecks.

Reports come from a snapshot file (YAML or JSON, a list of reports or a
mapping with an "agents" key) or, with --nats-url, from the progress
subjects of running workers. With --watch the report is re-rendered
whenever the input changes; on a terminal this opens a live dashboard.

Strategies: simple-average, weighted (every report needs a weight) and
critical-path (the slowest 30% of agents by remaining time).`,
	Args: cobra.MaximumNArgs(1),
	PreRunE: bindFlags(map[string]string{
		"strategy": "progress.strategy",
	}),
	RunE: runProgress,
}

func init() {
	progressCmd.Flags().String("strategy", "simple-average", "aggregation strategy")
	progressCmd.Flags().BoolVarP(&progressWatch, "watch", "w", false, "re-render when reports change")
	progressCmd.Flags().StringVar(&progressNATSURL, "nats-url", "", "read reports from workers on this NATS server")
	rootCmd.AddCommand(progressCmd)
}

// watchedSource is a progress source that reports changes.
type watchedSource interface {
	progress.Source
	SetChangeCallback(func([]progress.AgentProgress))
}

func runProgress(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && progressNATSURL == "" {
		return fmt.Errorf("a snapshot file or --nats-url is required")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	strategy, err := progress.ParseStrategy(a.cfg.Progress.Strategy)
	if err != nil {
		return err
	}
	svc, err := a.service(nil)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 1 && !progressWatch {
		reports, err := progress.LoadSnapshotFile(args[0])
		if err != nil {
			return err
		}
		return renderProgress(cmd.Context(), out, svc, reports, strategy)
	}

	var (
		src   watchedSource
		title string
	)
	if len(args) == 1 {
		title = args[0]
		fs, err := progress.NewFileSource(args[0], a.logger)
		if err != nil {
			return err
		}
		fs.Start()
		defer fs.Stop()
		src = fs
	} else {
		client, err := natsbus.NewClientFromURL(progressNATSURL)
		if err != nil {
			return err
		}
		defer client.Close()
		ns, err := natsbus.NewProgressSource(client, a.logger)
		if err != nil {
			return err
		}
		defer func() { _ = ns.Close() }()
		src = ns
		title = progressNATSURL
	}

	if isTerminal() && !jsonOutput {
		dashboard := tui.New(title, src, func(reports []progress.AgentProgress) (*progress.Report, error) {
			return svc.AggregateProgress(cmd.Context(), reports, strategy)
		})
		return dashboard.Run()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watchProgress(ctx, out, svc, src, strategy)
}

// watchProgress renders the current snapshot, then again after every
// change until ctx is done.
func watchProgress(ctx context.Context, out io.Writer, svc *pipeline.Service, src watchedSource, strategy progress.Strategy) error {
	changed := make(chan []progress.AgentProgress, 1)
	src.SetChangeCallback(func(reports []progress.AgentProgress) {
		select {
		case changed <- reports:
		default:
			// Drop the stale pending update; the renderer reads the newest.
			select {
			case <-changed:
			default:
			}
			changed <- reports
		}
	})

	render := func(reports []progress.AgentProgress) {
		if err := renderProgress(ctx, out, svc, reports, strategy); err != nil {
			fmt.Fprintln(out, styles.Error.Render(err.Error()))
		}
	}

	render(src.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return nil
		case reports := <-changed:
			render(reports)
		}
	}
}

func renderProgress(ctx context.Context, out io.Writer, svc *pipeline.Service, reports []progress.AgentProgress, strategy progress.Strategy) error {
	report, err := svc.AggregateProgress(ctx, reports, strategy)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(out, report)
	}
	printProgress(out, report)
	return nil
}

func printProgress(w io.Writer, report *progress.Report) {
	section(w, "Progress")
	fmt.Fprintf(w, "Overall:    %s %.1f%%  %s\n", progressBar(report.Overall, 30), report.Overall, styles.Muted.Render("("+string(report.Method)+")"))
	fmt.Fprintf(w, "Completion: %s\n", report.EstimatedCompletion.Local().Format("2006-01-02 15:04:05"))

	agents := make([]string, 0, len(report.AgentStatus))
	for id := range report.AgentStatus {
		agents = append(agents, id)
	}
	sort.Strings(agents)
	for _, id := range agents {
		status := report.AgentStatus[id]
		fmt.Fprintf(w, "  %-16s %s\n", id, styles.StatusStyle(status).Render(string(status)))
	}
	if len(report.CriticalPath) > 0 {
		fmt.Fprintf(w, "Critical:   %s\n", strings.Join(report.CriticalPath, ", "))
	}

	if len(report.Bottlenecks) > 0 {
		section(w, "Bottlenecks")
		for _, b := range report.Bottlenecks {
			fmt.Fprintf(w, "%s %s %s\n", styles.SeverityStyle(string(b.Impact)).Render("["+string(b.Impact)+"]"), styles.Bold.Render(b.AgentID), b.Description)
		}
	}
}

// progressBar renders pct (0-100) as a bar of width cells.
func progressBar(pct float64, width int) string {
	filled := int(pct / 100 * float64(width))
	filled = max(0, min(width, filled))
	return styles.Secondary.Render(strings.Repeat("█", filled)) + styles.Muted.Render(strings.Repeat("░", width-filled))
}
