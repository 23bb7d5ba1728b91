package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/fanout/internal/natsbus"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Serve tasks from a NATS server with simulated agents",
	Long: `Worker joins the fanout worker queue on a NATS server and executes
every task it receives with the simulator, publishing progress reports
while it works. Start any number of workers, then point
'fanout run --executor nats --nats-url ...' at the same server.

The worker runs until interrupted.`,
	Args: cobra.NoArgs,
	PreRunE: bindFlags(map[string]string{
		"nats-url": "executor.nats_url",
	}),
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().String("nats-url", "", "NATS server to serve tasks from")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	url := a.cfg.Executor.NATSURL
	if url == "" {
		return fmt.Errorf("a NATS server is required (--nats-url or executor.nats_url)")
	}
	sim, err := newSimulator(a.cfg.Executor, a.logger)
	if err != nil {
		return err
	}
	client, err := natsbus.NewClientFromURL(url)
	if err != nil {
		return err
	}
	defer client.Close()

	worker := natsbus.NewWorker(client, sim, a.logger)
	if err := worker.Start(); err != nil {
		return err
	}
	defer worker.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s (Ctrl+C to stop)\n", natsbus.TaskWildcard, url)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}
