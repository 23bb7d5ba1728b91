package cmd

import (
	"fmt"

	"github.com/Iron-Ham/fanout/internal/config"
	"github.com/Iron-Ham/fanout/internal/coordinator"
	"github.com/Iron-Ham/fanout/internal/executor"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/natsbus"
)

// executorSetup is a configured executor plus whatever it needs torn down.
type executorSetup struct {
	exec     coordinator.Executor
	describe string
	cleanup  []func()
}

func (s *executorSetup) Close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
}

func newSimulator(cfg config.ExecutorConfig, logger *logging.Logger) (*executor.Simulator, error) {
	return executor.NewSimulator(executor.SimulatorConfig{
		SuccessRate: cfg.SuccessRate,
		TimeScale:   cfg.TimeScale,
		Seed:        cfg.Seed,
		Logger:      logger,
	})
}

// newExecutor builds the executor selected by cfg. The nats kind without a
// URL starts an embedded server with one local simulated worker, which
// exercises the full request/reply path on a single host.
func newExecutor(cfg config.ExecutorConfig, logger *logging.Logger) (*executorSetup, error) {
	setup := &executorSetup{}

	switch executor.Kind(cfg.Kind) {
	case executor.KindNATS:
		url := cfg.NATSURL
		if url == "" {
			bus, err := natsbus.NewBus(natsbus.BusConfig{Port: natsbus.RandomPort})
			if err != nil {
				return nil, err
			}
			setup.cleanup = append(setup.cleanup, bus.Close)
			url = bus.ClientURL()

			sim, err := newSimulator(cfg, logger)
			if err != nil {
				setup.Close()
				return nil, err
			}
			workerClient, err := natsbus.NewClientFromURL(url)
			if err != nil {
				setup.Close()
				return nil, err
			}
			setup.cleanup = append(setup.cleanup, workerClient.Close)
			worker := natsbus.NewWorker(workerClient, sim, logger)
			if err := worker.Start(); err != nil {
				setup.Close()
				return nil, err
			}
			setup.cleanup = append(setup.cleanup, worker.Stop)
		}

		client, err := natsbus.NewClientFromURL(url)
		if err != nil {
			setup.Close()
			return nil, err
		}
		setup.cleanup = append(setup.cleanup, client.Close)
		setup.exec = natsbus.NewRemoteExecutor(client, cfg.RequestTimeout, logger)
		setup.describe = "nats " + url

	case executor.KindSimulate:
		sim, err := newSimulator(cfg, logger)
		if err != nil {
			return nil, err
		}
		setup.exec = sim
		setup.describe = fmt.Sprintf("simulate (success rate %.2f, seed %d)", cfg.SuccessRate, cfg.Seed)

	default:
		return nil, fmt.Errorf("unknown executor kind %q", cfg.Kind)
	}
	return setup, nil
}
