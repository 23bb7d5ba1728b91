package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Iron-Ham/fanout/internal/config"
	"github.com/Iron-Ham/fanout/internal/coordinator"
	"github.com/Iron-Ham/fanout/internal/history"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/metrics"
	"github.com/Iron-Ham/fanout/internal/pipeline"
	"github.com/Iron-Ham/fanout/internal/telemetry"
)

// app holds what every command needs: validated config, logger, metrics
// and tracing. Close releases all of it.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	registry *prometheus.Registry
	recorder *metrics.Recorder
	tp       *sdktrace.TracerProvider

	metricsServer *http.Server
	history       *history.Store
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &app{cfg: cfg, logger: createLogger(cfg)}
	a.registry, a.recorder = metrics.NewRegistry()
	a.tp = telemetry.NewProvider("fanout")

	if cfg.Metrics.Addr != "" {
		if err := a.serveMetrics(cfg.Metrics.Addr); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

// createLogger creates a logger if logging is enabled in config.
// Returns a NopLogger if logging is disabled or if creation fails.
func createLogger(cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NopLogger()
	}
	logger, err := logging.NewLogger(cfg.Logging.ResolveLogDir(), logging.ParseLevel(cfg.Logging.Level))
	if err != nil {
		return logging.NopLogger()
	}
	return logger
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on metrics address: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))
	a.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "error", err.Error())
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

// openHistory opens the run history database when history is enabled.
func (a *app) openHistory() (*history.Store, error) {
	if !a.cfg.History.Enabled {
		return nil, nil
	}
	if a.history == nil {
		store, err := history.Open(a.cfg.History.ResolvePath())
		if err != nil {
			return nil, err
		}
		a.history = store
	}
	return a.history, nil
}

// service builds the pipeline from config. exec may be nil for commands
// that only plan.
func (a *app) service(exec coordinator.Executor, opts ...pipeline.Option) (*pipeline.Service, error) {
	matcher, err := a.cfg.Graph.Matcher()
	if err != nil {
		return nil, err
	}
	opts = append([]pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithRecorder(a.recorder),
		pipeline.WithTracerProvider(a.tp),
	}, opts...)

	return pipeline.New(pipeline.Config{
		Executor:          exec,
		Matcher:           matcher,
		MinConfidence:     a.cfg.Graph.MinConfidence,
		DetectImplicit:    a.cfg.Graph.DetectImplicit,
		Tuning:            a.cfg.Analysis,
		IgnorePatterns:    a.cfg.Conflicts.IgnorePatterns,
		MinutesPerPercent: a.cfg.Progress.MinutesPerPercent,
	}, opts...)
}

func (a *app) Close() error {
	var errs []error
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, a.metricsServer.Shutdown(ctx))
		cancel()
	}
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if a.tp != nil {
		errs = append(errs, a.tp.Shutdown(context.Background()))
	}
	errs = append(errs, a.logger.Close())
	return errors.Join(errs...)
}
