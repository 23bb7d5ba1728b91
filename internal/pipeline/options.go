package pipeline

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/fanout/internal/coordinator"
	"github.com/Iron-Ham/fanout/internal/history"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/metrics"
)

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger   *logging.Logger
	recorder *metrics.Recorder
	tp       trace.TracerProvider
	history  *history.Store
	observer coordinator.Observer
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *logging.Logger) Option {
	return func(o *serviceOptions) { o.logger = l }
}

// WithRecorder records Prometheus metrics for every operation.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *serviceOptions) { o.recorder = r }
}

// WithTracerProvider sets the provider for stage spans. The default is the
// otel global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *serviceOptions) { o.tp = tp }
}

// WithHistory records a summary of every coordinated run in store.
func WithHistory(store *history.Store) Option {
	return func(o *serviceOptions) { o.history = store }
}

// WithObserver forwards coordinator events to obs.
func WithObserver(obs coordinator.Observer) Option {
	return func(o *serviceOptions) { o.observer = obs }
}
