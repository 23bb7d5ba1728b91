package config

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/Iron-Ham/fanout/internal/batch"
	"github.com/Iron-Ham/fanout/internal/conflict"
	"github.com/Iron-Ham/fanout/internal/coordinator"
	"github.com/Iron-Ham/fanout/internal/executor"
	"github.com/Iron-Ham/fanout/internal/progress"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "coordinator.max_agents")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// maxAgentsLimit bounds every agent count setting
const maxAgentsLimit = 64

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateGraph()...)
	errors = append(errors, c.validateAnalysis()...)
	errors = append(errors, c.validateBatch()...)
	errors = append(errors, c.validateCoordinator()...)
	errors = append(errors, c.validateConflicts()...)
	errors = append(errors, c.validateProgress()...)
	errors = append(errors, c.validateExecutor()...)
	errors = append(errors, c.validateMetrics()...)

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

// validateGraph validates the GraphConfig
func (c *Config) validateGraph() []ValidationError {
	var errors []ValidationError

	if c.Graph.MinConfidence <= 0 || c.Graph.MinConfidence > 1 {
		errors = append(errors, ValidationError{
			Field:   "graph.min_confidence",
			Value:   c.Graph.MinConfidence,
			Message: "must be greater than 0 and at most 1",
		})
	}

	for i, cue := range c.Graph.Cues {
		if strings.TrimSpace(cue.Name) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("graph.cues[%d].name", i),
				Value:   cue.Name,
				Message: "must not be empty",
			})
		}
	}
	if _, err := c.Graph.Matcher(); err != nil {
		errors = append(errors, ValidationError{
			Field:   "graph.cues",
			Value:   len(c.Graph.Cues),
			Message: err.Error(),
		})
	}

	return errors
}

// validateAnalysis validates the analysis tuning. Unset thresholds fall
// back to defaults and are accepted.
func (c *Config) validateAnalysis() []ValidationError {
	var errors []ValidationError
	t := c.Analysis

	if v := t.MinScore; v != nil && (*v < 0 || *v > 100) {
		errors = append(errors, ValidationError{
			Field:   "analysis.min_score",
			Value:   *v,
			Message: "must be between 0 and 100",
		})
	}
	if v := t.MinSpeedup; v != nil && *v != 0 && *v < 1 {
		errors = append(errors, ValidationError{
			Field:   "analysis.min_speedup",
			Value:   *v,
			Message: "must be 0 (disabled) or at least 1",
		})
	}
	if v := t.MinTasks; v != nil && *v < 0 {
		errors = append(errors, ValidationError{
			Field:   "analysis.min_tasks",
			Value:   *v,
			Message: "must be non-negative",
		})
	}
	if t.DurationCeiling != 0 && t.DurationCeiling <= t.DurationFloor {
		errors = append(errors, ValidationError{
			Field:   "analysis.duration_ceiling",
			Value:   t.DurationCeiling,
			Message: fmt.Sprintf("must be greater than analysis.duration_floor (%v)", t.DurationFloor),
		})
	}
	if t.LongDescription != 0 && t.LongDescription <= t.ShortDescription {
		errors = append(errors, ValidationError{
			Field:   "analysis.long_description",
			Value:   t.LongDescription,
			Message: fmt.Sprintf("must be greater than analysis.short_description (%v)", t.ShortDescription),
		})
	}
	if t.ManyLevels != 0 && t.ManyLevels <= t.FewLevels {
		errors = append(errors, ValidationError{
			Field:   "analysis.many_levels",
			Value:   t.ManyLevels,
			Message: fmt.Sprintf("must be greater than analysis.few_levels (%v)", t.FewLevels),
		})
	}
	if t.SkewRatio != 0 && t.SkewRatio < 1 {
		errors = append(errors, ValidationError{
			Field:   "analysis.skew_ratio",
			Value:   t.SkewRatio,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateBatch validates the BatchConfig
func (c *Config) validateBatch() []ValidationError {
	var errors []ValidationError

	if _, err := batch.ParseGoal(c.Batch.Goal); err != nil {
		errors = append(errors, ValidationError{
			Field:   "batch.goal",
			Value:   c.Batch.Goal,
			Message: fmt.Sprintf("must be one of: %s", joinGoals()),
		})
	}
	errors = append(errors, validateAgents("batch.max_agents", c.Batch.MaxAgents)...)

	return errors
}

func joinGoals() string {
	var names []string
	for _, g := range batch.Goals() {
		names = append(names, string(g))
	}
	return strings.Join(names, ", ")
}

func validateAgents(field string, n int) []ValidationError {
	if n < 1 {
		return []ValidationError{{Field: field, Value: n, Message: "must be at least 1"}}
	}
	if n > maxAgentsLimit {
		return []ValidationError{{Field: field, Value: n, Message: fmt.Sprintf("exceeds maximum of %d", maxAgentsLimit)}}
	}
	return nil
}

// validateCoordinator validates the CoordinatorConfig
func (c *Config) validateCoordinator() []ValidationError {
	var errors []ValidationError

	if !coordinator.Strategy(c.Coordinator.Strategy).IsValid() {
		errors = append(errors, ValidationError{
			Field:   "coordinator.strategy",
			Value:   c.Coordinator.Strategy,
			Message: "must be one of: conservative, aggressive",
		})
	}
	errors = append(errors, validateAgents("coordinator.max_agents", c.Coordinator.MaxAgents)...)

	if c.Coordinator.TaskTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "coordinator.task_timeout",
			Value:   c.Coordinator.TaskTimeout,
			Message: "must be non-negative",
		})
	}

	const maxRetriesLimit = 10
	if c.Coordinator.MaxRetries < 0 || c.Coordinator.MaxRetries > maxRetriesLimit {
		errors = append(errors, ValidationError{
			Field:   "coordinator.max_retries",
			Value:   c.Coordinator.MaxRetries,
			Message: fmt.Sprintf("must be between 0 and %d", maxRetriesLimit),
		})
	}

	return errors
}

// validateConflicts validates the ignore globs
func (c *Config) validateConflicts() []ValidationError {
	var errors []ValidationError

	for i, p := range c.Conflicts.IgnorePatterns {
		if _, err := conflict.New(conflict.Config{IgnorePatterns: []string{p}}); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("conflicts.ignore_patterns[%d]", i),
				Value:   p,
				Message: "is not a valid glob",
			})
		}
	}

	return errors
}

// validateProgress validates the ProgressConfig
func (c *Config) validateProgress() []ValidationError {
	var errors []ValidationError

	if _, err := progress.ParseStrategy(c.Progress.Strategy); err != nil {
		errors = append(errors, ValidationError{
			Field:   "progress.strategy",
			Value:   c.Progress.Strategy,
			Message: "must be one of: simple-average, weighted, critical-path",
		})
	}
	if c.Progress.MinutesPerPercent <= 0 {
		errors = append(errors, ValidationError{
			Field:   "progress.minutes_per_percent",
			Value:   c.Progress.MinutesPerPercent,
			Message: "must be positive",
		})
	}

	return errors
}

// validateExecutor validates the ExecutorConfig
func (c *Config) validateExecutor() []ValidationError {
	var errors []ValidationError
	e := c.Executor

	if !executor.Kind(e.Kind).IsValid() {
		errors = append(errors, ValidationError{
			Field:   "executor.kind",
			Value:   e.Kind,
			Message: "must be one of: simulate, nats",
		})
	}
	if e.NATSURL != "" && !strings.Contains(e.NATSURL, "://") {
		errors = append(errors, ValidationError{
			Field:   "executor.nats_url",
			Value:   e.NATSURL,
			Message: "must be a URL such as nats://127.0.0.1:4222",
		})
	}
	if e.RequestTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "executor.request_timeout",
			Value:   e.RequestTimeout,
			Message: "must be non-negative",
		})
	}
	if e.SuccessRate < 0 || e.SuccessRate > 1 {
		errors = append(errors, ValidationError{
			Field:   "executor.success_rate",
			Value:   e.SuccessRate,
			Message: "must be between 0 and 1",
		})
	}
	if e.TimeScale < 0 {
		errors = append(errors, ValidationError{
			Field:   "executor.time_scale",
			Value:   e.TimeScale,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	var errors []ValidationError

	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errors = append(errors, ValidationError{
				Field:   "metrics.addr",
				Value:   c.Metrics.Addr,
				Message: "must be host:port, e.g. :9090",
			})
		}
	}

	return errors
}
