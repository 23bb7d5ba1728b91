package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/fanout/internal/analysis"
	"github.com/Iron-Ham/fanout/internal/graph"
	"github.com/Iron-Ham/fanout/internal/textsim"
)

// Config represents the complete fanout configuration
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	Graph       GraphConfig       `mapstructure:"graph"`
	Analysis    analysis.Tuning   `mapstructure:"analysis"`
	Batch       BatchConfig       `mapstructure:"batch"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Conflicts   ConflictsConfig   `mapstructure:"conflicts"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	Executor    ExecutorConfig    `mapstructure:"executor"`
	History     HistoryConfig     `mapstructure:"history"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Enabled writes JSON logs to {dir}/fanout.log (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the log directory. Empty means DataDir().
	Dir string `mapstructure:"dir"`
}

// GraphConfig controls dependency graph construction
type GraphConfig struct {
	// DetectImplicit infers dependencies from task descriptions (default: true)
	DetectImplicit bool `mapstructure:"detect_implicit"`
	// MinConfidence is the lowest inferred confidence that becomes an edge (default: 0.6)
	MinConfidence float64 `mapstructure:"min_confidence"`
	// StopWords replace the built-in stop word list when non-empty
	StopWords []string `mapstructure:"stop_words"`
	// Cues replace the built-in dependency cues when non-empty. Each
	// pattern must contain the {kw} placeholder.
	Cues []textsim.Cue `mapstructure:"cues"`
}

// Matcher builds the text matcher described by the graph section.
func (g GraphConfig) Matcher() (*textsim.CueMatcher, error) {
	var stop, cues = g.StopWords, g.Cues
	if len(stop) == 0 {
		stop = nil
	}
	if len(cues) == 0 {
		cues = nil
	}
	return textsim.NewCueMatcher(stop, cues)
}

// BatchConfig controls batch optimization
type BatchConfig struct {
	// Goal is "minimize-time", "balance-load" or "minimize-conflicts" (default: "minimize-time")
	Goal string `mapstructure:"goal"`
	// MaxAgents caps tasks per batch (default: 4)
	MaxAgents int `mapstructure:"max_agents"`
}

// CoordinatorConfig controls batch execution
type CoordinatorConfig struct {
	// Strategy is "conservative" or "aggressive" (default: "conservative")
	Strategy string `mapstructure:"strategy"`
	// MaxAgents caps the agent pool per batch (default: 4)
	MaxAgents int `mapstructure:"max_agents"`
	// TaskTimeout bounds one task execution, 0 = no limit
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	// MaxRetries is the number of re-executions of a failed task (default: 0)
	MaxRetries int `mapstructure:"max_retries"`
}

// ConflictsConfig controls conflict detection
type ConflictsConfig struct {
	// IgnorePatterns are globs of resources excluded from file-level detection
	IgnorePatterns []string `mapstructure:"ignore_patterns"`
}

// ProgressConfig controls progress aggregation
type ProgressConfig struct {
	// Strategy is "simple-average", "weighted" or "critical-path" (default: "simple-average")
	Strategy string `mapstructure:"strategy"`
	// MinutesPerPercent estimates completion when no agent reports remaining time (default: 1)
	MinutesPerPercent float64 `mapstructure:"minutes_per_percent"`
}

// ExecutorConfig selects how tasks are executed by `fanout run`
type ExecutorConfig struct {
	// Kind is "simulate" or "nats" (default: "simulate")
	Kind string `mapstructure:"kind"`
	// NATSURL is the server for the nats executor. Empty starts an embedded
	// server with a local simulated worker.
	NATSURL string `mapstructure:"nats_url"`
	// RequestTimeout bounds one NATS task request, 0 = transport default
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// SuccessRate is the simulated probability of success (default: 1)
	SuccessRate float64 `mapstructure:"success_rate"`
	// TimeScale is the simulated wall-clock time per estimated minute (default: 10ms)
	TimeScale time.Duration `mapstructure:"time_scale"`
	// Seed makes simulated outcomes reproducible (default: 1)
	Seed uint64 `mapstructure:"seed"`
}

// HistoryConfig controls the run history database
type HistoryConfig struct {
	// Enabled records every `fanout run` (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Path is the SQLite file. Empty means {DataDir()}/history.db.
	Path string `mapstructure:"path"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// Addr serves /metrics while a command runs, e.g. ":9090". Empty disables it.
	Addr string `mapstructure:"addr"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Dir:     "",
		},
		Graph: GraphConfig{
			DetectImplicit: true,
			MinConfidence:  graph.DefaultMinConfidence,
			StopWords:      []string{},
			Cues:           []textsim.Cue{},
		},
		Analysis: analysis.DefaultTuning(),
		Batch: BatchConfig{
			Goal:      "minimize-time",
			MaxAgents: 4,
		},
		Coordinator: CoordinatorConfig{
			Strategy:    "conservative",
			MaxAgents:   4,
			TaskTimeout: 0,
			MaxRetries:  0,
		},
		Conflicts: ConflictsConfig{
			IgnorePatterns: []string{},
		},
		Progress: ProgressConfig{
			Strategy:          "simple-average",
			MinutesPerPercent: 1,
		},
		Executor: ExecutorConfig{
			Kind:           "simulate",
			NATSURL:        "",
			RequestTimeout: 0,
			SuccessRate:    1,
			TimeScale:      10 * time.Millisecond,
			Seed:           1,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "",
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Graph defaults
	viper.SetDefault("graph.detect_implicit", defaults.Graph.DetectImplicit)
	viper.SetDefault("graph.min_confidence", defaults.Graph.MinConfidence)
	viper.SetDefault("graph.stop_words", defaults.Graph.StopWords)
	viper.SetDefault("graph.cues", defaults.Graph.Cues)

	// Analysis defaults
	viper.SetDefault("analysis.min_score", *defaults.Analysis.MinScore)
	viper.SetDefault("analysis.min_speedup", *defaults.Analysis.MinSpeedup)
	viper.SetDefault("analysis.min_tasks", *defaults.Analysis.MinTasks)
	viper.SetDefault("analysis.shared_resource_keywords", defaults.Analysis.SharedResourceKeywords)
	viper.SetDefault("analysis.duration_floor", defaults.Analysis.DurationFloor)
	viper.SetDefault("analysis.duration_ceiling", defaults.Analysis.DurationCeiling)
	viper.SetDefault("analysis.short_description", defaults.Analysis.ShortDescription)
	viper.SetDefault("analysis.long_description", defaults.Analysis.LongDescription)
	viper.SetDefault("analysis.few_levels", defaults.Analysis.FewLevels)
	viper.SetDefault("analysis.many_levels", defaults.Analysis.ManyLevels)
	viper.SetDefault("analysis.large_batch", defaults.Analysis.LargeBatch)
	viper.SetDefault("analysis.skew_ratio", defaults.Analysis.SkewRatio)

	// Batch defaults
	viper.SetDefault("batch.goal", defaults.Batch.Goal)
	viper.SetDefault("batch.max_agents", defaults.Batch.MaxAgents)

	// Coordinator defaults
	viper.SetDefault("coordinator.strategy", defaults.Coordinator.Strategy)
	viper.SetDefault("coordinator.max_agents", defaults.Coordinator.MaxAgents)
	viper.SetDefault("coordinator.task_timeout", defaults.Coordinator.TaskTimeout)
	viper.SetDefault("coordinator.max_retries", defaults.Coordinator.MaxRetries)

	// Conflict defaults
	viper.SetDefault("conflicts.ignore_patterns", defaults.Conflicts.IgnorePatterns)

	// Progress defaults
	viper.SetDefault("progress.strategy", defaults.Progress.Strategy)
	viper.SetDefault("progress.minutes_per_percent", defaults.Progress.MinutesPerPercent)

	// Executor defaults
	viper.SetDefault("executor.kind", defaults.Executor.Kind)
	viper.SetDefault("executor.nats_url", defaults.Executor.NATSURL)
	viper.SetDefault("executor.request_timeout", defaults.Executor.RequestTimeout)
	viper.SetDefault("executor.success_rate", defaults.Executor.SuccessRate)
	viper.SetDefault("executor.time_scale", defaults.Executor.TimeScale)
	viper.SetDefault("executor.seed", defaults.Executor.Seed)

	// History defaults
	viper.SetDefault("history.enabled", defaults.History.Enabled)
	viper.SetDefault("history.path", defaults.History.Path)

	// Metrics defaults
	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fanout")
	}
	// Fall back to ~/.config/fanout
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fanout"
	}
	return filepath.Join(home, ".config", "fanout")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns the directory for logs and run history
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "fanout")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fanout"
	}
	return filepath.Join(home, ".local", "share", "fanout")
}

// ResolveLogDir returns the log directory, defaulting to DataDir().
func (c *LoggingConfig) ResolveLogDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return DataDir()
}

// ResolvePath returns the history database path, defaulting to
// {DataDir()}/history.db.
func (c *HistoryConfig) ResolvePath() string {
	if c.Path != "" {
		return c.Path
	}
	return filepath.Join(DataDir(), "history.db")
}
