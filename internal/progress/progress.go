// Package progress aggregates per-agent progress reports into an overall
// completion figure, flags bottlenecks and estimates completion time.
//
// The engine never polls. Callers obtain snapshots from a [Source] (a
// running coordinator, a watched file, a NATS subscription) and call
// [Aggregate] as often as they like.
package progress

import (
	"fmt"
	"math"
	"strings"

	"github.com/Iron-Ham/fanout/internal/errors"
)

// Status is an agent's lifecycle state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusWorking  Status = "working"
	StatusBlocked  Status = "blocked"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusWorking, StatusBlocked, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// AgentProgress is one agent's self-reported progress.
type AgentProgress struct {
	AgentID         string  `json:"agentId" yaml:"agentId"`
	CurrentTask     string  `json:"currentTask,omitempty" yaml:"currentTask,omitempty"`
	PercentComplete float64 `json:"percentComplete" yaml:"percentComplete"`
	Status          Status  `json:"status" yaml:"status"`

	// Weight is required, and must be positive, for weighted aggregation.
	Weight *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`

	EstimatedMinutesRemaining *float64 `json:"estimatedMinutesRemaining,omitempty" yaml:"estimatedMinutesRemaining,omitempty"`
}

// Strategy selects how per-agent progress is combined.
type Strategy string

const (
	StrategySimpleAverage Strategy = "simple-average"
	StrategyWeighted      Strategy = "weighted"
	StrategyCriticalPath  Strategy = "critical-path"
)

// Strategies lists every supported strategy.
func Strategies() []Strategy {
	return []Strategy{StrategySimpleAverage, StrategyWeighted, StrategyCriticalPath}
}

// IsValid reports whether s is a supported strategy.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategySimpleAverage, StrategyWeighted, StrategyCriticalPath:
		return true
	}
	return false
}

// ParseStrategy converts a string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", errors.Invalidf("strategy", s, "unknown aggregation strategy (valid: %s, %s, %s)",
			StrategySimpleAverage, StrategyWeighted, StrategyCriticalPath)
	}
	return st, nil
}

// Validate rejects malformed reports before any aggregation.
func Validate(reports []AgentProgress, strategy Strategy) error {
	if !strategy.IsValid() {
		return errors.Invalidf("strategy", string(strategy), "unknown aggregation strategy")
	}
	seen := make(map[string]int, len(reports))
	for i, r := range reports {
		field := fmt.Sprintf("reports[%d]", i)
		if strings.TrimSpace(r.AgentID) == "" {
			return errors.Invalidf(field+".agentId", r.AgentID, "agent id is required")
		}
		if prev, dup := seen[r.AgentID]; dup {
			return errors.Invalidf(field+".agentId", r.AgentID, "duplicate agent (first reported at reports[%d])", prev)
		}
		seen[r.AgentID] = i
		if math.IsNaN(r.PercentComplete) || r.PercentComplete < 0 || r.PercentComplete > 100 {
			return errors.Invalidf(field+".percentComplete", r.PercentComplete, "must be between 0 and 100")
		}
		if !r.Status.IsValid() {
			return errors.Invalidf(field+".status", string(r.Status), "must be one of idle, working, blocked, complete, failed")
		}
		if r.Weight != nil && (math.IsNaN(*r.Weight) || math.IsInf(*r.Weight, 0) || *r.Weight <= 0) {
			return errors.Invalidf(field+".weight", *r.Weight, "weight must be a positive number")
		}
		if strategy == StrategyWeighted && r.Weight == nil {
			return errors.Invalidf(field+".weight", nil, "weighted aggregation requires a weight for every agent")
		}
		if e := r.EstimatedMinutesRemaining; e != nil && (math.IsNaN(*e) || math.IsInf(*e, 0) || *e < 0) {
			return errors.Invalidf(field+".estimatedMinutesRemaining", *e, "must be a non-negative number of minutes")
		}
	}
	return nil
}
