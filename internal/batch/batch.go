// Package batch partitions a dependency graph into ordered batches of tasks
// that can run concurrently, under one of three optimization goals.
package batch

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/graph"
	"github.com/Iron-Ham/fanout/internal/task"
)

// Goal selects how oversized levels are subdivided.
type Goal string

const (
	GoalMinimizeTime      Goal = "minimize-time"
	GoalBalanceLoad       Goal = "balance-load"
	GoalMinimizeConflicts Goal = "minimize-conflicts"
)

// Goals lists every supported goal.
func Goals() []Goal {
	return []Goal{GoalMinimizeTime, GoalBalanceLoad, GoalMinimizeConflicts}
}

// IsValid reports whether g is a supported goal.
func (g Goal) IsValid() bool {
	switch g {
	case GoalMinimizeTime, GoalBalanceLoad, GoalMinimizeConflicts:
		return true
	}
	return false
}

// ParseGoal converts a string to a Goal.
func ParseGoal(s string) (Goal, error) {
	g := Goal(strings.ToLower(strings.TrimSpace(s)))
	if !g.IsValid() {
		return "", errors.Invalidf("goal", s, "unknown optimization goal (valid: %s, %s, %s)",
			GoalMinimizeTime, GoalBalanceLoad, GoalMinimizeConflicts)
	}
	return g, nil
}

// Batch is a set of tasks intended to run concurrently. It may start only
// after every batch in DependsOn has finished.
type Batch struct {
	ID    string      `json:"id"`
	Tasks []task.Task `json:"tasks"`

	// EstimatedDuration is the longest member duration in minutes.
	EstimatedDuration float64  `json:"estimatedDuration"`
	DependsOn         []string `json:"dependsOn"`

	// Level is the topological level the batch was derived from.
	Level int `json:"level"`
}

// New creates a batch, computing its estimated duration.
func New(id string, level int, tasks []task.Task, dependsOn []string) Batch {
	return Batch{
		ID:                id,
		Tasks:             tasks,
		EstimatedDuration: task.MaxDuration(tasks),
		DependsOn:         dependsOn,
		Level:             level,
	}
}

// Load is the sum of member durations in minutes.
func (b Batch) Load() float64 {
	return task.TotalDuration(b.Tasks)
}

// TaskIDs returns the IDs of the batch's tasks.
func (b Batch) TaskIDs() []string {
	return task.IDs(b.Tasks)
}

// ID returns the conventional identifier of the n-th batch (1-based).
func ID(n int) string {
	return fmt.Sprintf("batch-%d", n)
}

// FromLevels returns one batch per topological level of g, each depending
// on the previous one. Nodes on a cycle are not included.
func FromLevels(g *graph.Graph) []Batch {
	var batches []Batch
	for lvl, ids := range g.Levels() {
		tasks := make([]task.Task, len(ids))
		for i, id := range ids {
			tasks[i] = g.Nodes[id].Task
		}
		var deps []string
		if lvl > 0 {
			deps = []string{ID(lvl)}
		}
		batches = append(batches, New(ID(lvl+1), lvl, tasks, deps))
	}
	return batches
}

// CriticalPathTime is the sum of batch durations.
func CriticalPathTime(batches []Batch) float64 {
	var sum float64
	for _, b := range batches {
		sum += b.EstimatedDuration
	}
	return sum
}

// LoadBalance returns 100 minus the spread between the heaviest and lightest
// batch load as a percentage of the heaviest. An empty or all-zero plan is
// perfectly balanced.
func LoadBalance(batches []Batch) float64 {
	if len(batches) == 0 {
		return 100
	}
	maxLoad, minLoad := batches[0].Load(), batches[0].Load()
	for _, b := range batches[1:] {
		l := b.Load()
		maxLoad = max(maxLoad, l)
		minLoad = min(minLoad, l)
	}
	if maxLoad <= 0 {
		return 100
	}
	return 100 - (maxLoad-minLoad)/maxLoad*100
}
