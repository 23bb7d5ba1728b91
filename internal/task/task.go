// Package task defines the records that flow through the planning pipeline:
// the unit of work ([Task]) and what an agent reports after running one
// ([Result] with its [Change] records).
package task

import (
	"time"
)

// DefaultDurationMinutes is used when a task carries no estimate.
const DefaultDurationMinutes = 10.0

// Task is a unit of work. The description is the only semantic signal the
// planner has for implicit dependency inference and risk heuristics.
// Tasks are treated as immutable once submitted.
type Task struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`

	// EstimatedDuration is in minutes. Zero means "not provided".
	EstimatedDuration float64 `json:"estimatedDuration,omitempty" yaml:"estimatedDuration,omitempty"`

	// DependsOn lists prerequisite task IDs.
	DependsOn []string `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`

	// Files optionally lists resources the task expects to touch.
	Files []string `json:"files,omitempty" yaml:"files,omitempty"`
}

// Duration returns the estimated duration in minutes, applying the default
// when no estimate was supplied.
func (t Task) Duration() float64 {
	if t.EstimatedDuration <= 0 {
		return DefaultDurationMinutes
	}
	return t.EstimatedDuration
}

// TotalDuration sums the effective durations of tasks.
func TotalDuration(tasks []Task) float64 {
	var sum float64
	for _, t := range tasks {
		sum += t.Duration()
	}
	return sum
}

// MaxDuration returns the longest effective duration among tasks, or 0.
func MaxDuration(tasks []Task) float64 {
	var longest float64
	for _, t := range tasks {
		if d := t.Duration(); d > longest {
			longest = d
		}
	}
	return longest
}

// IDs returns the task IDs in order.
func IDs(tasks []Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

// ChangeKind is the kind of modification an agent made to a resource.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeModify ChangeKind = "modify"
	ChangeDelete ChangeKind = "delete"
)

// IsValid reports whether k is a known change kind.
func (k ChangeKind) IsValid() bool {
	switch k {
	case ChangeCreate, ChangeModify, ChangeDelete:
		return true
	}
	return false
}

// LineRange is an inclusive, 1-based range of lines touched by a change.
type LineRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Overlaps reports whether two ranges share at least one line.
func (r LineRange) Overlaps(other LineRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// Change describes one resource modification reported by an agent.
type Change struct {
	Resource  string     `json:"resource" yaml:"resource"`
	Kind      ChangeKind `json:"kind" yaml:"kind"`
	Content   string     `json:"content,omitempty" yaml:"content,omitempty"`
	LineRange *LineRange `json:"lineRange,omitempty" yaml:"lineRange,omitempty"`
}

// Result is what an agent reports after running one task. It is the
// coordinator's unit of output and the conflict detector's unit of input.
type Result struct {
	AgentID string   `json:"agentId" yaml:"agentId"`
	TaskID  string   `json:"taskId" yaml:"taskId"`
	Success bool     `json:"success" yaml:"success"`
	Files   []string `json:"files,omitempty" yaml:"files,omitempty"`
	Changes []Change `json:"changes,omitempty" yaml:"changes,omitempty"`

	// Duration is the measured execution time (nanoseconds when serialized).
	Duration time.Duration `json:"duration" yaml:"duration"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`

	// Attempts counts executions including retries; 0 means not dispatched.
	Attempts int `json:"attempts,omitempty" yaml:"attempts,omitempty"`
}

// Touched returns every resource the result names, from both Files and
// Changes, deduplicated in first-seen order.
func (r Result) Touched() []string {
	seen := make(map[string]bool, len(r.Files)+len(r.Changes))
	var out []string
	add := func(res string) {
		if res == "" || seen[res] {
			return
		}
		seen[res] = true
		out = append(out, res)
	}
	for _, f := range r.Files {
		add(f)
	}
	for _, c := range r.Changes {
		add(c.Resource)
	}
	return out
}

// ChangesFor returns the changes made to a resource. A resource listed only
// in Files yields a single synthetic modify change without a line range.
func (r Result) ChangesFor(resource string) []Change {
	var out []Change
	for _, c := range r.Changes {
		if c.Resource == resource {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		for _, f := range r.Files {
			if f == resource {
				return []Change{{Resource: resource, Kind: ChangeModify}}
			}
		}
	}
	return out
}
