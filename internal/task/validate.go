package task

import (
	"fmt"
	"math"
	"strings"

	"github.com/Iron-Ham/fanout/internal/errors"
)

// ValidateTasks checks a task list before any planning work is done.
// It rejects missing IDs or descriptions, negative or non-finite durations,
// blank dependency references and duplicate IDs. Unknown dependency IDs are
// not an error here; the graph builder drops them with a warning.
func ValidateTasks(tasks []Task) error {
	seen := make(map[string]int, len(tasks))
	for i, t := range tasks {
		field := fmt.Sprintf("tasks[%d]", i)

		if strings.TrimSpace(t.ID) == "" {
			return errors.Invalidf(field+".id", t.ID, "task id is required")
		}
		if prev, dup := seen[t.ID]; dup {
			return errors.Invalidf(field+".id", t.ID, "duplicate task id (first defined at tasks[%d])", prev)
		}
		seen[t.ID] = i

		if strings.TrimSpace(t.Description) == "" {
			return errors.Invalidf(field+".description", t.Description, "task description is required")
		}
		if t.EstimatedDuration < 0 || math.IsNaN(t.EstimatedDuration) || math.IsInf(t.EstimatedDuration, 0) {
			return errors.Invalidf(field+".estimatedDuration", t.EstimatedDuration, "duration must be a non-negative number of minutes")
		}
		for j, dep := range t.DependsOn {
			if strings.TrimSpace(dep) == "" {
				return errors.Invalidf(fmt.Sprintf("%s.dependsOn[%d]", field, j), dep, "dependency id must not be blank")
			}
		}
	}
	return nil
}

// ValidateResults checks agent results before conflict detection.
func ValidateResults(results []Result) error {
	seen := make(map[string]int, len(results))
	for i, r := range results {
		field := fmt.Sprintf("results[%d]", i)

		if strings.TrimSpace(r.AgentID) == "" {
			return errors.Invalidf(field+".agentId", r.AgentID, "agent id is required")
		}
		if strings.TrimSpace(r.TaskID) == "" {
			return errors.Invalidf(field+".taskId", r.TaskID, "task id is required")
		}
		if prev, dup := seen[r.TaskID]; dup {
			return errors.Invalidf(field+".taskId", r.TaskID, "duplicate result for task (first reported at results[%d])", prev)
		}
		seen[r.TaskID] = i

		if r.Duration < 0 {
			return errors.Invalidf(field+".duration", r.Duration, "duration must not be negative")
		}
		for j, c := range r.Changes {
			cf := fmt.Sprintf("%s.changes[%d]", field, j)
			if strings.TrimSpace(c.Resource) == "" {
				return errors.Invalidf(cf+".resource", c.Resource, "change resource is required")
			}
			if !c.Kind.IsValid() {
				return errors.Invalidf(cf+".kind", c.Kind, "must be one of create, modify, delete")
			}
			if lr := c.LineRange; lr != nil && (lr.Start < 1 || lr.End < lr.Start) {
				return errors.Invalidf(cf+".lineRange", fmt.Sprintf("%d-%d", lr.Start, lr.End), "line range must be 1-based with start <= end")
			}
		}
	}
	return nil
}
