package coordinator

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/fanout/internal/analysis"
	"github.com/Iron-Ham/fanout/internal/batch"
	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/graph"
)

// Plan is an ordered set of batches to execute. Graph is optional and only
// feeds the dependency pass of conflict detection.
type Plan struct {
	Batches []batch.Batch `json:"batches"`
	Graph   *graph.Graph  `json:"graph,omitempty"`
}

// PlanFromAnalysis builds a plan from the per-level batches of an analysis.
func PlanFromAnalysis(res *analysis.Result) Plan {
	p := Plan{Batches: res.Batches}
	if res.Graph != nil {
		p.Graph = res.Graph.Graph
	}
	return p
}

// PlanFromBatches builds a plan from an optimizer plan.
func PlanFromBatches(p *batch.Plan, g *graph.Graph) Plan {
	return Plan{Batches: p.Batches, Graph: g}
}

// TaskCount returns the number of tasks across all batches.
func (p Plan) TaskCount() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b.Tasks)
	}
	return n
}

// Validate rejects plans that cannot be executed: malformed tasks, task IDs
// repeated across batches, unknown or cyclic batch dependencies, and
// invalid options.
func Validate(p Plan, opts Options) error {
	if opts.MaxAgents < 1 {
		return errors.Invalidf("maxAgents", opts.MaxAgents, "must be at least 1")
	}
	if !opts.Strategy.IsValid() {
		return errors.Invalidf("strategy", string(opts.Strategy), "must be conservative or aggressive")
	}
	if opts.Constraints.TaskTimeout < 0 {
		return errors.Invalidf("constraints.taskTimeout", opts.Constraints.TaskTimeout, "must not be negative")
	}
	if opts.Constraints.MaxRetries < 0 {
		return errors.Invalidf("constraints.maxRetries", opts.Constraints.MaxRetries, "must not be negative")
	}

	batchIdx := make(map[string]int, len(p.Batches))
	taskAt := make(map[string]string)
	for i, b := range p.Batches {
		field := fmt.Sprintf("batches[%d]", i)
		if strings.TrimSpace(b.ID) == "" {
			return planInvalidf(field+".id", b.ID, "batch id is required")
		}
		if prev, dup := batchIdx[b.ID]; dup {
			return planInvalidf(field+".id", b.ID, "duplicate batch id (first defined at batches[%d])", prev)
		}
		batchIdx[b.ID] = i

		for j, t := range b.Tasks {
			tf := fmt.Sprintf("%s.tasks[%d]", field, j)
			if strings.TrimSpace(t.ID) == "" {
				return planInvalidf(tf+".id", t.ID, "task id is required")
			}
			if strings.TrimSpace(t.Description) == "" {
				return planInvalidf(tf+".description", t.Description, "task description is required")
			}
			if t.EstimatedDuration < 0 {
				return planInvalidf(tf+".estimatedDuration", t.EstimatedDuration, "duration must not be negative")
			}
			if prev, dup := taskAt[t.ID]; dup {
				return planInvalidf(tf+".id", t.ID, "task already scheduled in %s", prev)
			}
			taskAt[t.ID] = b.ID
		}
	}

	for i, b := range p.Batches {
		for j, dep := range b.DependsOn {
			if _, ok := batchIdx[dep]; !ok {
				return planInvalidf(fmt.Sprintf("batches[%d].dependsOn[%d]", i, j), dep, "unknown batch")
			}
		}
	}

	if _, err := order(p.Batches); err != nil {
		return err
	}
	return nil
}

// planInvalidf reports a structural defect of the plan itself.
func planInvalidf(field string, value any, format string, args ...any) error {
	return errors.Invalidf(field, value, format, args...).WithCause(errors.ErrPlanInvalid)
}

// order returns batch indices in dependency order, stable with respect to
// input order. Dependencies are assumed to reference known batches.
func order(batches []batch.Batch) ([]int, error) {
	idx := make(map[string]int, len(batches))
	for i, b := range batches {
		idx[b.ID] = i
	}
	inDegree := make([]int, len(batches))
	dependents := make([][]int, len(batches))
	for i, b := range batches {
		for _, dep := range b.DependsOn {
			inDegree[i]++
			dependents[idx[dep]] = append(dependents[idx[dep]], i)
		}
	}

	var out []int
	done := make([]bool, len(batches))
	for len(out) < len(batches) {
		next := -1
		for i := range batches {
			if !done[i] && inDegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i, b := range batches {
				if !done[i] {
					stuck = append(stuck, b.ID)
				}
			}
			return nil, errors.Invalidf("batches", strings.Join(stuck, ","), "batch dependencies form a cycle").
				WithCause(fmt.Errorf("%w: %w", errors.ErrPlanInvalid, errors.ErrDependencyCycle))
		}
		done[next] = true
		out = append(out, next)
		for _, d := range dependents[next] {
			inDegree[d]--
		}
	}
	return out, nil
}
