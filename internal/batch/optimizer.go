package batch

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/graph"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/task"
	"github.com/Iron-Ham/fanout/internal/textsim"
)

// Plan is the output of Optimize.
type Plan struct {
	Goal      Goal    `json:"goal"`
	MaxAgents int     `json:"maxAgents"`
	Batches   []Batch `json:"batches"`

	// EstimatedTotalTime is the sum of batch durations in minutes.
	EstimatedTotalTime float64 `json:"estimatedTotalTime"`

	// LoadBalance is 0-100, higher is more even.
	LoadBalance float64 `json:"loadBalance"`
	Reasoning   string  `json:"reasoning"`
}

// Optimizer subdivides topological levels into batches.
type Optimizer struct {
	matcher textsim.Matcher
	logger  *logging.Logger
}

// NewOptimizer creates an Optimizer. A nil matcher uses
// textsim.DefaultMatcher and is only consulted for minimize-conflicts.
func NewOptimizer(matcher textsim.Matcher, logger *logging.Logger) *Optimizer {
	if matcher == nil {
		matcher = textsim.DefaultMatcher()
	}
	return &Optimizer{matcher: matcher, logger: logging.OrNop(logger)}
}

// Optimize partitions tasks into batches of at most maxAgents tasks. A nil
// graph is built from tasks without implicit inference. A cyclic graph is
// rejected.
func (o *Optimizer) Optimize(tasks []task.Task, g *graph.Graph, maxAgents int, goal Goal) (*Plan, error) {
	if err := task.ValidateTasks(tasks); err != nil {
		return nil, err
	}
	if maxAgents < 1 {
		return nil, errors.Invalidf("maxAgents", maxAgents, "must be at least 1")
	}
	if !goal.IsValid() {
		return nil, errors.Invalidf("goal", string(goal), "unknown optimization goal")
	}
	if g == nil {
		g = graph.Build(tasks, graph.Options{Logger: o.logger}).Graph
	}
	if err := checkGraph(tasks, g); err != nil {
		return nil, err
	}

	plan := &Plan{Goal: goal, MaxAgents: maxAgents, LoadBalance: 100}
	if len(tasks) == 0 {
		plan.Reasoning = "No tasks to schedule."
		return plan, nil
	}

	var prev []string
	subdivided := 0
	levels := levelsOf(tasks, g)
	for lvl, members := range levels {
		var bins [][]task.Task
		switch goal {
		case GoalBalanceLoad:
			bins = o.balanceLoad(members, maxAgents)
		case GoalMinimizeConflicts:
			bins = o.minimizeConflicts(members, maxAgents)
		default:
			bins = minimizeTime(members, maxAgents)
		}
		if len(bins) > 1 {
			subdivided++
		}

		var current []string
		for _, bin := range bins {
			if len(bin) == 0 {
				continue
			}
			b := New(ID(len(plan.Batches)+1), lvl, bin, slices.Clone(prev))
			plan.Batches = append(plan.Batches, b)
			current = append(current, b.ID)
		}
		prev = current
	}

	plan.EstimatedTotalTime = CriticalPathTime(plan.Batches)
	plan.LoadBalance = LoadBalance(plan.Batches)
	plan.Reasoning = fmt.Sprintf(
		"%d tasks in %d dependency levels split into %d batches of at most %d tasks using %s; %d level(s) subdivided. Estimated total time %.1f minutes, load balance %.0f/100.",
		len(tasks), len(levels), len(plan.Batches), maxAgents, goal, subdivided, plan.EstimatedTotalTime, plan.LoadBalance)

	o.logger.Debug("optimized batch distribution",
		"goal", string(goal),
		"batches", len(plan.Batches),
		"estimated_total_time", plan.EstimatedTotalTime,
		"load_balance", plan.LoadBalance,
	)
	return plan, nil
}

func checkGraph(tasks []task.Task, g *graph.Graph) error {
	for i, t := range tasks {
		node, ok := g.Nodes[t.ID]
		if !ok {
			return errors.Invalidf(fmt.Sprintf("tasks[%d].id", i), t.ID, "task is not a node of the dependency graph")
		}
		if node.Level < 0 {
			return errors.Invalidf("graph", t.ID, "dependency graph contains a cycle").WithCause(errors.ErrDependencyCycle)
		}
	}
	if g.Len() != len(tasks) {
		return errors.Invalidf("graph", g.Len(), "graph has %d nodes but %d tasks were supplied", g.Len(), len(tasks))
	}
	return nil
}

// levelsOf groups tasks by graph level, preserving task input order.
func levelsOf(tasks []task.Task, g *graph.Graph) [][]task.Task {
	var levels [][]task.Task
	for _, t := range tasks {
		lvl := g.Nodes[t.ID].Level
		for len(levels) <= lvl {
			levels = append(levels, nil)
		}
		levels[lvl] = append(levels[lvl], t)
	}
	return levels
}

func binCount(n, maxAgents int) int {
	return int(math.Ceil(float64(n) / float64(maxAgents)))
}

func byDurationDesc(tasks []task.Task) []task.Task {
	sorted := slices.Clone(tasks)
	slices.SortStableFunc(sorted, func(a, b task.Task) int {
		return cmp.Compare(b.Duration(), a.Duration())
	})
	return sorted
}

// minimizeTime chunks the level longest-first, so the long tasks share a
// batch and the sum of batch maxima stays small.
func minimizeTime(tasks []task.Task, maxAgents int) [][]task.Task {
	if len(tasks) <= maxAgents {
		return [][]task.Task{tasks}
	}
	return slices.Collect(slices.Chunk(byDurationDesc(tasks), maxAgents))
}

// balanceLoad is longest-processing-time-first greedy bin packing into the
// least-loaded bin that still has room.
func (o *Optimizer) balanceLoad(tasks []task.Task, maxAgents int) [][]task.Task {
	if len(tasks) <= maxAgents {
		return [][]task.Task{tasks}
	}
	bins := make([][]task.Task, binCount(len(tasks), maxAgents))
	loads := make([]float64, len(bins))
	for _, t := range byDurationDesc(tasks) {
		best := -1
		for i := range bins {
			if len(bins[i]) >= maxAgents {
				continue
			}
			if best < 0 || loads[i] < loads[best] {
				best = i
			}
		}
		bins[best] = append(bins[best], t)
		loads[best] += t.Duration()
	}
	return bins
}

// minimizeConflicts spreads similar tasks across bins: each task goes to the
// bin with room whose most similar member is least similar to it.
func (o *Optimizer) minimizeConflicts(tasks []task.Task, maxAgents int) [][]task.Task {
	if len(tasks) <= maxAgents {
		return [][]task.Task{tasks}
	}
	bins := make([][]task.Task, binCount(len(tasks), maxAgents))
	for _, t := range tasks {
		best, bestSim := -1, 0.0
		for i, bin := range bins {
			if len(bin) >= maxAgents {
				continue
			}
			sim := 0.0
			for _, member := range bin {
				sim = max(sim, o.matcher.Similarity(t.Description, member.Description))
			}
			if best < 0 || sim < bestSim || (sim == bestSim && len(bin) < len(bins[best])) {
				best, bestSim = i, sim
			}
		}
		bins[best] = append(bins[best], t)
	}
	return bins
}
