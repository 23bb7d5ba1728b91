package coordinator

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/Iron-Ham/fanout/internal/progress"
	"github.com/Iron-Ham/fanout/internal/task"
)

// agent is a worker slot scoped to one batch of one run.
type agent struct {
	id      string
	queue   []task.Task
	load    float64
	status  progress.Status
	current string
	started time.Time
	done    int
	spent   float64
	failed  bool
}

func agentID(n int) string {
	return fmt.Sprintf("agent-%d", n)
}

// assign creates min(maxAgents, len(tasks)) agents and places tasks
// longest-first onto the least loaded one. Ties go to the lower index.
func assign(tasks []task.Task, maxAgents int) []*agent {
	n := min(maxAgents, len(tasks))
	agents := make([]*agent, n)
	for i := range agents {
		agents[i] = &agent{id: agentID(i + 1), status: progress.StatusIdle}
	}
	if n == 0 {
		return agents
	}

	sorted := slices.Clone(tasks)
	slices.SortStableFunc(sorted, func(a, b task.Task) int {
		return cmp.Compare(b.Duration(), a.Duration())
	})
	for _, t := range sorted {
		target := agents[0]
		for _, a := range agents[1:] {
			if a.load < target.load {
				target = a
			}
		}
		target.queue = append(target.queue, t)
		target.load += t.Duration()
	}
	return agents
}

// progress reports the agent as an AgentProgress. Completion is measured in
// estimated minutes so a long task weighs more than a short one.
func (a *agent) progress() progress.AgentProgress {
	p := progress.AgentProgress{
		AgentID:     a.id,
		CurrentTask: a.current,
		Status:      a.status,
	}
	if a.load > 0 {
		weight := a.load
		p.Weight = &weight
		p.PercentComplete = min(100, a.spent/a.load*100)
		remaining := max(0, a.load-a.spent)
		p.EstimatedMinutesRemaining = &remaining
	}
	if a.status == progress.StatusComplete || a.status == progress.StatusFailed {
		p.PercentComplete = 100
		zero := 0.0
		p.EstimatedMinutesRemaining = &zero
	}
	return p
}
