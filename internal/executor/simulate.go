// Package executor provides task executors that run without external
// agents. The simulator is deterministic for a given seed, which makes it
// useful for demos, dry runs and tests of the coordination layer.
package executor

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/task"
)

// Kind names an executor implementation selectable from configuration.
type Kind string

const (
	KindSimulate Kind = "simulate"
	KindNATS     Kind = "nats"
)

// Kinds lists every executor kind.
func Kinds() []Kind {
	return []Kind{KindSimulate, KindNATS}
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k == KindSimulate || k == KindNATS
}

// SimulatorConfig configures a Simulator.
type SimulatorConfig struct {
	// SuccessRate is the probability in [0,1] that a task succeeds.
	SuccessRate float64

	// TimeScale is the wall-clock time spent per estimated minute. Zero
	// completes tasks immediately.
	TimeScale time.Duration

	Seed   uint64
	Logger *logging.Logger
}

// Simulator pretends to run tasks. An outcome depends only on the seed,
// the task ID and how many times this simulator has run that task, so
// results do not change with scheduling order while a retry draws anew.
type Simulator struct {
	cfg    SimulatorConfig
	logger *logging.Logger

	mu       sync.Mutex
	attempts map[string]uint64
}

// NewSimulator validates cfg and returns a Simulator.
func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.SuccessRate < 0 || cfg.SuccessRate > 1 {
		return nil, errors.Invalidf("successRate", cfg.SuccessRate, "must be between 0 and 1")
	}
	if cfg.TimeScale < 0 {
		return nil, errors.Invalidf("timeScale", cfg.TimeScale, "must not be negative")
	}
	return &Simulator{
		cfg:      cfg,
		logger:   logging.OrNop(cfg.Logger),
		attempts: make(map[string]uint64),
	}, nil
}

// rng returns the generator for the next attempt of taskID.
func (s *Simulator) rng(taskID string) *rand.Rand {
	s.mu.Lock()
	attempt := s.attempts[taskID]
	s.attempts[taskID]++
	s.mu.Unlock()

	h := fnv.New64a()
	_, _ = h.Write([]byte(taskID))
	return rand.New(rand.NewPCG(s.cfg.Seed+attempt, h.Sum64()))
}

// Execute waits the scaled estimate, then reports success or failure. On
// success every file the task declares is reported as modified.
func (s *Simulator) Execute(ctx context.Context, agentID string, t task.Task) (task.Result, error) {
	rng := s.rng(t.ID)
	ok := rng.Float64() < s.cfg.SuccessRate

	if wait := time.Duration(t.Duration() * float64(s.cfg.TimeScale)); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return task.Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	res := task.Result{AgentID: agentID, TaskID: t.ID, Success: ok}
	if !ok {
		res.Error = "simulated failure"
		s.logger.Debug("simulated failure", "agent_id", agentID, "task_id", t.ID)
		return res, nil
	}
	res.Files = append(res.Files, t.Files...)
	for _, f := range t.Files {
		res.Changes = append(res.Changes, task.Change{Resource: f, Kind: task.ChangeModify})
	}
	return res, nil
}
