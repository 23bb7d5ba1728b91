package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/task"
	"github.com/Iron-Ham/fanout/internal/textsim"
)

// DefaultMinConfidence is the lowest cue confidence that becomes an edge.
const DefaultMinConfidence = 0.6

// ImplicitDependency is an inferred ordering constraint.
type ImplicitDependency struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Options controls Build.
type Options struct {
	DetectImplicit bool

	// Matcher infers implicit dependencies. Nil uses textsim.DefaultMatcher.
	Matcher textsim.Matcher

	// MinConfidence discards weaker implicit dependencies. Zero uses
	// DefaultMinConfidence.
	MinConfidence float64

	Logger *logging.Logger
}

// Result is the output of Build.
type Result struct {
	Graph                *Graph               `json:"graph"`
	ImplicitDependencies []ImplicitDependency `json:"implicitDependencies"`
	HasCycles            bool                 `json:"hasCycles"`
	Cycles               [][]string           `json:"cycles"`
}

// Build constructs the dependency graph for tasks. Cycles are reported in the
// result, never returned as an error. Input is expected to have passed
// task.ValidateTasks; a repeated ID keeps its first occurrence.
func Build(tasks []task.Task, opts Options) *Result {
	log := logging.OrNop(opts.Logger)
	g := &Graph{Nodes: make(map[string]*Node, len(tasks))}

	for _, t := range tasks {
		if _, dup := g.Nodes[t.ID]; dup {
			log.Warn("ignoring duplicate task", "task_id", t.ID)
			continue
		}
		g.Nodes[t.ID] = &Node{Task: t}
		g.Order = append(g.Order, t.ID)
	}

	related := make(map[[2]string]bool)
	for _, id := range g.Order {
		t := g.Nodes[id].Task
		for _, dep := range t.DependsOn {
			if !g.Has(dep) {
				log.Warn("dropping dependency on unknown task", "task_id", id, "depends_on", dep)
				continue
			}
			key := [2]string{dep, id}
			if related[key] {
				continue
			}
			related[key] = true
			g.Edges = append(g.Edges, Edge{From: dep, To: id, Kind: EdgeExplicit, Confidence: 1})
		}
	}

	res := &Result{Graph: g}
	if opts.DetectImplicit {
		res.ImplicitDependencies = inferImplicit(g, related, opts)
		for _, dep := range res.ImplicitDependencies {
			g.Edges = append(g.Edges, Edge{From: dep.From, To: dep.To, Kind: EdgeImplicit, Confidence: dep.Confidence})
		}
		if n := len(res.ImplicitDependencies); n > 0 {
			log.Debug("inferred implicit dependencies", "count", n)
		}
	}

	res.Cycles = findCycles(g)
	res.HasCycles = len(res.Cycles) > 0
	assignLevels(g)

	if res.HasCycles {
		log.Info("dependency graph has cycles", "cycles", len(res.Cycles))
	}
	return res
}

// inferImplicit flags B -> A when A's description shares a keyword with B
// that no other task mentions and A phrases it with a dependency cue.
func inferImplicit(g *Graph, explicit map[[2]string]bool, opts Options) []ImplicitDependency {
	m := opts.Matcher
	if m == nil {
		m = textsim.DefaultMatcher()
	}
	minConf := opts.MinConfidence
	if minConf <= 0 {
		minConf = DefaultMinConfidence
	}

	keywords := make(map[string][]string, len(g.Order))
	sets := make(map[string]map[string]bool, len(g.Order))
	docFreq := make(map[string]int)
	for _, id := range g.Order {
		kws := m.Keywords(g.Nodes[id].Task.Description)
		keywords[id] = kws
		set := make(map[string]bool, len(kws))
		for _, k := range kws {
			set[k] = true
			docFreq[k]++
		}
		sets[id] = set
	}

	var deps []ImplicitDependency
	for _, a := range g.Order {
		for _, b := range g.Order {
			if a == b || explicit[[2]string{b, a}] || explicit[[2]string{a, b}] {
				continue
			}
			var best textsim.Match
			found := false
			for _, kw := range keywords[b] {
				if !sets[a][kw] || docFreq[kw] != 2 {
					continue
				}
				match, ok := m.MatchCue(g.Nodes[a].Task.Description, kw)
				if ok && (!found || match.Confidence > best.Confidence) {
					best, found = match, true
				}
			}
			if !found || best.Confidence < minConf {
				continue
			}
			deps = append(deps, ImplicitDependency{
				From:       b,
				To:         a,
				Confidence: best.Confidence,
				Reason:     fmt.Sprintf("%q cue refers to %q from task %s", best.Cue, best.Keyword, b),
			})
		}
	}
	return deps
}

// findCycles runs a depth-first search with a recursion stack. Every back
// edge yields the stack slice from its target around to itself.
func findCycles(g *Graph) [][]string {
	succ := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		succ[e.From] = append(succ[e.From], e.To)
	}

	visited := make(map[string]bool, len(g.Nodes))
	onStack := make(map[string]int, len(g.Nodes))
	var stack []string
	var cycles [][]string
	seen := make(map[string]bool)

	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		onStack[id] = len(stack)
		stack = append(stack, id)

		for _, next := range succ[id] {
			if pos, ok := onStack[next]; ok {
				cycle := append(slices.Clone(stack[pos:]), next)
				if key := rotationKey(cycle); !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
				continue
			}
			if !visited[next] {
				visit(next)
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, id)
	}

	for _, id := range g.Order {
		if !visited[id] {
			visit(id)
		}
	}
	return cycles
}

// rotationKey canonicalizes a closed cycle path so rotations compare equal.
func rotationKey(cycle []string) string {
	ring := cycle[:len(cycle)-1]
	start := 0
	for i, id := range ring {
		if id < ring[start] {
			start = i
		}
	}
	rotated := append(slices.Clone(ring[start:]), ring[:start]...)
	return strings.Join(rotated, "\x00")
}

// assignLevels applies Kahn's algorithm. Each node's level is one more than
// the highest level among its predecessors. Nodes never released carry
// UnreachableLevel.
func assignLevels(g *Graph) {
	inDegree := make(map[string]int, len(g.Nodes))
	succ := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		inDegree[e.To]++
		succ[e.From] = append(succ[e.From], e.To)
	}

	level := make(map[string]int, len(g.Nodes))
	var queue []string
	for _, id := range g.Order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	released := make(map[string]bool, len(g.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		released[id] = true
		for _, next := range succ[id] {
			level[next] = max(level[next], level[id]+1)
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	for _, id := range g.Order {
		if released[id] {
			g.Nodes[id].Level = level[id]
		} else {
			g.Nodes[id].Level = UnreachableLevel
		}
	}
}
