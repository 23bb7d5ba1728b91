// Package graph builds the task dependency graph: explicit edges from
// declared prerequisites, optional implicit edges inferred from task
// descriptions, cycle detection and topological leveling.
//
// Edges point from the prerequisite to the dependent task. A node's level is
// the length of its longest dependency chain, so every node of one level is
// independent of every other node of that level.
package graph

import (
	"slices"

	"github.com/Iron-Ham/fanout/internal/task"
)

// EdgeKind distinguishes declared dependencies from inferred ones.
type EdgeKind string

const (
	EdgeExplicit EdgeKind = "explicit"
	EdgeImplicit EdgeKind = "implicit"
)

// UnreachableLevel marks a node that sits on or behind a cycle.
const UnreachableLevel = -1

// Node is one task in the graph.
type Node struct {
	Task  task.Task `json:"task"`
	Level int       `json:"level"`
}

// Edge is a directed dependency: To cannot start before From finishes.
type Edge struct {
	From       string   `json:"from"`
	To         string   `json:"to"`
	Kind       EdgeKind `json:"kind"`
	Confidence float64  `json:"confidence"`
}

// Graph is an immutable dependency graph. It is rebuilt for every call and
// never mutated after Build returns.
type Graph struct {
	Nodes map[string]*Node `json:"nodes"`
	Edges []Edge           `json:"edges"`

	// Order lists node IDs in task input order.
	Order []string `json:"order"`
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Nodes)
}

// Has reports whether id is a node.
func (g *Graph) Has(id string) bool {
	if g == nil {
		return false
	}
	_, ok := g.Nodes[id]
	return ok
}

// HasEdge reports whether an edge from -> to exists.
func (g *Graph) HasEdge(from, to string) bool {
	return slices.ContainsFunc(g.Edges, func(e Edge) bool {
		return e.From == from && e.To == to
	})
}

// Predecessors returns the direct prerequisites of id in edge order.
func (g *Graph) Predecessors(id string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.To == id {
			out = append(out, e.From)
		}
	}
	return out
}

// Successors returns the tasks that directly depend on id in edge order.
func (g *Graph) Successors(id string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e.To)
		}
	}
	return out
}

// Tasks returns the node tasks in input order.
func (g *Graph) Tasks() []task.Task {
	out := make([]task.Task, 0, len(g.Order))
	for _, id := range g.Order {
		out = append(out, g.Nodes[id].Task)
	}
	return out
}

// Levels groups node IDs by topological level, each level in input order.
// Nodes with UnreachableLevel are omitted.
func (g *Graph) Levels() [][]string {
	if g == nil {
		return nil
	}
	var levels [][]string
	for _, id := range g.Order {
		lvl := g.Nodes[id].Level
		if lvl < 0 {
			continue
		}
		for len(levels) <= lvl {
			levels = append(levels, nil)
		}
		levels[lvl] = append(levels[lvl], id)
	}
	return levels
}

// Depth returns the number of topological levels.
func (g *Graph) Depth() int {
	return len(g.Levels())
}

// CriticalPath returns the longest dependency chain by estimated duration
// and its total in minutes. It returns nil for an empty or cyclic graph.
func (g *Graph) CriticalPath() ([]string, float64) {
	if g.Len() == 0 {
		return nil, 0
	}
	for _, n := range g.Nodes {
		if n.Level < 0 {
			return nil, 0
		}
	}

	dist := make(map[string]float64, len(g.Nodes))
	prev := make(map[string]string, len(g.Nodes))
	var end string
	for _, level := range g.Levels() {
		for _, id := range level {
			best, from := 0.0, ""
			for _, p := range g.Predecessors(id) {
				if dist[p] > best {
					best, from = dist[p], p
				}
			}
			dist[id] = best + g.Nodes[id].Task.Duration()
			if from != "" {
				prev[id] = from
			}
			if end == "" || dist[id] > dist[end] {
				end = id
			}
		}
	}

	var path []string
	for id := end; id != ""; id = prev[id] {
		path = append(path, id)
	}
	slices.Reverse(path)
	return path, dist[end]
}
