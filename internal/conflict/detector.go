package conflict

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/fanout/internal/graph"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/task"
)

// Config configures a Detector.
type Config struct {
	// IgnorePatterns are globs of resources excluded from file-level
	// detection, e.g. "**/*.lock". "**" crosses directory separators.
	IgnorePatterns []string

	Logger *logging.Logger
}

// Detector finds conflicts between task results. It holds no per-run state
// and is safe for concurrent use.
type Detector struct {
	ignore []glob.Glob
	logger *logging.Logger
}

// New creates a Detector, compiling the ignore patterns.
func New(cfg Config) (*Detector, error) {
	d := &Detector{logger: logging.OrNop(cfg.Logger)}
	for _, pattern := range cfg.IgnorePatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
		d.ignore = append(d.ignore, g)
	}
	return d, nil
}

func (d *Detector) ignored(resource string) bool {
	for _, g := range d.ignore {
		if g.Match(resource) {
			return true
		}
	}
	return false
}

// Detect runs every pass over results. The graph is optional and only used
// by the dependency pass. Zero or one result never conflicts.
func (d *Detector) Detect(results []task.Result, g *graph.Graph) *Report {
	report := &Report{Conflicts: []Conflict{}, Strategy: StrategyAuto}
	if len(results) <= 1 {
		return report
	}

	var conflicts []Conflict
	conflicts = append(conflicts, d.fileLevel(results)...)
	conflicts = append(conflicts, semantic(results)...)
	if g != nil {
		conflicts = append(conflicts, dependency(results, g)...)
	}
	conflicts = append(conflicts, resource(results)...)

	for i := range conflicts {
		conflicts[i].ID = fmt.Sprintf("conflict-%d", i+1)
	}
	if conflicts != nil {
		report.Conflicts = conflicts
	}
	report.HasConflicts = len(conflicts) > 0
	report.Strategy = selectStrategy(conflicts)

	if report.HasConflicts {
		d.logger.Info("conflicts detected",
			"count", len(conflicts),
			"strategy", string(report.Strategy),
		)
	}
	return report
}

type touch struct {
	agentID string
	taskID  string
	changes []task.Change
}

// owner identifies who touched a resource. Results without an agent fall
// back to their task so they still count as separate owners.
func owner(r task.Result) string {
	if r.AgentID != "" {
		return r.AgentID
	}
	return "task:" + r.TaskID
}

// agents counts the distinct owners among touches.
func agents(touches []touch) int {
	seen := make(map[string]bool, len(touches))
	for _, t := range touches {
		seen[t.agentID] = true
	}
	return len(seen)
}

// fileLevel flags every resource touched by more than one agent.
func (d *Detector) fileLevel(results []task.Result) []Conflict {
	var order []string
	touches := make(map[string][]touch)
	for _, r := range results {
		for _, res := range r.Touched() {
			if d.ignored(res) {
				d.logger.Debug("ignoring resource", "resource", res)
				continue
			}
			if _, ok := touches[res]; !ok {
				order = append(order, res)
			}
			touches[res] = append(touches[res], touch{agentID: owner(r), taskID: r.TaskID, changes: r.ChangesFor(res)})
		}
	}

	var out []Conflict
	for _, res := range order {
		ts := touches[res]
		if agents(ts) < 2 {
			continue
		}
		out = append(out, classifyFile(res, ts))
	}
	return out
}

func classifyFile(resource string, touches []touch) Conflict {
	c := Conflict{
		Type:            TypeFileLevel,
		Resources:       []string{resource},
		DetectionMethod: "shared-resource",
	}
	creators := make(map[string]bool)
	for _, t := range touches {
		c.TaskIDs = append(c.TaskIDs, t.taskID)
		for _, ch := range t.changes {
			switch ch.Kind {
			case task.ChangeDelete:
				c.InvolvesDeletion = true
			case task.ChangeCreate:
				creators[t.agentID] = true
			}
		}
	}
	c.CreationRace = len(creators) >= 2
	n := agents(touches)

	switch {
	case c.CreationRace:
		c.Severity = SeverityCritical
		c.DetectionMethod = "creation-race"
		c.Description = fmt.Sprintf("%d agents created %s", len(creators), resource)
		c.Resolutions = []Resolution{
			{Strategy: StrategyRollback, Description: "Discard all but one creation and re-run the others against it"},
			{Strategy: StrategyManual, Description: "Combine the created versions by hand"},
		}
	case c.InvolvesDeletion:
		c.Severity = SeverityHigh
		c.DetectionMethod = "delete-modify"
		c.Description = fmt.Sprintf("%s was deleted by one agent and changed by another", resource)
		c.Resolutions = []Resolution{
			{Strategy: StrategyRollback, Description: "Revert the deletion and re-apply the dependent changes"},
			{Strategy: StrategyManual, Description: "Decide whether the resource should survive"},
		}
	case disjointModifications(touches):
		c.Severity = SeverityLow
		c.Mergeable = true
		c.DetectionMethod = "line-range"
		c.Description = fmt.Sprintf("%s changed by %d agents in non-overlapping line ranges", resource, n)
		c.Resolutions = []Resolution{
			{Strategy: StrategyAuto, Description: "Apply both change sets; line ranges do not overlap", Automatic: true},
		}
	default:
		c.Severity = SeverityMedium
		c.Description = fmt.Sprintf("%s changed by %d agents", resource, n)
		c.Resolutions = []Resolution{
			{Strategy: StrategyManual, Description: "Merge the overlapping changes by hand"},
			{Strategy: StrategyRollback, Description: "Keep one agent's changes and re-run the others sequentially"},
		}
	}
	return c
}

// disjointModifications reports whether every change is a modify with a
// line range and no two agents' ranges overlap.
func disjointModifications(touches []touch) bool {
	for i, a := range touches {
		for _, ca := range a.changes {
			if ca.Kind != task.ChangeModify || ca.LineRange == nil {
				return false
			}
			for _, b := range touches[i+1:] {
				if b.agentID == a.agentID {
					continue
				}
				for _, cb := range b.changes {
					if cb.Kind != task.ChangeModify || cb.LineRange == nil {
						return false
					}
					if ca.LineRange.Overlaps(*cb.LineRange) {
						return false
					}
				}
			}
		}
	}
	return true
}

// semantic flags a task whose content still references the stem of a
// resource another task deleted.
func semantic(results []task.Result) []Conflict {
	var out []Conflict
	for _, deleter := range results {
		for _, ch := range deleter.Changes {
			if ch.Kind != task.ChangeDelete {
				continue
			}
			stem := resourceStem(ch.Resource)
			if len(stem) < 3 {
				continue
			}
			ref := regexp.MustCompile(`\b` + regexp.QuoteMeta(stem) + `\b`)
			for _, other := range results {
				if other.TaskID == deleter.TaskID || !referencesIn(other, ch.Resource, ref) {
					continue
				}
				out = append(out, Conflict{
					Type:             TypeSemantic,
					Severity:         SeverityHigh,
					Resources:        []string{ch.Resource},
					TaskIDs:          []string{deleter.TaskID, other.TaskID},
					DetectionMethod:  "reference-to-deleted-resource",
					Description:      fmt.Sprintf("task %s references %q which task %s deleted", other.TaskID, stem, deleter.TaskID),
					InvolvesDeletion: true,
					Resolutions: []Resolution{
						{Strategy: StrategyRollback, Description: "Restore the deleted resource"},
						{Strategy: StrategyManual, Description: "Update the referencing change to stop using it"},
					},
				})
			}
		}
	}
	return out
}

func referencesIn(r task.Result, deleted string, ref *regexp.Regexp) bool {
	for _, ch := range r.Changes {
		if ch.Resource == deleted || ch.Kind == task.ChangeDelete {
			continue
		}
		if ref.MatchString(ch.Content) {
			return true
		}
	}
	return false
}

func resourceStem(resource string) string {
	base := path.Base(strings.ReplaceAll(resource, `\`, "/"))
	if i := strings.Index(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}

// dependency flags a successful task downstream of a failed prerequisite.
func dependency(results []task.Result, g *graph.Graph) []Conflict {
	success := make(map[string]bool, len(results))
	for _, r := range results {
		success[r.TaskID] = r.Success
	}

	var out []Conflict
	for _, r := range results {
		if !r.Success {
			continue
		}
		for _, pred := range g.Predecessors(r.TaskID) {
			ok, reported := success[pred]
			if !reported || ok {
				continue
			}
			out = append(out, Conflict{
				Type:            TypeDependency,
				Severity:        SeverityHigh,
				Resources:       r.Touched(),
				TaskIDs:         []string{pred, r.TaskID},
				DetectionMethod: "failed-prerequisite",
				Description:     fmt.Sprintf("task %s succeeded although prerequisite %s failed", r.TaskID, pred),
				Resolutions: []Resolution{
					{Strategy: StrategyManual, Description: "Verify the result does not rely on the failed prerequisite"},
					{Strategy: StrategyRollback, Description: "Discard the result and re-run after the prerequisite succeeds"},
				},
			})
		}
	}
	return out
}

// resource flags named symbols shared across tasks: defined by two tasks,
// or defined by one and imported by another.
func resource(results []task.Result) []Conflict {
	var order []string
	definers := make(map[string][]string)
	importers := make(map[string][]string)
	for _, r := range results {
		defs, uses := symbolsOf(r)
		for _, s := range defs {
			if _, ok := definers[s]; !ok && len(importers[s]) == 0 {
				order = append(order, s)
			}
			definers[s] = append(definers[s], r.TaskID)
		}
		for _, s := range uses {
			if _, ok := importers[s]; !ok && len(definers[s]) == 0 {
				order = append(order, s)
			}
			importers[s] = append(importers[s], r.TaskID)
		}
	}

	var out []Conflict
	for _, sym := range order {
		defs := definers[sym]
		switch {
		case len(defs) >= 2:
			out = append(out, Conflict{
				Type:            TypeResource,
				Severity:        SeverityMedium,
				Resources:       []string{sym},
				TaskIDs:         defs,
				DetectionMethod: "duplicate-definition",
				Description:     fmt.Sprintf("%s is defined by %d tasks", sym, len(defs)),
				Resolutions: []Resolution{
					{Strategy: StrategyManual, Description: "Keep a single definition and rename the other"},
				},
			})
		case len(defs) == 1:
			var users []string
			for _, id := range importers[sym] {
				if id != defs[0] && !slices.Contains(users, id) {
					users = append(users, id)
				}
			}
			if len(users) == 0 {
				continue
			}
			out = append(out, Conflict{
				Type:            TypeResource,
				Severity:        SeverityMedium,
				Resources:       []string{sym},
				TaskIDs:         append([]string{defs[0]}, users...),
				DetectionMethod: "cross-task-reference",
				Description:     fmt.Sprintf("%s is defined by task %s and used by %s", sym, defs[0], strings.Join(users, ", ")),
				Resolutions: []Resolution{
					{Strategy: StrategyManual, Description: "Confirm the users match the final definition"},
				},
			})
		}
	}
	return out
}
