// Package analysis decides whether a set of tasks is worth splitting across
// concurrent workers. It scores the task set on five heuristic factors,
// estimates the achievable speedup from the topological levels, enumerates
// risks, and applies a fixed decision rule.
//
// A refusal is a result, not an error: Analyze only returns an error for
// malformed input.
package analysis

import (
	"fmt"
	"math"
	"strings"

	"github.com/Iron-Ham/fanout/internal/batch"
	"github.com/Iron-Ham/fanout/internal/graph"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/task"
	"github.com/Iron-Ham/fanout/internal/textsim"
)

// Severity grades a risk.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Risk is one identified hazard of parallelizing the task set.
type Risk struct {
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Mitigation  string   `json:"mitigation"`
}

// Factors are the five scoring inputs, each 0-100.
type Factors struct {
	Independence         float64 `json:"independence"`
	DurationValue        float64 `json:"durationValue"`
	ConflictRisk         float64 `json:"conflictRisk"`
	DependencyComplexity float64 `json:"dependencyComplexity"`
	ResourceContention   float64 `json:"resourceContention"`
}

func (f Factors) values() []float64 {
	return []float64{f.Independence, f.DurationValue, f.ConflictRisk, f.DependencyComplexity, f.ResourceContention}
}

// Score is the weighted parallelization score.
type Score struct {
	Overall        float64 `json:"overall"`
	Confidence     float64 `json:"confidence"`
	Factors        Factors `json:"factors"`
	Recommendation string  `json:"recommendation"`
}

// Request is the input to Analyze.
type Request struct {
	Description    string
	Tasks          []task.Task
	Context        map[string]string
	DetectImplicit bool
}

// Result is the analysis verdict.
type Result struct {
	Parallelizable   bool              `json:"parallelizable"`
	Confidence       float64           `json:"confidence"`
	Reasoning        string            `json:"reasoning"`
	Score            *Score            `json:"score,omitempty"`
	Graph            *graph.Result     `json:"graph"`
	Batches          []batch.Batch     `json:"batches"`
	EstimatedSpeedup float64           `json:"estimatedSpeedup"`
	Risks            []Risk            `json:"risks"`
	CriticalPath     []string          `json:"criticalPath,omitempty"`
	Context          map[string]string `json:"context,omitempty"`
}

// Config configures an Analyzer.
type Config struct {
	Tuning        Tuning
	Matcher       textsim.Matcher
	MinConfidence float64
	Logger        *logging.Logger
}

// Analyzer scores task sets. It is stateless and safe for concurrent use.
type Analyzer struct {
	tuning        Tuning
	matcher       textsim.Matcher
	minConfidence float64
	logger        *logging.Logger
}

// New creates an Analyzer. Unset tuning fields take their defaults.
func New(cfg Config) *Analyzer {
	m := cfg.Matcher
	if m == nil {
		m = textsim.DefaultMatcher()
	}
	return &Analyzer{
		tuning:        cfg.Tuning.withDefaults(),
		matcher:       m,
		minConfidence: cfg.MinConfidence,
		logger:        logging.OrNop(cfg.Logger),
	}
}

// Tuning returns the effective thresholds.
func (a *Analyzer) Tuning() Tuning {
	return a.tuning
}

// Analyze scores req.Tasks and decides whether to parallelize them.
func (a *Analyzer) Analyze(req Request) (*Result, error) {
	if err := task.ValidateTasks(req.Tasks); err != nil {
		return nil, err
	}

	gr := graph.Build(req.Tasks, graph.Options{
		DetectImplicit: req.DetectImplicit,
		Matcher:        a.matcher,
		MinConfidence:  a.minConfidence,
		Logger:         a.logger,
	})
	res := &Result{Graph: gr, Context: req.Context, Risks: []Risk{}}

	switch n := len(req.Tasks); {
	case n == 0:
		res.Reasoning = "No subtasks were supplied, so there is nothing to parallelize."
		return res, nil
	case gr.HasCycles:
		res.Confidence = 100
		res.Risks = []Risk{{
			Description: fmt.Sprintf("circular dependency: %s", formatCycles(gr.Cycles)),
			Severity:    SeverityCritical,
			Mitigation:  "Break the cycle by removing or reversing one of the dependencies.",
		}}
		res.Reasoning = fmt.Sprintf("The dependency graph contains %d cycle(s); tasks on a cycle can never start.", len(gr.Cycles))
		return res, nil
	case n == 1:
		res.Confidence = 100
		res.EstimatedSpeedup = 1
		res.Reasoning = "A single task cannot be split across workers."
		return res, nil
	}

	g := gr.Graph
	res.Score = a.score(req.Tasks, g)
	res.Confidence = res.Score.Confidence
	res.Batches = batch.FromLevels(g)
	res.EstimatedSpeedup = speedup(req.Tasks, res.Batches)
	res.Risks = a.risks(req.Tasks, gr, res.Batches)
	res.CriticalPath, _ = g.CriticalPath()

	refusals := a.refusals(len(req.Tasks), res)
	res.Parallelizable = len(refusals) == 0
	res.Reasoning = a.reasoning(req, res, refusals)

	a.logger.Debug("analyzed task set",
		"tasks", len(req.Tasks),
		"score", res.Score.Overall,
		"speedup", res.EstimatedSpeedup,
		"parallelizable", res.Parallelizable,
	)
	return res, nil
}

func (a *Analyzer) score(tasks []task.Task, g *graph.Graph) *Score {
	t := a.tuning
	n := float64(len(tasks))

	var f Factors
	maxEdges := n * (n - 1) / 2
	f.Independence = 100 * (1 - math.Min(1, float64(len(g.Edges))/maxEdges))

	avgDuration := task.TotalDuration(tasks) / n
	f.DurationValue = ramp(avgDuration, t.DurationFloor, t.DurationCeiling)

	var descLen float64
	for _, tk := range tasks {
		descLen += float64(len([]rune(tk.Description)))
	}
	f.ConflictRisk = 100 - ramp(descLen/n, t.ShortDescription, t.LongDescription)

	f.DependencyComplexity = 100 - ramp(float64(g.Depth()), t.FewLevels, t.ManyLevels)

	shared := 0
	for _, tk := range tasks {
		if a.touchesSharedResource(tk.Description) {
			shared++
		}
	}
	f.ResourceContention = 100 * (1 - float64(shared)/n)

	overall := f.Independence*WeightIndependence +
		f.DurationValue*WeightDurationValue +
		f.ConflictRisk*WeightConflictRisk +
		f.DependencyComplexity*WeightDependencyComplexity +
		f.ResourceContention*WeightResourceContention

	return &Score{
		Overall:        overall,
		Confidence:     math.Max(0, 100-2*stdDev(f.values())),
		Factors:        f,
		Recommendation: recommendation(overall, *t.MinScore),
	}
}

func (a *Analyzer) touchesSharedResource(desc string) bool {
	for _, kw := range a.tuning.SharedResourceKeywords {
		if textsim.ContainsWord(desc, kw) {
			return true
		}
	}
	return false
}

func recommendation(score, minScore float64) string {
	switch {
	case score >= 70:
		return "Highly parallelizable: run independent levels concurrently."
	case score >= minScore:
		return "Moderately parallelizable: parallelize with conflict monitoring."
	default:
		return "Poor candidate: run sequentially."
	}
}

// speedup is total work over the critical-path time of the level batches.
func speedup(tasks []task.Task, batches []batch.Batch) float64 {
	cp := batch.CriticalPathTime(batches)
	if cp <= 0 {
		return 1
	}
	return task.TotalDuration(tasks) / cp
}

func (a *Analyzer) risks(tasks []task.Task, gr *graph.Result, batches []batch.Batch) []Risk {
	risks := []Risk{}

	firstByText := make(map[string]string)
	var dups []string
	for _, tk := range tasks {
		key := textsim.Normalize(tk.Description)
		if first, ok := firstByText[key]; ok {
			dups = append(dups, fmt.Sprintf("%s=%s", first, tk.ID))
			continue
		}
		firstByText[key] = tk.ID
	}
	if len(dups) > 0 {
		risks = append(risks, Risk{
			Description: fmt.Sprintf("duplicate tasks: %s", strings.Join(dups, ", ")),
			Severity:    SeverityMedium,
			Mitigation:  "Merge or remove duplicated tasks before dispatch.",
		})
	}

	if n := len(gr.ImplicitDependencies); n > 0 {
		risks = append(risks, Risk{
			Description: fmt.Sprintf("%d implicit dependencies inferred from task descriptions", n),
			Severity:    SeverityMedium,
			Mitigation:  "Confirm the inferred ordering and declare it explicitly with dependsOn.",
		})
	}

	for _, b := range batches {
		if len(b.Tasks) > a.tuning.LargeBatch {
			risks = append(risks, Risk{
				Description: fmt.Sprintf("%s contains %d tasks", b.ID, len(b.Tasks)),
				Severity:    SeverityLow,
				Mitigation:  "Cap concurrency or split the batch to limit coordination overhead.",
			})
		}
	}

	for _, b := range batches {
		if len(b.Tasks) < 2 {
			continue
		}
		shortest := b.Tasks[0].Duration()
		for _, tk := range b.Tasks[1:] {
			shortest = min(shortest, tk.Duration())
		}
		if b.EstimatedDuration > a.tuning.SkewRatio*shortest {
			risks = append(risks, Risk{
				Description: fmt.Sprintf("%s duration skew: %.0f vs %.0f minutes", b.ID, b.EstimatedDuration, shortest),
				Severity:    SeverityLow,
				Mitigation:  "Workers finishing short tasks will idle; consider balance-load optimization.",
			})
		}
	}
	return risks
}

func (a *Analyzer) refusals(n int, res *Result) []string {
	t := a.tuning
	var out []string
	if res.Score.Overall < *t.MinScore {
		out = append(out, fmt.Sprintf("score %.1f is below %.0f", res.Score.Overall, *t.MinScore))
	}
	if res.EstimatedSpeedup < *t.MinSpeedup {
		out = append(out, fmt.Sprintf("estimated speedup %.2fx is below %.2fx", res.EstimatedSpeedup, *t.MinSpeedup))
	}
	if n < *t.MinTasks {
		out = append(out, fmt.Sprintf("%d tasks is fewer than %d", n, *t.MinTasks))
	}
	for _, r := range res.Risks {
		if r.Severity == SeverityCritical {
			out = append(out, "critical risk: "+r.Description)
		}
	}
	return out
}

func (a *Analyzer) reasoning(req Request, res *Result, refusals []string) string {
	var b strings.Builder
	if req.Description != "" {
		fmt.Fprintf(&b, "%s: ", req.Description)
	}
	fmt.Fprintf(&b, "%d tasks in %d levels, score %.1f (confidence %.0f), estimated speedup %.2fx.",
		len(req.Tasks), len(res.Batches), res.Score.Overall, res.Confidence, res.EstimatedSpeedup)
	if len(res.CriticalPath) > 0 {
		fmt.Fprintf(&b, " Critical path: %s.", strings.Join(res.CriticalPath, " -> "))
	}
	if len(refusals) > 0 {
		fmt.Fprintf(&b, " Not parallelizing: %s.", strings.Join(refusals, "; "))
	} else {
		fmt.Fprintf(&b, " %s", res.Score.Recommendation)
	}
	return b.String()
}

// ramp maps v linearly from [lo, hi] onto [0, 100], clamped.
func ramp(v, lo, hi float64) float64 {
	return math.Max(0, math.Min(100, (v-lo)/(hi-lo)*100))
}

func stdDev(values []float64) float64 {
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}

func formatCycles(cycles [][]string) string {
	parts := make([]string, len(cycles))
	for i, c := range cycles {
		parts[i] = strings.Join(c, " -> ")
	}
	return strings.Join(parts, "; ")
}
