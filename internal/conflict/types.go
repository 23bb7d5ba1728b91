// Package conflict reconciles the results of concurrently executed tasks and
// reports where their changes collide.
//
// Detection runs four additive passes over the accumulated results:
// file-level (one resource touched by several tasks), semantic (a deleted
// resource still referenced by another task's content), dependency (a task
// that succeeded although a prerequisite failed) and resource (a named
// symbol defined by one task and used or redefined by another).
package conflict

// Type classifies a conflict by the pass that found it.
type Type string

const (
	TypeFileLevel  Type = "file-level"
	TypeSemantic   Type = "semantic"
	TypeDependency Type = "dependency"
	TypeResource   Type = "resource"
)

// Severity grades a conflict.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Strategy is the overall recommended resolution.
type Strategy string

const (
	StrategyAuto     Strategy = "auto"
	StrategyManual   Strategy = "manual"
	StrategyRollback Strategy = "rollback"
)

// Resolution is one way to resolve a conflict.
type Resolution struct {
	Strategy    Strategy `json:"strategy"`
	Description string   `json:"description"`
	Automatic   bool     `json:"automatic"`
}

// Conflict is one detected collision.
type Conflict struct {
	ID              string       `json:"id"`
	Type            Type         `json:"type"`
	Severity        Severity     `json:"severity"`
	Resources       []string     `json:"resources"`
	TaskIDs         []string     `json:"taskIds"`
	DetectionMethod string       `json:"detectionMethod"`
	Description     string       `json:"description"`
	Resolutions     []Resolution `json:"resolutionOptions"`

	// Mergeable is set when every change touches disjoint line ranges.
	Mergeable bool `json:"mergeable"`
	// InvolvesDeletion is set when a deleted resource is part of the conflict.
	InvolvesDeletion bool `json:"involvesDeletion"`
	// CreationRace is set when several tasks created the same resource.
	CreationRace bool `json:"creationRace"`
}

// Report is the output of Detect.
type Report struct {
	HasConflicts bool       `json:"hasConflicts"`
	Conflicts    []Conflict `json:"conflicts"`
	Strategy     Strategy   `json:"strategy"`
}

// CountByType tallies conflicts per type.
func (r *Report) CountByType() map[Type]int {
	counts := make(map[Type]int)
	for _, c := range r.Conflicts {
		counts[c.Type]++
	}
	return counts
}

// selectStrategy picks rollback for any deletion or creation race, auto
// when there is nothing to resolve or everything merges cleanly, and manual
// otherwise.
func selectStrategy(conflicts []Conflict) Strategy {
	allMergeable := true
	for _, c := range conflicts {
		if c.InvolvesDeletion || c.CreationRace {
			return StrategyRollback
		}
		if !c.Mergeable {
			allMergeable = false
		}
	}
	if allMergeable {
		return StrategyAuto
	}
	return StrategyManual
}
