package conflict

import (
	"slices"
	"testing"

	"github.com/Iron-Ham/fanout/internal/graph"
	"github.com/Iron-Ham/fanout/internal/task"
)

func newDetector(t *testing.T, ignore ...string) *Detector {
	t.Helper()
	d, err := New(Config{IgnorePatterns: ignore})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

func result(agent, taskID string, changes ...task.Change) task.Result {
	return task.Result{AgentID: agent, TaskID: taskID, Success: true, Changes: changes}
}

func change(resource string, kind task.ChangeKind) task.Change {
	return task.Change{Resource: resource, Kind: kind}
}

func ranged(resource string, start, end int) task.Change {
	return task.Change{Resource: resource, Kind: task.ChangeModify, LineRange: &task.LineRange{Start: start, End: end}}
}

func TestDetect_TrivialInputs(t *testing.T) {
	d := newDetector(t)
	for _, results := range [][]task.Result{nil, {result("a1", "t1", change("x.go", task.ChangeCreate))}} {
		report := d.Detect(results, nil)
		if report.HasConflicts || len(report.Conflicts) != 0 || report.Strategy != StrategyAuto {
			t.Errorf("Detect(%d results) = %+v, want empty auto report", len(results), report)
		}
	}
}

func TestDetect_CreationRace(t *testing.T) {
	report := newDetector(t).Detect([]task.Result{
		result("agent-1", "t1", change("new.ts", task.ChangeCreate)),
		result("agent-2", "t2", change("new.ts", task.ChangeCreate)),
	}, nil)

	if !report.HasConflicts {
		t.Fatal("HasConflicts = false, want true")
	}
	c := report.Conflicts[0]
	if c.Type != TypeFileLevel || !slices.Contains(c.Resources, "new.ts") {
		t.Errorf("conflict = %+v, want file-level on new.ts", c)
	}
	if c.Severity != SeverityCritical || !c.CreationRace {
		t.Errorf("severity = %s race = %v, want critical race", c.Severity, c.CreationRace)
	}
	if report.Strategy != StrategyRollback {
		t.Errorf("Strategy = %s, want rollback", report.Strategy)
	}
}

func TestDetect_FileLevelClassification(t *testing.T) {
	tests := []struct {
		name         string
		a, b         task.Result
		wantSeverity Severity
		wantStrategy Strategy
		wantMerge    bool
	}{
		{
			name:         "disjoint line ranges merge automatically",
			a:            result("a1", "t1", ranged("app.go", 1, 10)),
			b:            result("a2", "t2", ranged("app.go", 20, 30)),
			wantSeverity: SeverityLow,
			wantStrategy: StrategyAuto,
			wantMerge:    true,
		},
		{
			name:         "overlapping line ranges",
			a:            result("a1", "t1", ranged("app.go", 1, 10)),
			b:            result("a2", "t2", ranged("app.go", 5, 30)),
			wantSeverity: SeverityMedium,
			wantStrategy: StrategyManual,
		},
		{
			name:         "modify without ranges",
			a:            task.Result{AgentID: "a1", TaskID: "t1", Files: []string{"app.go"}},
			b:            task.Result{AgentID: "a2", TaskID: "t2", Files: []string{"app.go"}},
			wantSeverity: SeverityMedium,
			wantStrategy: StrategyManual,
		},
		{
			name:         "delete against modify",
			a:            result("a1", "t1", change("app.go", task.ChangeDelete)),
			b:            result("a2", "t2", ranged("app.go", 1, 2)),
			wantSeverity: SeverityHigh,
			wantStrategy: StrategyRollback,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := newDetector(t).Detect([]task.Result{tt.a, tt.b}, nil)
			if len(report.Conflicts) != 1 {
				t.Fatalf("got %d conflicts, want 1: %+v", len(report.Conflicts), report.Conflicts)
			}
			c := report.Conflicts[0]
			if c.Severity != tt.wantSeverity || c.Mergeable != tt.wantMerge {
				t.Errorf("severity = %s mergeable = %v, want %s %v", c.Severity, c.Mergeable, tt.wantSeverity, tt.wantMerge)
			}
			if report.Strategy != tt.wantStrategy {
				t.Errorf("Strategy = %s, want %s", report.Strategy, tt.wantStrategy)
			}
			if !slices.Equal(c.TaskIDs, []string{"t1", "t2"}) {
				t.Errorf("TaskIDs = %v", c.TaskIDs)
			}
			if len(c.Resolutions) == 0 {
				t.Error("conflict should offer resolutions")
			}
		})
	}
}

func TestDetect_SameAgentIsNotAConflict(t *testing.T) {
	d := newDetector(t)
	report := d.Detect([]task.Result{
		result("agent-1", "t1", change("x.ts", task.ChangeCreate)),
		result("agent-1", "t2", change("x.ts", task.ChangeModify)),
	}, nil)
	if report.HasConflicts || report.Strategy != StrategyAuto {
		t.Fatalf("one agent touching its own file = %+v, want no conflicts", report)
	}

	report = d.Detect([]task.Result{
		result("agent-1", "t1", ranged("app.go", 1, 10)),
		result("agent-1", "t2", ranged("app.go", 5, 12)),
		result("agent-2", "t3", ranged("app.go", 40, 50)),
	}, nil)
	if len(report.Conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1: %+v", len(report.Conflicts), report.Conflicts)
	}
	c := report.Conflicts[0]
	if !slices.Equal(c.TaskIDs, []string{"t1", "t2", "t3"}) {
		t.Errorf("TaskIDs = %v, want every touching task", c.TaskIDs)
	}
	if !c.Mergeable || c.Severity != SeverityLow {
		t.Errorf("overlap within one agent should stay mergeable, got %+v", c)
	}
}

func TestDetect_IgnorePatterns(t *testing.T) {
	d := newDetector(t, "**/*.lock", "go.sum")
	report := d.Detect([]task.Result{
		result("a1", "t1", change("deps/yarn.lock", task.ChangeModify), change("go.sum", task.ChangeModify)),
		result("a2", "t2", change("deps/yarn.lock", task.ChangeModify), change("go.sum", task.ChangeModify)),
	}, nil)
	if report.HasConflicts {
		t.Errorf("ignored resources produced conflicts: %+v", report.Conflicts)
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	if _, err := New(Config{IgnorePatterns: []string{"["}}); err == nil {
		t.Error("expected error for malformed glob")
	}
}

func TestDetect_Semantic(t *testing.T) {
	report := newDetector(t).Detect([]task.Result{
		result("a1", "t1", change("src/utils.ts", task.ChangeDelete)),
		result("a2", "t2", task.Change{
			Resource: "src/app.ts",
			Kind:     task.ChangeCreate,
			Content:  "import { format } from './utils'\nformat(x)\n",
		}),
	}, nil)

	var found *Conflict
	for i := range report.Conflicts {
		if report.Conflicts[i].Type == TypeSemantic {
			found = &report.Conflicts[i]
		}
	}
	if found == nil {
		t.Fatalf("no semantic conflict in %+v", report.Conflicts)
	}
	if !slices.Equal(found.TaskIDs, []string{"t1", "t2"}) || found.Resources[0] != "src/utils.ts" {
		t.Errorf("semantic conflict = %+v", found)
	}
	if report.Strategy != StrategyRollback {
		t.Errorf("Strategy = %s, want rollback", report.Strategy)
	}
}

func TestDetect_Dependency(t *testing.T) {
	g := graph.Build([]task.Task{
		{ID: "schema", Description: "Schema"},
		{ID: "api", Description: "API", DependsOn: []string{"schema"}},
	}, graph.Options{}).Graph

	failed := task.Result{AgentID: "a1", TaskID: "schema", Success: false, Error: "boom"}
	ok := task.Result{AgentID: "a2", TaskID: "api", Success: true, Files: []string{"api.go"}}

	report := newDetector(t).Detect([]task.Result{failed, ok}, g)
	if len(report.Conflicts) != 1 || report.Conflicts[0].Type != TypeDependency {
		t.Fatalf("conflicts = %+v, want one dependency conflict", report.Conflicts)
	}
	if report.Conflicts[0].Severity != SeverityHigh {
		t.Errorf("Severity = %s", report.Conflicts[0].Severity)
	}
	if report.Strategy != StrategyManual {
		t.Errorf("Strategy = %s, want manual", report.Strategy)
	}

	if got := newDetector(t).Detect([]task.Result{failed, ok}, nil); got.HasConflicts {
		t.Error("dependency pass must not run without a graph")
	}
}

func TestDetect_Resource(t *testing.T) {
	report := newDetector(t).Detect([]task.Result{
		result("a1", "t1", task.Change{Resource: "config.ts", Kind: task.ChangeCreate, Content: "export const API_URL = 'https://x'"}),
		result("a2", "t2", task.Change{Resource: "client.ts", Kind: task.ChangeCreate, Content: "import { API_URL, other as o } from './config'"}),
		result("a3", "t3", task.Change{Resource: "a.py", Kind: task.ChangeCreate, Content: "def helper():\n    pass\n"}),
		result("a4", "t4", task.Change{Resource: "b.py", Kind: task.ChangeCreate, Content: "def helper():\n    return 1\n"}),
	}, nil)

	methods := map[string]Conflict{}
	for _, c := range report.Conflicts {
		if c.Type == TypeResource {
			methods[c.DetectionMethod] = c
		}
	}
	ref, ok := methods["cross-task-reference"]
	if !ok || ref.Resources[0] != "API_URL" || !slices.Equal(ref.TaskIDs, []string{"t1", "t2"}) {
		t.Errorf("cross-task reference = %+v", ref)
	}
	dup, ok := methods["duplicate-definition"]
	if !ok || dup.Resources[0] != "helper" || !slices.Equal(dup.TaskIDs, []string{"t3", "t4"}) {
		t.Errorf("duplicate definition = %+v", dup)
	}
	if report.Strategy != StrategyManual {
		t.Errorf("Strategy = %s, want manual", report.Strategy)
	}
	if counts := report.CountByType(); counts[TypeResource] != 2 {
		t.Errorf("CountByType() = %v", counts)
	}
}

func TestSplitImportList(t *testing.T) {
	got := splitImportList(" a, b as c , type D,")
	if !slices.Equal(got, []string{"a", "b", "D"}) {
		t.Errorf("splitImportList() = %v", got)
	}
}
