package analysis

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/task"
)

func tasksOf(descs ...string) []task.Task {
	out := make([]task.Task, len(descs))
	for i, d := range descs {
		out[i] = task.Task{ID: fmt.Sprintf("t%d", i+1), Description: d, EstimatedDuration: 30}
	}
	return out
}

func hasRisk(risks []Risk, sev Severity, substr string) bool {
	for _, r := range risks {
		if r.Severity == sev && strings.Contains(r.Description, substr) {
			return true
		}
	}
	return false
}

func TestAnalyze_EdgeCases(t *testing.T) {
	tests := []struct {
		name           string
		tasks          []task.Task
		wantConfidence float64
		wantCritical   bool
	}{
		{"no tasks", nil, 0, false},
		{"single task", tasksOf("Write docs"), 100, false},
		{"two node cycle", []task.Task{
			{ID: "1", Description: "Task 1", DependsOn: []string{"2"}},
			{ID: "2", Description: "Task 2", DependsOn: []string{"1"}},
		}, 100, true},
		{"self dependency", []task.Task{{ID: "1", Description: "Task 1", DependsOn: []string{"1"}}}, 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(Config{}).Analyze(Request{Tasks: tt.tasks})
			if err != nil {
				t.Fatalf("Analyze() error = %v", err)
			}
			if res.Parallelizable {
				t.Error("Parallelizable = true, want false")
			}
			if res.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %v, want %v", res.Confidence, tt.wantConfidence)
			}
			if got := hasRisk(res.Risks, SeverityCritical, "circular dependency"); got != tt.wantCritical {
				t.Errorf("critical circular risk = %v, want %v (risks %+v)", got, tt.wantCritical, res.Risks)
			}
			if tt.wantCritical && len(res.Batches) != 0 {
				t.Errorf("cyclic input produced batches: %v", res.Batches)
			}
		})
	}
}

func TestAnalyze_IndependentTasks(t *testing.T) {
	res, err := New(Config{}).Analyze(Request{
		Description: "docs sprint",
		Tasks:       tasksOf("Write docs", "Fix typos", "Add images", "Tag release"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Parallelizable {
		t.Fatalf("Parallelizable = false: %s", res.Reasoning)
	}
	f := res.Score.Factors
	if f.Independence != 100 || f.ConflictRisk != 100 || f.DependencyComplexity != 100 || f.ResourceContention != 100 {
		t.Errorf("unexpected factors %+v", f)
	}
	if math.Abs(f.DurationValue-(25.0/55.0*100)) > 1e-9 {
		t.Errorf("DurationValue = %v", f.DurationValue)
	}
	wantOverall := 30 + f.DurationValue*0.25 + 25 + 10 + 10
	if math.Abs(res.Score.Overall-wantOverall) > 1e-9 {
		t.Errorf("Overall = %v, want %v", res.Score.Overall, wantOverall)
	}
	if res.EstimatedSpeedup != 4 {
		t.Errorf("EstimatedSpeedup = %v, want 4", res.EstimatedSpeedup)
	}
	if len(res.Batches) != 1 || len(res.Batches[0].Tasks) != 4 {
		t.Errorf("Batches = %+v, want one batch of four", res.Batches)
	}
	if res.Confidence <= 0 || res.Confidence >= 100 {
		t.Errorf("Confidence = %v, want strictly between 0 and 100", res.Confidence)
	}
	if !strings.HasPrefix(res.Reasoning, "docs sprint: ") {
		t.Errorf("Reasoning = %q", res.Reasoning)
	}
}

func TestAnalyze_Refusals(t *testing.T) {
	chain := tasksOf("Write docs", "Fix typos", "Add images")
	chain[1].DependsOn = []string{"t1"}
	chain[2].DependsOn = []string{"t2"}

	tests := []struct {
		name   string
		tasks  []task.Task
		tuning Tuning
		want   string
	}{
		{"linear chain has no speedup", chain, Tuning{}, "speedup"},
		{"too few tasks", tasksOf("Write docs", "Fix typos"), Tuning{}, "fewer than 3"},
		{"score threshold", tasksOf("Write docs", "Fix typos", "Add images"), Tuning{MinScore: Ptr(99.0)}, "score"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(Config{Tuning: tt.tuning}).Analyze(Request{Tasks: tt.tasks})
			if err != nil {
				t.Fatal(err)
			}
			if res.Parallelizable {
				t.Fatal("Parallelizable = true, want false")
			}
			if !strings.Contains(res.Reasoning, tt.want) {
				t.Errorf("Reasoning %q should mention %q", res.Reasoning, tt.want)
			}
		})
	}
}

func TestTuning_ExplicitZeroIsKept(t *testing.T) {
	got := Tuning{MinScore: Ptr(0.0), MinSpeedup: Ptr(0.0), MinTasks: Ptr(0)}.withDefaults()
	if *got.MinScore != 0 || *got.MinSpeedup != 0 || *got.MinTasks != 0 {
		t.Errorf("withDefaults() = %v/%v/%v, want zeros kept", *got.MinScore, *got.MinSpeedup, *got.MinTasks)
	}

	unset := Tuning{}.withDefaults()
	if *unset.MinScore != 40 || *unset.MinSpeedup != 1.5 || *unset.MinTasks != 3 {
		t.Errorf("withDefaults() on unset = %v/%v/%v, want defaults", *unset.MinScore, *unset.MinSpeedup, *unset.MinTasks)
	}

	a := New(Config{Tuning: Tuning{MinTasks: Ptr(0)}})
	res, err := a.Analyze(Request{Tasks: tasksOf("Write docs", "Fix typos")})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(res.Reasoning, "fewer than") {
		t.Errorf("min_tasks 0 should not refuse two tasks: %q", res.Reasoning)
	}
}

func TestAnalyze_Risks(t *testing.T) {
	t.Run("duplicates", func(t *testing.T) {
		res, _ := New(Config{}).Analyze(Request{Tasks: tasksOf("Write docs", "write   DOCS!", "Fix typos")})
		if !hasRisk(res.Risks, SeverityMedium, "duplicate tasks: t1=t2") {
			t.Errorf("missing duplicate risk: %+v", res.Risks)
		}
	})

	t.Run("implicit dependencies", func(t *testing.T) {
		res, _ := New(Config{}).Analyze(Request{
			Tasks: []task.Task{
				{ID: "schema", Description: "Design the database schema"},
				{ID: "migrate", Description: "Write migration scripts after the schema is final"},
				{ID: "docs", Description: "Write the onboarding guide"},
			},
			DetectImplicit: true,
		})
		if !hasRisk(res.Risks, SeverityMedium, "implicit") {
			t.Errorf("missing implicit risk: %+v", res.Risks)
		}
	})

	t.Run("large batch", func(t *testing.T) {
		descs := make([]string, 11)
		for i := range descs {
			descs[i] = fmt.Sprintf("Unit %d", i)
		}
		res, _ := New(Config{}).Analyze(Request{Tasks: tasksOf(descs...)})
		if !hasRisk(res.Risks, SeverityLow, "contains 11 tasks") {
			t.Errorf("missing large batch risk: %+v", res.Risks)
		}
	})

	t.Run("duration skew", func(t *testing.T) {
		tasks := tasksOf("Write docs", "Fix typos", "Add images")
		tasks[0].EstimatedDuration = 40
		tasks[1].EstimatedDuration = 5
		res, _ := New(Config{}).Analyze(Request{Tasks: tasks})
		if !hasRisk(res.Risks, SeverityLow, "duration skew") {
			t.Errorf("missing skew risk: %+v", res.Risks)
		}
	})
}

func TestAnalyze_ResourceContention(t *testing.T) {
	res, err := New(Config{}).Analyze(Request{
		Tasks: tasksOf("Update the database", "Index databases", "Fix typos", "Add images"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Score.Factors.ResourceContention; got != 75 {
		t.Errorf("ResourceContention = %v, want 75", got)
	}
}

func TestAnalyze_InvalidInput(t *testing.T) {
	_, err := New(Config{}).Analyze(Request{Tasks: []task.Task{{ID: "a"}}})
	if !errors.IsValidation(err) {
		t.Errorf("Analyze() error = %v, want validation error", err)
	}
}

func TestAnalyze_CyclesNeverParallelizable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		k := rapid.IntRange(1, 6).Draw(t, "cycle_len")
		extra := rapid.IntRange(0, 6).Draw(t, "extra")
		var tasks []task.Task
		for i := range k {
			tasks = append(tasks, task.Task{
				ID:          fmt.Sprintf("c%d", i),
				Description: fmt.Sprintf("Cyclic %d", i),
				DependsOn:   []string{fmt.Sprintf("c%d", (i+1)%k)},
			})
		}
		for i := range extra {
			tasks = append(tasks, task.Task{ID: fmt.Sprintf("x%d", i), Description: fmt.Sprintf("Extra %d", i)})
		}

		res, err := New(Config{}).Analyze(Request{Tasks: tasks})
		if err != nil {
			t.Fatal(err)
		}
		if !res.Graph.HasCycles || res.Parallelizable || !hasRisk(res.Risks, SeverityCritical, "circular") {
			t.Fatalf("cyclic input accepted: %+v", res)
		}
	})
}
