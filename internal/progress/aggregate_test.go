package progress

import (
	"math"
	"slices"
	"testing"
	"time"

	"github.com/Iron-Ham/fanout/internal/errors"
)

func f(v float64) *float64 { return &v }

var fixedNow = time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

func opts() Options {
	return Options{Now: func() time.Time { return fixedNow }}
}

func agent(id string, pct float64, status Status) AgentProgress {
	return AgentProgress{AgentID: id, CurrentTask: "task-" + id, PercentComplete: pct, Status: status}
}

func findBottleneck(bs []Bottleneck, agentID string, kind BottleneckKind) *Bottleneck {
	for i := range bs {
		if bs[i].AgentID == agentID && bs[i].Kind == kind {
			return &bs[i]
		}
	}
	return nil
}

func TestAggregate_Empty(t *testing.T) {
	rep, err := Aggregate(nil, StrategySimpleAverage, opts())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Overall != 0 || len(rep.Bottlenecks) != 0 {
		t.Errorf("Aggregate(nil) = %+v", rep)
	}
	if want := fixedNow.Add(100 * time.Minute); !rep.EstimatedCompletion.Equal(want) {
		t.Errorf("EstimatedCompletion = %v, want %v", rep.EstimatedCompletion, want)
	}
}

func TestAggregate_Weighted(t *testing.T) {
	a := agent("a", 20, StatusWorking)
	a.Weight = f(1)
	b := agent("b", 80, StatusWorking)
	b.Weight = f(3)

	rep, err := Aggregate([]AgentProgress{a, b}, StrategyWeighted, opts())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Overall != 65 {
		t.Errorf("Overall = %v, want 65", rep.Overall)
	}
	if rep.Method != StrategyWeighted {
		t.Errorf("Method = %s", rep.Method)
	}
}

func TestAggregate_SimpleAverage(t *testing.T) {
	rep, err := Aggregate([]AgentProgress{
		agent("a", 10, StatusWorking),
		agent("b", 50, StatusWorking),
		agent("c", 90, StatusWorking),
	}, StrategySimpleAverage, opts())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Overall != 50 {
		t.Errorf("Overall = %v, want 50", rep.Overall)
	}
	if rep.AgentStatus["b"] != StatusWorking {
		t.Errorf("AgentStatus = %v", rep.AgentStatus)
	}
	// No estimates: (100 - 50) minutes at one minute per percent.
	if want := fixedNow.Add(50 * time.Minute); !rep.EstimatedCompletion.Equal(want) {
		t.Errorf("EstimatedCompletion = %v, want %v", rep.EstimatedCompletion, want)
	}
}

func TestAggregate_CriticalPath(t *testing.T) {
	reports := []AgentProgress{
		agent("a", 90, StatusWorking),
		agent("b", 40, StatusWorking),
		agent("c", 10, StatusWorking),
		agent("d", 70, StatusWorking),
	}
	reports[0].EstimatedMinutesRemaining = f(2)
	reports[1].EstimatedMinutesRemaining = f(30)
	reports[2].EstimatedMinutesRemaining = f(45)
	reports[3].EstimatedMinutesRemaining = f(5)

	rep, err := Aggregate(reports, StrategyCriticalPath, opts())
	if err != nil {
		t.Fatal(err)
	}
	// ceil(0.3 * 4) = 2 slowest agents: c (45) and b (30).
	if !slices.Equal(rep.CriticalPath, []string{"task-c", "task-b"}) {
		t.Errorf("CriticalPath = %v", rep.CriticalPath)
	}
	if rep.Overall != 25 {
		t.Errorf("Overall = %v, want 25", rep.Overall)
	}
	if want := fixedNow.Add(45 * time.Minute); !rep.EstimatedCompletion.Equal(want) {
		t.Errorf("EstimatedCompletion = %v, want %v", rep.EstimatedCompletion, want)
	}
}

func TestAggregate_BlockedAgentIsHighImpact(t *testing.T) {
	rep, err := Aggregate([]AgentProgress{
		agent("worker", 45, StatusWorking),
		agent("stuck", 30, StatusBlocked),
	}, StrategySimpleAverage, opts())
	if err != nil {
		t.Fatal(err)
	}
	b := findBottleneck(rep.Bottlenecks, "stuck", BottleneckBlocked)
	if b == nil || b.Impact != ImpactHigh {
		t.Errorf("bottlenecks = %+v, want high impact for blocked agent", rep.Bottlenecks)
	}
}

func TestAggregate_Lagging(t *testing.T) {
	tests := []struct {
		name       string
		pct        []float64
		wantAgent  string
		wantImpact Impact
	}{
		// avg 50, gap 45 -> ratio 0.9
		{"high", []float64{95, 5}, "a1", ImpactHigh},
		// avg 50, gap 35 -> ratio 0.7
		{"medium", []float64{85, 15}, "a1", ImpactMedium},
		// avg 50, gap 30 -> ratio 0.6
		{"low", []float64{80, 20}, "a1", ImpactLow},
		// avg 50, gap 20 -> not lagging
		{"none", []float64{70, 30}, "", ""},
		// avg 15 is below the 20% floor
		{"early", []float64{30, 0}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports := []AgentProgress{agent("a0", tt.pct[0], StatusWorking), agent("a1", tt.pct[1], StatusWorking)}
			rep, err := Aggregate(reports, StrategySimpleAverage, opts())
			if err != nil {
				t.Fatal(err)
			}
			var lagging []Bottleneck
			for _, b := range rep.Bottlenecks {
				if b.Kind == BottleneckLagging {
					lagging = append(lagging, b)
				}
			}
			if tt.wantAgent == "" {
				if len(lagging) != 0 {
					t.Errorf("unexpected lagging bottlenecks %+v", lagging)
				}
				return
			}
			if len(lagging) != 1 || lagging[0].AgentID != tt.wantAgent || lagging[0].Impact != tt.wantImpact {
				t.Errorf("lagging = %+v, want %s/%s", lagging, tt.wantAgent, tt.wantImpact)
			}
		})
	}
}

func TestAggregate_SlowAndIdle(t *testing.T) {
	reports := []AgentProgress{
		agent("a", 50, StatusWorking),
		agent("b", 50, StatusWorking),
		agent("c", 50, StatusWorking),
		agent("idle", 50, StatusIdle),
	}
	reports[0].EstimatedMinutesRemaining = f(5)
	reports[1].EstimatedMinutesRemaining = f(5)
	reports[2].EstimatedMinutesRemaining = f(50)

	rep, err := Aggregate(reports, StrategySimpleAverage, opts())
	if err != nil {
		t.Fatal(err)
	}
	if b := findBottleneck(rep.Bottlenecks, "c", BottleneckSlow); b == nil || b.Impact != ImpactMedium {
		t.Errorf("missing slow bottleneck: %+v", rep.Bottlenecks)
	}
	if b := findBottleneck(rep.Bottlenecks, "idle", BottleneckIdle); b == nil || b.Impact != ImpactLow {
		t.Errorf("missing idle bottleneck: %+v", rep.Bottlenecks)
	}

	// Idle agents are not flagged near the start of a run.
	start := []AgentProgress{agent("a", 5, StatusWorking), agent("idle", 0, StatusIdle)}
	rep, _ = Aggregate(start, StrategySimpleAverage, opts())
	if findBottleneck(rep.Bottlenecks, "idle", BottleneckIdle) != nil {
		t.Error("idle agent flagged while overall <= 10%")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		reports   []AgentProgress
		strategy  Strategy
		wantField string
	}{
		{"unknown strategy", nil, Strategy("median"), "strategy"},
		{"missing agent id", []AgentProgress{{PercentComplete: 1, Status: StatusIdle}}, StrategySimpleAverage, "reports[0].agentId"},
		{"duplicate agent", []AgentProgress{agent("a", 1, StatusIdle), agent("a", 1, StatusIdle)}, StrategySimpleAverage, "reports[1].agentId"},
		{"percent above 100", []AgentProgress{agent("a", 101, StatusWorking)}, StrategySimpleAverage, "reports[0].percentComplete"},
		{"percent negative", []AgentProgress{agent("a", -1, StatusWorking)}, StrategySimpleAverage, "reports[0].percentComplete"},
		{"percent NaN", []AgentProgress{agent("a", math.NaN(), StatusWorking)}, StrategySimpleAverage, "reports[0].percentComplete"},
		{"unknown status", []AgentProgress{agent("a", 1, Status("sleeping"))}, StrategySimpleAverage, "reports[0].status"},
		{"weighted without weight", []AgentProgress{agent("a", 1, StatusWorking)}, StrategyWeighted, "reports[0].weight"},
		{"zero weight", []AgentProgress{{AgentID: "a", Status: StatusWorking, Weight: f(0)}}, StrategySimpleAverage, "reports[0].weight"},
		{"negative estimate", []AgentProgress{{AgentID: "a", Status: StatusWorking, EstimatedMinutesRemaining: f(-3)}}, StrategySimpleAverage, "reports[0].estimatedMinutesRemaining"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate(tt.reports, tt.strategy, opts())
			var vErr *errors.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Aggregate() error = %v, want ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", vErr.Field, tt.wantField)
			}
		})
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range Strategies() {
		if got, err := ParseStrategy(string(s)); err != nil || got != s {
			t.Errorf("ParseStrategy(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParseStrategy("median"); err == nil {
		t.Error("expected error")
	}
}
