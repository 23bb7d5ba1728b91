package tui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/fanout/internal/progress"
)

type fakeSource struct {
	mu      sync.Mutex
	reports []progress.AgentProgress
	cb      func([]progress.AgentProgress)
}

func (f *fakeSource) Snapshot() []progress.AgentProgress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports
}

func (f *fakeSource) SetChangeCallback(cb func([]progress.AgentProgress)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
}

func aggregate(reports []progress.AgentProgress) (*progress.Report, error) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return progress.Aggregate(reports, progress.StrategySimpleAverage, progress.Options{
		Now: func() time.Time { return now },
	})
}

func sampleReports() []progress.AgentProgress {
	return []progress.AgentProgress{
		{AgentID: "agent-1", PercentComplete: 100, Status: progress.StatusComplete},
		{AgentID: "agent-2", PercentComplete: 50, Status: progress.StatusWorking, CurrentTask: "api"},
	}
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return model, cmd
}

func TestModel_WaitsForReports(t *testing.T) {
	m := NewModel("snapshot.yaml", &fakeSource{}, aggregate)
	view := m.View()
	if !strings.Contains(view, "snapshot.yaml") {
		t.Errorf("View() missing title:\n%s", view)
	}
	if !strings.Contains(view, "waiting for reports") {
		t.Errorf("View() should show waiting state:\n%s", view)
	}
}

func TestModel_InitRefreshesFromSource(t *testing.T) {
	src := &fakeSource{reports: sampleReports()}
	m := NewModel("x", src, aggregate)
	if cmd := m.Init(); cmd == nil {
		t.Fatal("Init() returned nil command")
	}
	msg := m.refresh()
	got, ok := msg.(snapshotMsg)
	if !ok || len(got) != 2 {
		t.Fatalf("refresh() = %#v, want snapshot of 2 reports", msg)
	}
}

func TestModel_RendersSnapshot(t *testing.T) {
	m := NewModel("x", &fakeSource{}, aggregate)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = update(t, m, snapshotMsg(sampleReports()))

	if m.report == nil || m.report.Overall != 75 {
		t.Fatalf("report = %+v, want 75%% overall", m.report)
	}
	view := m.View()
	for _, want := range []string{"75.0%", "agent-1", "agent-2", "api", "simple-average"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestModel_ShowsAggregationError(t *testing.T) {
	failing := func([]progress.AgentProgress) (*progress.Report, error) {
		return nil, errors.New("weight required for agent-1")
	}
	m := NewModel("x", &fakeSource{}, failing)
	m, _ = update(t, m, snapshotMsg(sampleReports()))

	if !strings.Contains(m.View(), "weight required for agent-1") {
		t.Errorf("View() should render the error:\n%s", m.View())
	}
}

func TestModel_Keys(t *testing.T) {
	tests := []struct {
		key      string
		wantQuit bool
	}{
		{"q", true},
		{"r", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			src := &fakeSource{reports: sampleReports()}
			m, cmd := update(t, NewModel("x", src, aggregate), keyMsg(tt.key))
			if cmd == nil {
				t.Fatal("expected a command")
			}
			msg := cmd()
			_, quit := msg.(tea.QuitMsg)
			if quit != tt.wantQuit {
				t.Errorf("key %q: quit = %v, want %v", tt.key, quit, tt.wantQuit)
			}
			if tt.wantQuit && m.View() != "" {
				t.Error("View() should be empty after quitting")
			}
			if !tt.wantQuit {
				if _, ok := msg.(snapshotMsg); !ok {
					t.Errorf("refresh key produced %T", msg)
				}
			}
		})
	}
}

func TestModel_ResizeClampsBars(t *testing.T) {
	m := NewModel("x", &fakeSource{}, aggregate)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 10})
	if m.overall.Width != minBarWidth {
		t.Errorf("overall width = %d, want %d", m.overall.Width, minBarWidth)
	}
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 500})
	if m.overall.Width != maxBarWidth {
		t.Errorf("overall width = %d, want %d", m.overall.Width, maxBarWidth)
	}
}
