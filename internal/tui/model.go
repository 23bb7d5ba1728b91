package tui

import (
	"fmt"
	"strings"
	"time"

	bar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/fanout/internal/progress"
	"github.com/Iron-Ham/fanout/internal/tui/styles"
)

// Source supplies agent reports and announces changes.
type Source interface {
	Snapshot() []progress.AgentProgress
	SetChangeCallback(func([]progress.AgentProgress))
}

// Aggregator turns a snapshot into a report.
type Aggregator func([]progress.AgentProgress) (*progress.Report, error)

// snapshotMsg carries a fresh snapshot into the update loop.
type snapshotMsg []progress.AgentProgress

// Layout constants
const (
	agentColumnWidth = 16
	minBarWidth      = 10
	maxBarWidth      = 50
)

// Model is the progress dashboard.
type Model struct {
	title     string
	source    Source
	aggregate Aggregator
	now       func() time.Time

	agents  []progress.AgentProgress
	report  *progress.Report
	err     error
	updated time.Time

	overall  bar.Model
	agentBar bar.Model
	spinner  spinner.Model
	quitting bool
}

// NewModel creates a dashboard over src.
func NewModel(title string, src Source, aggregate Aggregator) Model {
	return Model{
		title:     title,
		source:    src,
		aggregate: aggregate,
		now:       time.Now,
		overall:   bar.New(bar.WithDefaultGradient(), bar.WithoutPercentage(), bar.WithWidth(maxBarWidth)),
		agentBar:  bar.New(bar.WithSolidFill(string(styles.BlueColor)), bar.WithoutPercentage(), bar.WithWidth(maxBarWidth/2)),
		spinner:   spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(styles.Accent)),
	}
}

func (m Model) refresh() tea.Msg {
	return snapshotMsg(m.source.Snapshot())
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.refresh
		}

	case tea.WindowSizeMsg:
		w := min(max(msg.Width-agentColumnWidth-20, minBarWidth), maxBarWidth)
		m.overall.Width = w
		m.agentBar.Width = max(w/2, minBarWidth)

	case snapshotMsg:
		m.agents = msg
		m.report, m.err = m.aggregate(msg)
		m.updated = m.now()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(styles.Header.Render("fanout progress: " + m.title))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(styles.ErrorMsg.Render(m.err.Error()))
		b.WriteString("\n")
	case m.report == nil:
		b.WriteString(m.spinner.View() + " waiting for reports\n")
	default:
		m.renderReport(&b)
	}

	b.WriteString(styles.HelpBar.Render(
		styles.HelpKey.Render("q") + " quit  " + styles.HelpKey.Render("r") + " refresh"))
	return b.String()
}

func (m Model) renderReport(b *strings.Builder) {
	r := m.report
	fmt.Fprintf(b, "%s %5.1f%%  %s\n", m.overall.ViewAs(r.Overall/100), r.Overall,
		styles.Muted.Render(string(r.Method)))
	fmt.Fprintf(b, "%s\n\n", styles.Muted.Render(fmt.Sprintf("estimated completion %s, updated %s",
		r.EstimatedCompletion.Local().Format("15:04:05"), m.updated.Local().Format("15:04:05"))))

	if len(m.agents) == 0 {
		b.WriteString(styles.Muted.Render("no agents reporting") + "\n")
	}
	for _, a := range m.agents {
		marker := " "
		if a.Status == progress.StatusWorking {
			marker = m.spinner.View()
		}
		fmt.Fprintf(b, "%s %-*s %s %5.1f%% %s",
			marker, agentColumnWidth, a.AgentID, m.agentBar.ViewAs(a.PercentComplete/100), a.PercentComplete,
			styles.StatusStyle(a.Status).Render(string(a.Status)))
		if a.CurrentTask != "" {
			b.WriteString(styles.Muted.Render("  " + a.CurrentTask))
		}
		b.WriteString("\n")
	}

	if len(r.Bottlenecks) > 0 {
		b.WriteString(styles.Section.Render(styles.Title.Render("Bottlenecks")) + "\n")
		for _, bn := range r.Bottlenecks {
			fmt.Fprintf(b, "%s %s %s\n",
				styles.SeverityStyle(string(bn.Impact)).Render("["+string(bn.Impact)+"]"),
				styles.Bold.Render(bn.AgentID), bn.Description)
		}
	}
}
