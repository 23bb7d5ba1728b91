// Package styles holds the lipgloss palette shared by the CLI renderers and
// the progress dashboard.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/fanout/internal/progress"
)

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	BlueColor      = lipgloss.Color("#60A5FA") // Blue
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Accent    = lipgloss.NewStyle().Foreground(BlueColor)
	Bold      = lipgloss.NewStyle().Bold(true)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor)

	Section = lipgloss.NewStyle().MarginTop(1)

	// Header of the dashboard
	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(BorderColor).
		MarginBottom(1)

	// Help bar
	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	HelpKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(SecondaryColor)

	// Error message
	ErrorMsg = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)
)

// StatusColor returns the color for an agent status.
func StatusColor(s progress.Status) lipgloss.Color {
	switch s {
	case progress.StatusWorking:
		return BlueColor
	case progress.StatusComplete:
		return SecondaryColor
	case progress.StatusBlocked:
		return WarningColor
	case progress.StatusFailed:
		return ErrorColor
	default:
		return MutedColor
	}
}

// StatusStyle renders an agent status in its color.
func StatusStyle(s progress.Status) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(StatusColor(s))
}

// SeverityStyle colors a severity or impact label: critical and high in
// red, medium in amber, anything else muted.
func SeverityStyle(level string) lipgloss.Style {
	switch level {
	case "critical", "high":
		return Error
	case "medium":
		return Warning
	default:
		return Muted
	}
}
