// Package tui renders a live progress dashboard with Bubbletea.
package tui

import (
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/fanout/internal/progress"
)

// App wraps the Bubbletea program
type App struct {
	program *tea.Program
	model   Model
	source  Source
}

// New creates a dashboard application over src.
func New(title string, src Source, aggregate Aggregator) *App {
	return &App{
		model:  NewModel(title, src, aggregate),
		source: src,
	}
}

// Run starts the dashboard and blocks until the user quits or the process
// is signaled.
func (a *App) Run() error {
	a.program = tea.NewProgram(
		a.model,
		tea.WithAltScreen(),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		if _, ok := <-sigChan; ok && a.program != nil {
			a.program.Send(tea.Quit())
		}
	}()

	// Forward every source change into the update loop
	a.source.SetChangeCallback(func(reports []progress.AgentProgress) {
		a.program.Send(snapshotMsg(reports))
	})

	_, err := a.program.Run()

	a.source.SetChangeCallback(nil)
	signal.Stop(sigChan)
	close(sigChan)

	return err
}
