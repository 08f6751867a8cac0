package tui

import (
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"linkloft/internal/hasura"
)

// Deps carries everything the interactive editor needs: a data service
// client bound to the logged-in account.
type Deps struct {
	Client  *hasura.Client
	Token   string
	Subject string
	Logger  *slog.Logger
}

// Run starts the interactive link editor for the logged-in account.
func Run(deps Deps) error {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	applyColorProfilePreference()
	m := newAppModel(deps)
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
