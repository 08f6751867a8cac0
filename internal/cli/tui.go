package cli

import (
	"github.com/spf13/cobra"

	"linkloft/internal/config"
	"linkloft/internal/tui"
)

func newTuiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive TUI link editor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(app)
		},
	}
}

func runTUI(app *App) error {
	token, subject, err := currentSession()
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	client, err := newHasuraClient(cfg)
	if err != nil {
		return err
	}
	return tui.Run(tui.Deps{Client: client, Token: token, Subject: subject})
}
