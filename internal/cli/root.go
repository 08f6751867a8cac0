package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"linkloft/internal/format"
)

type App struct {
	PrettyJSON bool
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "linkloft",
		Short:        "Link-in-bio editor: CLI + TUI + local web UI",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive TUI link editor
  linkloft

  # Serve the web editor locally
  linkloft web --addr 127.0.0.1:3000

  # Scriptable commands
  linkloft login --email you@example.com
  linkloft links list
  linkloft links save links.json
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runTUI(app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")

	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newSignupCmd(app))
	cmd.AddCommand(newWhoamiCmd(app))
	cmd.AddCommand(newLinksCmd(app))
	cmd.AddCommand(newProfileCmd(app))
	cmd.AddCommand(newWebCmd(app))
	cmd.AddCommand(newTuiCmd(app))

	return cmd
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
