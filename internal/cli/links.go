package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"linkloft/internal/config"
	"linkloft/internal/editor"
	"linkloft/internal/hasura"
	"linkloft/internal/reconcile"
)

func newLinksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Inspect and replace the link collection",
	}
	cmd.AddCommand(newLinksListCmd(app))
	cmd.AddCommand(newLinksSaveCmd(app))
	return cmd
}

func newLinksListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the saved links in display order",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, subject, err := currentSession()
			if err != nil {
				return writeErr(cmd, err)
			}
			cfg, err := config.Load()
			if err != nil {
				return writeErr(cmd, err)
			}
			client, err := newHasuraClient(cfg)
			if err != nil {
				return writeErr(cmd, err)
			}
			_, links, err := client.Me(cmd.Context(), token, subject)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"links": links}})
		},
	}
}

// desiredLink is the scriptable input row: platform key plus url.
type desiredLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

func newLinksSaveCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save [file]",
		Short: "Replace the whole link collection from a JSON file (or stdin)",
		Long: strings.TrimSpace(`
Replace the saved link collection with the given rows, in order.

Input is a JSON array of {"platform": ..., "url": ...} objects. Existing
links are removed and the new rows are created in one batched write, the
same way the interactive editors save.
`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, subject, err := currentSession()
			if err != nil {
				return writeErr(cmd, err)
			}
			cfg, err := config.Load()
			if err != nil {
				return writeErr(cmd, err)
			}
			client, err := newHasuraClient(cfg)
			if err != nil {
				return writeErr(cmd, err)
			}

			desired, err := readDesiredLinks(cmd, args)
			if err != nil {
				return writeErr(cmd, err)
			}

			_, existing, err := client.Me(cmd.Context(), token, subject)
			if err != nil {
				return writeErr(cmd, err)
			}

			ed := editor.NewLinks(existing)
			for _, l := range existing {
				ed.Remove(l.ID)
			}
			for _, d := range desired {
				row := ed.Add()
				platform := d.Platform
				url := d.URL
				ed.Update(row.ID, editor.Patch{Platform: &platform, URL: &url})
			}
			if errs, ok := ed.Validate(); !ok {
				return writeErr(cmd, fmt.Errorf("invalid input: %v", errs))
			}

			engine := reconcile.NewEngine(hasura.Bound{Client: client, Token: token}, nil)
			d := engine.Save(cmd.Context(), ed.Links(), ed.Removals(), subject)
			ed.ApplyDisposition(d)
			if err := d.Err(); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"links": ed.Links()}})
		},
	}
	return cmd
}

func readDesiredLinks(cmd *cobra.Command, args []string) ([]desiredLink, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var desired []desiredLink
	if err := json.NewDecoder(r).Decode(&desired); err != nil {
		return nil, fmt.Errorf("links save: decoding input: %w", err)
	}
	return desired, nil
}
