package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"linkloft/internal/config"
	"linkloft/internal/editor"
)

func newProfileCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect and update the profile shown on your public page",
	}
	cmd.AddCommand(newProfileShowCmd(app))
	cmd.AddCommand(newProfileSetCmd(app))
	cmd.AddCommand(newProfileAvatarCmd(app))
	return cmd
}

func newProfileShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the saved profile",
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
			profile, _, err := client.Me(cmd.Context(), token, subject)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"profile": profile}})
		},
	}
}

func newProfileSetCmd(app *App) *cobra.Command {
	var firstName, lastName, email string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update profile fields",
		Example: `  linkloft profile set --first-name Sarah --last-name Lane`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("first-name") && !cmd.Flags().Changed("last-name") && !cmd.Flags().Changed("email") {
				return writeErr(cmd, errors.New("profile set: nothing to change"))
			}
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
			current, _, err := client.Me(cmd.Context(), token, subject)
			if err != nil {
				return writeErr(cmd, err)
			}

			ed := editor.NewProfile(current)
			if cmd.Flags().Changed("first-name") {
				ed.SetField("first_name", firstName)
			}
			if cmd.Flags().Changed("last-name") {
				ed.SetField("last_name", lastName)
			}
			if cmd.Flags().Changed("email") {
				ed.SetField("email", email)
			}
			if errs, ok := ed.Validate(); !ok {
				return writeErr(cmd, fmt.Errorf("invalid input: %v", errs))
			}
			if err := client.UpsertProfile(cmd.Context(), token, ed.Record()); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"profile": ed.Record()}})
		},
	}

	cmd.Flags().StringVar(&firstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&email, "email", "", "Contact email shown on the public page")
	return cmd
}

func newProfileAvatarCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "avatar <image-file>",
		Short: "Upload a profile picture and attach it to the profile",
		Args:  cobra.ExactArgs(1),
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
			uploads, err := newUploadClient(cfg)
			if err != nil {
				return writeErr(cmd, err)
			}
			if uploads == nil {
				return writeErr(cmd, errors.New("no image hosting configured; set uploadCloudName in config.json or LINKLOFT_UPLOAD_CLOUD_NAME"))
			}

			f, err := os.Open(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			defer f.Close()

			hosted, err := uploads.Image(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return writeErr(cmd, err)
			}

			profile, _, err := client.Me(cmd.Context(), token, subject)
			if err != nil {
				return writeErr(cmd, err)
			}
			profile.ImageURL = hosted
			if err := client.UpsertProfile(cmd.Context(), token, profile); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"image": hosted}})
		},
	}
}
