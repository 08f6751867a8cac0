package cli

import (
	"bufio"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"linkloft/internal/config"
	"linkloft/internal/session"
)

func newLoginCmd(app *App) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session credential",
		Example: strings.TrimSpace(`
  linkloft login --email you@example.com
  # password is read from stdin when not passed as a flag
  echo "$PASSWORD" | linkloft login --email you@example.com
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return writeErr(cmd, err)
			}
			idp, err := newIdentityClient(cfg)
			if err != nil {
				return writeErr(cmd, err)
			}
			email = strings.TrimSpace(email)
			if email == "" {
				return writeErr(cmd, errors.New("login: missing --email"))
			}
			if password == "" {
				password = readLine(cmd)
			}
			if password == "" {
				return writeErr(cmd, errors.New("login: missing password"))
			}

			token, err := idp.Login(cmd.Context(), email, password)
			if err != nil {
				return writeErr(cmd, err)
			}
			subject, err := session.Subject(token)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := (session.Store{}).Save(token); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{"subject": subject},
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prefer stdin)")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored session credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := (session.Store{}).Clear(); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{"loggedOut": true},
			})
		},
	}
}

func newSignupCmd(app *App) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return writeErr(cmd, err)
			}
			idp, err := newIdentityClient(cfg)
			if err != nil {
				return writeErr(cmd, err)
			}
			email = strings.TrimSpace(email)
			if email == "" {
				return writeErr(cmd, errors.New("signup: missing --email"))
			}
			if password == "" {
				password = readLine(cmd)
			}
			if len(password) < 8 {
				return writeErr(cmd, errors.New("signup: password must be at least 8 characters"))
			}

			if err := idp.Signup(cmd.Context(), email, password); err != nil {
				return writeErr(cmd, err)
			}
			token, err := idp.Login(cmd.Context(), email, password)
			if err != nil {
				return writeErr(cmd, err)
			}
			subject, err := session.Subject(token)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := (session.Store{}).Save(token); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{"subject": subject, "created": true},
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prefer stdin)")
	return cmd
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, subject, err := currentSession()
			if err != nil {
				return writeErr(cmd, err)
			}

			out := map[string]any{"subject": subject}
			// Profile details are best effort; the subject alone is
			// still a useful answer when the data service is down.
			if cfg, err := config.Load(); err == nil {
				if client, err := newHasuraClient(cfg); err == nil {
					if profile, _, err := client.Me(cmd.Context(), token, subject); err == nil {
						out["name"] = profile.DisplayName()
						out["email"] = profile.Email
					}
				}
			}
			return writeOut(cmd, app, map[string]any{"data": out})
		},
	}
}

func readLine(cmd *cobra.Command) string {
	sc := bufio.NewScanner(cmd.InOrStdin())
	if sc.Scan() {
		return strings.TrimSpace(sc.Text())
	}
	return ""
}
