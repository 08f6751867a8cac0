package cli

import (
	"net"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"linkloft/internal/config"
	"linkloft/internal/web"
)

func newWebCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the web editor and public profile pages",
		Example: strings.TrimSpace(`
  # Serve on localhost
  linkloft web --addr 127.0.0.1:3000

  # Let the OS pick a port
  linkloft web --addr 127.0.0.1:0
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return writeErr(cmd, err)
			}
			dataClient, err := newHasuraClient(cfg)
			if err != nil {
				return writeErr(cmd, err)
			}
			idp, err := newIdentityClient(cfg)
			if err != nil {
				return writeErr(cmd, err)
			}
			uploads, err := newUploadClient(cfg)
			if err != nil {
				return writeErr(cmd, err)
			}

			srv, err := web.NewServer(web.ServerConfig{
				Hasura:   dataClient,
				Identity: idp,
				Uploads:  uploads,
			})
			if err != nil {
				return writeErr(cmd, err)
			}

			ln, err := net.Listen("tcp", strings.TrimSpace(addr))
			if err != nil {
				return writeErr(cmd, err)
			}

			url := "http://" + ln.Addr().String() + "/"
			_ = writeOut(cmd, app, map[string]any{
				"data": map[string]any{"url": url},
				"meta": map[string]any{"hint": "open " + url},
			})
			return http.Serve(ln, srv.Handler())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:3000", "Listen address (host:port)")
	return cmd
}
