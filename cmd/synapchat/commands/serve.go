package commands

import (
	"github.com/spf13/cobra"

	"github.com/harunnryd/synapchat/pkg/synapchat"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browser widget",
	Long: `Serve the widget page, the session API and the state websocket.

Example:
  synapchat serve -c synapchat.yaml --addr :8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Web.Addr = addr
		}

		app, err := synapchat.New(synapchat.Options{Config: cfg})
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()
		return app.Serve(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address, overrides web.addr")
}
