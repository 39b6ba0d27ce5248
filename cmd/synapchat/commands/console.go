package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/harunnryd/synapchat/pkg/logging"
	"github.com/harunnryd/synapchat/pkg/synapchat"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run the widget in the terminal",
	Long: `Run the widget in the terminal. Type a command and press enter:

  s  start the conversation
  e  end the conversation
  m  mute or unmute the agent
  q  quit

Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logging.InitLoggerTo(os.Stderr, logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

		app, err := synapchat.New(synapchat.Options{Config: cfg, Logger: log})
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()
		return app.Console(ctx, os.Stdin, os.Stdout)
	},
}
