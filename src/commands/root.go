package commands

import (
	"git.handmade.network/hmn/edu/src/config"
	"git.handmade.network/hmn/edu/src/logging"
	"git.handmade.network/hmn/edu/src/oops"
	"github.com/spf13/cobra"
)

var configPath string

// Every subcommand hangs off this one. Packages register their commands from
// init, and main blank-imports them.
var RootCommand = &cobra.Command{
	Use:   "edu",
	Short: "Publish and maintain tutorials and articles",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(configPath); err != nil {
			return oops.New(err, "failed to load config")
		}
		logging.SetLevel(config.Config.LogLevel)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	RootCommand.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (default: ./edu.yaml or /etc/edu/edu.yaml)")
}
