package run

import (
	"github.com/Mmx233/QLink/tools"
	"github.com/spf13/cobra"
)

var (
	configFile = tools.Env("CONFIG", "config.yaml")
	Cmd        = &cobra.Command{
		Use:   "run",
		Short: "Connect to the deployment backend and relay stdin lines as chat messages",
		Args:  cobra.NoArgs,
		RunE:  runClient,
	}
)

func init() {
	Cmd.PersistentFlags().StringVarP(&configFile, "config", "c", configFile, "path of config file")
}
