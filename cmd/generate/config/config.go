package config

import (
	"fmt"
	"os"

	"github.com/Mmx233/QLink/examples"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile string // --config flag value
	force      bool

	Cmd = &cobra.Command{
		Use:   "config",
		Short: "Generate client configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Generate(configFile, force)
		},
	}
)

func init() {
	Cmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "output config file path")
	Cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
}

// Generate writes the embedded client configuration template to path.
func Generate(path string, overwrite bool) error {
	logger := log.With().Str("com", "generate").Logger()

	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("file already exists: %s", path)
	}

	content, err := examples.ClientConfig()
	if err != nil {
		return fmt.Errorf("load client config template: %w", err)
	}

	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	logger.Info().Str("file", path).Msg("generated client configuration")
	return nil
}
