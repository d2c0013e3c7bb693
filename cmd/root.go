package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Mmx233/QLink/cmd/credential"
	"github.com/Mmx233/QLink/cmd/generate"
	"github.com/Mmx233/QLink/cmd/run"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"

	showVersion bool
	debug       bool
	logLevel    string
	logFormat   string

	rootCmd = &cobra.Command{
		Use:           "qlink",
		Short:         "Persistent, self-healing chat channel to the deployment backend",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Println(Version)
				return nil
			}
			return cmd.Help()
		},
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("failed to execute")
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Shorthand for --log-level trace")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log output format (console, json)")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Print version information")
	rootCmd.AddCommand(run.Cmd, credential.Cmd, generate.Cmd)
}

// setupLogger applies the log flags to the global logger. Call after flags are parsed.
func setupLogger() error {
	level, err := parseLevel(logLevel, debug)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	switch logFormat {
	case "console":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
	case "json":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	default:
		return fmt.Errorf("unknown log format %q", logFormat)
	}
	return nil
}

func parseLevel(name string, debug bool) (zerolog.Level, error) {
	if debug {
		return zerolog.TraceLevel, nil
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parse log level: %w", err)
	}
	return level, nil
}
