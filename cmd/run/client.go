package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Mmx233/QLink/client"
	"github.com/Mmx233/QLink/config"
	"github.com/Mmx233/QLink/credential"
	"github.com/Mmx233/QLink/protocol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func runClient(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "client-cmd").Logger()

	// Load configuration with validation
	logger.Info().Str("config", configFile).Msg("loading configuration")
	cfg, err := config.LoadClientConfig(configFile)
	if err != nil {
		return err
	}

	provider, err := credential.FromConfig(cfg.Credential)
	if err != nil {
		return err
	}
	defer credential.Close(provider)

	c, err := client.New(cfg, nil, client.WithCredentials(provider))
	if err != nil {
		return err
	}
	defer c.Destroy()

	out := cmd.OutOrStdout()
	c.OnStatusChange(func(s client.ConnectionStatus) {
		event := logger.Info().Stringer("state", s.State)
		if s.ReconnectAttempt > 0 {
			event = event.Int("attempt", s.ReconnectAttempt)
		}
		event.AnErr("cause", s.Err).Msg("connection status")
	})
	c.OnError(func(err error) {
		logger.Warn().Err(err).Msg("client error")
	})
	c.OnMessage(func(msg protocol.ServerMessage) {
		render(logger, out, msg)
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c.Connect()
	go pump(ctx, os.Stdin, c.SendMessage, logger)

	<-ctx.Done()
	logger.Info().Msg("received shutdown signal")
	c.Disconnect()
	logger.Info().Msg("client stopped")
	return nil
}
