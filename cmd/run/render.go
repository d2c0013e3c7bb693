package run

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Mmx233/QLink/client"
	"github.com/Mmx233/QLink/protocol"
	"github.com/rs/zerolog"
)

// render prints a server frame for a terminal user.
func render(logger zerolog.Logger, out io.Writer, msg protocol.ServerMessage) {
	switch msg.Type {
	case protocol.TypeDeploymentProgress:
		p, err := protocol.DecodeDeploymentProgress(msg)
		if err != nil {
			logger.Warn().Err(err).Msg("invalid deployment progress")
			return
		}
		line := fmt.Sprintf("[%s] %s: %s", p.Stage, p.Status, p.Message)
		if p.Progress != nil {
			line += fmt.Sprintf(" (%d%%)", *p.Progress)
		}
		if ts, err := p.Time(time.Local); err == nil {
			line = ts.Format(time.TimeOnly) + " " + line
		}
		fmt.Fprintln(out, line)
		if p.Final() {
			fmt.Fprintf(out, "deployment %s finished: %s\n", p.DeploymentID, p.Status)
		}

	case protocol.TypeMessage, protocol.TypeConnected:
		var body struct {
			Content string `json:"content"`
			Message string `json:"message"`
		}
		if err := msg.Decode(&body); err != nil {
			logger.Warn().Err(err).Msg("invalid message frame")
			return
		}
		text := body.Content
		if text == "" {
			text = body.Message
		}
		fmt.Fprintf(out, "< %s\n", text)

	case protocol.TypeError:
		var e protocol.ErrorMsg
		if err := msg.Decode(&e); err != nil {
			logger.Warn().Err(err).Msg("invalid error frame")
			return
		}
		fmt.Fprintf(out, "! %s\n", e.Message)

	case protocol.TypeTyping:
		logger.Debug().Msg("assistant is typing")

	default:
		logger.Debug().Str("type", msg.Type).RawJSON("frame", msg.Raw).Msg("unhandled frame")
	}
}

// pump sends every non-empty line of r as a chat message until r is
// exhausted or ctx is cancelled.
func pump(ctx context.Context, r io.Reader, send func(protocol.ClientMessage) (client.SendResult, error), logger zerolog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		result, err := send(protocol.NewChatMessage(line))
		switch {
		case errors.Is(err, client.ErrDestroyed):
			return
		case err != nil:
			logger.Warn().Err(err).Msg("message not sent")
		case result == client.SendQueued:
			logger.Info().Msg("offline, message queued")
		case result == client.SendFailed:
			logger.Warn().Msg("message not sent")
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn().Err(err).Msg("read input")
	}
}
