package run

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Mmx233/QLink/client"
	"github.com/Mmx233/QLink/protocol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, frame string) protocol.ServerMessage {
	t.Helper()
	msg, err := protocol.ParseServerMessage([]byte(frame))
	require.NoError(t, err)
	return msg
}

func TestRender(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  []string
	}{
		{
			name:  "chat message",
			frame: `{"type":"message","content":"Analyzing your repository"}`,
			want:  []string{"< Analyzing your repository"},
		},
		{
			name:  "connected",
			frame: `{"type":"connected","message":"Connected to deployment assistant"}`,
			want:  []string{"< Connected to deployment assistant"},
		},
		{
			name:  "server error",
			frame: `{"type":"error","message":"rate limited"}`,
			want:  []string{"! rate limited"},
		},
		{
			name:  "progress",
			frame: `{"type":"deployment_progress","deployment_id":"d1","stage":"container_build","status":"in-progress","message":"Building image","progress":40}`,
			want:  []string{"[container_build] in-progress: Building image (40%)"},
		},
		{
			name:  "final stage",
			frame: `{"type":"deployment_progress","deployment_id":"d1","stage":"cloud_deployment","status":"success","message":"Live"}`,
			want:  []string{"[cloud_deployment] success: Live", "deployment d1 finished: success"},
		},
		{
			name:  "typing is not printed",
			frame: `{"type":"typing"}`,
		},
		{
			name:  "unknown type is not printed",
			frame: `{"type":"metrics","cpu":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			render(zerolog.Nop(), &out, parse(t, tt.frame))

			if len(tt.want) == 0 {
				assert.Empty(t, out.String())
				return
			}
			for _, want := range tt.want {
				assert.Contains(t, out.String(), want)
			}
		})
	}
}

func TestPump(t *testing.T) {
	var sent []string
	send := func(msg protocol.ClientMessage) (client.SendResult, error) {
		content, _ := msg.Field("content")
		sent = append(sent, content.(string))
		return client.SendQueued, nil
	}

	input := strings.NewReader("deploy github.com/acme/api\n\n   \nuse region eu-west-1\n")
	pump(context.Background(), input, send, zerolog.Nop())

	assert.Equal(t, []string{"deploy github.com/acme/api", "use region eu-west-1"}, sent)
}

func TestPump_StopsWhenDestroyed(t *testing.T) {
	var calls int
	send := func(protocol.ClientMessage) (client.SendResult, error) {
		calls++
		return client.SendFailed, client.ErrDestroyed
	}

	pump(context.Background(), strings.NewReader("a\nb\nc\n"), send, zerolog.Nop())
	assert.Equal(t, 1, calls)
}
