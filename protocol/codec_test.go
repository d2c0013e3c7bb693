package protocol

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMessage_FlattensFields(t *testing.T) {
	msg := NewClientMessage("deploy", map[string]any{
		"repo":   "github.com/acme/app",
		"branch": "main",
		"type":   "ignored",
	})

	data, err := EncodeMessage(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, DecodeMessage(data, &decoded))
	assert.Equal(t, "deploy", decoded["type"])
	assert.Equal(t, "github.com/acme/app", decoded["repo"])
	assert.Equal(t, "main", decoded["branch"])
	assert.Len(t, decoded, 3)
	assert.NotEqual(t, byte('\n'), data[len(data)-1])
}

func TestEncodeMessage_EmptyType(t *testing.T) {
	_, err := EncodeMessage(NewClientMessage("", nil))
	assert.Error(t, err)
}

func TestNewClientMessage_CopiesFields(t *testing.T) {
	fields := map[string]any{"content": "hello"}
	msg := NewClientMessage(TypeMessage, fields)
	fields["content"] = "changed"

	v, ok := msg.Field("content")
	require.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestEncodeInit(t *testing.T) {
	data, err := EncodeMessage(NewInit(InitMsg{
		SessionID: "sess-1",
		Client:    "qlink",
		Version:   ProtocolVersion,
		Timestamp: 42,
	}))
	require.NoError(t, err)

	var got InitMsg
	require.NoError(t, DecodeMessage(data, &got))
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "qlink", got.Client)
	assert.Equal(t, int64(42), got.Timestamp)
	assert.Contains(t, string(data), `"type":"init"`)
}

func TestParseServerMessage(t *testing.T) {
	frame := []byte(`{"type":"typing","is_typing":true,"extra":{"a":1}}`)
	msg, err := ParseServerMessage(frame)
	require.NoError(t, err)
	assert.Equal(t, TypeTyping, msg.Type)
	assert.Equal(t, frame, msg.Raw)

	// Raw is detached from the read buffer
	frame[2] = 'X'
	assert.NotEqual(t, frame, msg.Raw)

	fields, err := msg.Fields()
	require.NoError(t, err)
	assert.Equal(t, true, fields["is_typing"])
}

func TestParseServerMessage_Malformed(t *testing.T) {
	frames := []string{
		``,
		`not json`,
		`[]`,
		`null`,
		`{}`,
		`{"type":""}`,
		`{"type":5}`,
		`{"type":"pong"`,
	}
	for _, f := range frames {
		_, err := ParseServerMessage([]byte(f))
		assert.Truef(t, errors.Is(err, ErrMalformedMessage), "frame %q: got %v", f, err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{[]byte(`{"type":"ping"}`), {}, bytes.Repeat([]byte("x"), 70000)}
	for _, p := range payloads {
		require.NoError(t, WriteFrame(&buf, p))
	}
	for _, p := range payloads {
		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, len(p), len(got))
	}
	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}

func TestReadFrame_TooLarge(t *testing.T) {
	header := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	_, err := ReadFrame(bytes.NewReader(header))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload too large")
}

func TestDecodeDeploymentProgress(t *testing.T) {
	frame := []byte(`{"type":"deployment_progress","deployment_id":"d-1","stage":"container_build",` +
		`"status":"in-progress","message":"building","timestamp":"2025-03-01T10:20:30.123456","progress":40}`)
	msg, err := ParseServerMessage(frame)
	require.NoError(t, err)

	p, err := DecodeDeploymentProgress(msg)
	require.NoError(t, err)
	assert.Equal(t, "d-1", p.DeploymentID)
	assert.Equal(t, StageContainerBuild, p.Stage)
	require.NotNil(t, p.Progress)
	assert.Equal(t, 40, *p.Progress)
	assert.False(t, p.Done())

	ts, err := p.Time(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 2025, ts.Year())
	assert.Equal(t, 123456000, ts.Nanosecond())

	_, err = DecodeDeploymentProgress(ServerMessage{Type: TypeMessage})
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestDeploymentProgress_TimeWithoutFraction(t *testing.T) {
	p := DeploymentProgress{Timestamp: "2025-03-01T10:20:30", Status: StatusSuccess}
	ts, err := p.Time(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 30, ts.Second())
	assert.True(t, p.Done())
	assert.False(t, p.Final(), "an intermediate stage succeeding does not end the deployment")
}

func TestDeploymentProgress_Final(t *testing.T) {
	assert.True(t, (&DeploymentProgress{Stage: StageCloudDeployment, Status: StatusSuccess}).Final())
	assert.True(t, (&DeploymentProgress{Stage: StageSecurityScan, Status: StatusError}).Final())
	assert.False(t, (&DeploymentProgress{Stage: StageCloudDeployment, Status: StatusInProgress}).Final())
}
