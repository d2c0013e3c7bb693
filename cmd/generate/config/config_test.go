package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Mmx233/QLink/config"
	"github.com/Mmx233/QLink/examples"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestClientConfigTemplateFields verifies that the embedded client.yaml template:
// - Parses into config.Client without unknown fields
// - Validates once defaults are applied
// - Uses default values from config/defaults.go
func TestClientConfigTemplateFields(t *testing.T) {
	content, err := examples.ClientConfig()
	require.NoError(t, err, "failed to load client config template")

	var cfg config.Client
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true) // Error on unknown fields
	err = decoder.Decode(&cfg)
	require.NoError(t, err, "client.yaml contains unknown fields or invalid YAML")

	assert.NotEmpty(t, cfg.Server.URL, "server url should not be empty")
	assert.Equal(t, config.DefaultTokenParam, cfg.Server.TokenParam)
	assert.Equal(t, config.DefaultDriver, cfg.Transport.Driver)
	assert.NotEmpty(t, cfg.Credential.Source, "credential source should not be empty")

	// Verify defaults match config/defaults.go
	assert.Equal(t, config.DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.Equal(t, config.DefaultWriteTimeout, cfg.Transport.WriteTimeout)
	assert.EqualValues(t, config.DefaultReadLimit, cfg.Transport.ReadLimit)
	assert.Equal(t, config.DefaultReconnectMaxAttempts, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, config.DefaultReconnectInitialDelay, cfg.Reconnect.InitialDelay)
	assert.Equal(t, config.DefaultReconnectMaxDelay, cfg.Reconnect.MaxDelay)
	assert.Equal(t, config.DefaultReconnectBackoffMultiplier, cfg.Reconnect.BackoffMultiplier)
	assert.Equal(t, config.DefaultHeartbeatInterval, cfg.Heartbeat.Interval)
	assert.Equal(t, config.DefaultHeartbeatTimeout, cfg.Heartbeat.Timeout)
	assert.Equal(t, config.DefaultMessageQueueSize, cfg.MessageQueue.MaxSize)
	assert.True(t, cfg.Reconnect.IsEnabled())
	assert.True(t, cfg.Heartbeat.IsEnabled())
	assert.True(t, cfg.MessageQueue.IsEnabled())

	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())
}

func TestGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, Generate(path, false))
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	template, err := examples.ClientConfig()
	require.NoError(t, err)
	assert.Equal(t, template, written)

	assert.Error(t, Generate(path, false), "existing file must not be overwritten")
	assert.NoError(t, Generate(path, true))

	loaded, err := config.LoadClientConfig(path)
	require.NoError(t, err)
	assert.NotEmpty(t, loaded.SessionID)
}
