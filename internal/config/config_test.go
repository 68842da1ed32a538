// ABOUTME: Tests for configuration loading, env expansion, and validation
// ABOUTME: Covers defaults, duration parsing, and required-field errors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Complete(t *testing.T) {
	path := writeConfig(t, `
session:
  endpoint: wss://engine.example.com/v1/session
  send_queue_size: 64
  reconnect_base: 500ms
  reconnect_cap: 10s
  auth_timeout: 5s
auth:
  secret: super-secret
  subject: desk-1
  token_ttl: 90s
database:
  path: /tmp/conversations.db
routing:
  default_mode: single
  rules_path: /etc/pulsedesk/rules.toml
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://engine.example.com/v1/session", cfg.Session.Endpoint)
	assert.Equal(t, 64, cfg.Session.SendQueueSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.ReconnectBase)
	assert.Equal(t, 10*time.Second, cfg.Session.ReconnectCap)
	assert.Equal(t, 5*time.Second, cfg.Session.AuthTimeout)
	assert.Equal(t, 90*time.Second, cfg.Auth.TokenTTL)
	assert.Equal(t, "single", cfg.Routing.DefaultMode)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
session:
  endpoint: wss://engine.example.com/v1/session
auth:
  secret: s
database:
  path: /tmp/c.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultSendQueueSize, cfg.Session.SendQueueSize)
	assert.Equal(t, DefaultReconnectBase, cfg.Session.ReconnectBase)
	assert.Equal(t, DefaultReconnectCap, cfg.Session.ReconnectCap)
	assert.Equal(t, DefaultAuthTimeout, cfg.Session.AuthTimeout)
	assert.Equal(t, DefaultTokenTTL, cfg.Auth.TokenTTL)
	assert.Equal(t, "auto", cfg.Routing.DefaultMode)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("PULSEDESK_SECRET", "from-env")
	path := writeConfig(t, `
session:
  endpoint: wss://engine.example.com/v1/session
auth:
  secret: ${PULSEDESK_SECRET}
database:
  path: /tmp/c.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
session:
  endpoint: wss://e
  reconnect_base: soon
auth:
  secret: s
database:
  path: /tmp/c.db
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconnect_base")
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no endpoint",
			content: "auth:\n  secret: s\ndatabase:\n  path: /tmp/c.db\n",
			wantErr: "session.endpoint",
		},
		{
			name:    "no secret",
			content: "session:\n  endpoint: wss://e\ndatabase:\n  path: /tmp/c.db\n",
			wantErr: "auth.secret",
		},
		{
			name:    "no database path",
			content: "session:\n  endpoint: wss://e\nauth:\n  secret: s\n",
			wantErr: "database.path",
		},
		{
			name:    "bad routing mode",
			content: "session:\n  endpoint: wss://e\nauth:\n  secret: s\ndatabase:\n  path: /tmp/c.db\nrouting:\n  default_mode: broadcast\n",
			wantErr: "routing.default_mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
