package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ancs-blue/session"
	"github.com/user/ancs-blue/wire/ancs"
)

func TestDefaultMatchesSessionDefaults(t *testing.T) {
	cfg, err := Default().SessionConfig()
	require.NoError(t, err)
	assert.Equal(t, session.DefaultConfig(), cfg)
}

func TestParseOverridesOnlyGivenKeys(t *testing.T) {
	cfg, err := Parse([]byte(`
session:
  attributes: [appidentifier, Title, Subtitle, Message, Date]
  max_message_length: 512
  request_timeout: 3s
  fetch_app_names: true
log:
  level: debug
  json: true
event_log: /tmp/events.cbor
`))
	require.NoError(t, err)

	sc, err := cfg.SessionConfig()
	require.NoError(t, err)
	assert.Equal(t, []ancs.AttributeID{
		ancs.AttrAppIdentifier, ancs.AttrTitle, ancs.AttrSubtitle, ancs.AttrMessage, ancs.AttrDate,
	}, sc.DefaultAttributes)
	assert.Equal(t, uint16(512), sc.MaxMessageLength)
	assert.Equal(t, uint16(255), sc.MaxTitleLength)
	assert.Equal(t, 3*time.Second, sc.RequestTimeout)
	assert.Equal(t, 200*time.Millisecond, sc.SettleDelay)
	assert.True(t, sc.FetchAppNames)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "/tmp/events.cbor", cfg.EventLog)
	assert.Equal(t, "hci0", cfg.Adapter)
}

func TestParseErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"bad duration":      "session:\n  request_timeout: soon\n",
		"unknown attribute": "session:\n  attributes: [Title, Colour]\n",
		"zero timeout":      "session:\n  request_timeout: 0s\n",
		"not yaml":          "session: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			var le *LoadError
			assert.ErrorAs(t, err, &le)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  max_retries: nope\n"), 0644))
	_, err = Load(path)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, path, le.File)
}
