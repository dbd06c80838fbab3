package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := LoadConfig(nil)
	require.NoError(t, err)
	c, err := ParseConfig(v)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:8080", c.ListenAddr)
	require.Equal(t, slog.LevelInfo, c.LogLevel)
	require.Equal(t, ":1883", c.MQTT.ListenAddr)
	require.Equal(t, "pda", c.MQTT.TopicRoot)
	require.Equal(t, 500, c.Messenger.MaxMessageLength)
	require.Equal(t, 2*time.Minute, c.Messenger.DedupeWindow)
	require.False(t, c.HasDatabase())
}

func TestFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pda.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listenaddr: ":9000"
loglevel: debug
mqtt:
  topicroot: ss13
messenger:
  dedupewindow: 30s
  stations: [station-a, station-b]
database:
  host: db:5432
  user: pda
  password: "p@ss"
  db: messenger
`), 0o600))

	t.Setenv("PDA_MESSENGER_MAXMESSAGELENGTH", "120")

	fs := Flags()
	require.NoError(t, fs.Parse([]string{"--config", path, "--mqtt-listen", ":2883"}))

	v, err := LoadConfig(fs)
	require.NoError(t, err)
	c, err := ParseConfig(v)
	require.NoError(t, err)

	require.Equal(t, ":9000", c.ListenAddr)
	require.Equal(t, slog.LevelDebug, c.LogLevel)
	require.Equal(t, ":2883", c.MQTT.ListenAddr)
	require.Equal(t, "ss13", c.MQTT.TopicRoot)
	require.Equal(t, 120, c.Messenger.MaxMessageLength)
	require.Equal(t, 30*time.Second, c.Messenger.DedupeWindow)
	require.Equal(t, []string{"station-a", "station-b"}, c.Messenger.Stations)
	require.True(t, c.HasDatabase())
	require.Equal(t, "postgres://pda:p%40ss@db:5432/messenger?sslmode=disable", c.DatabaseDSN())
}

func TestMissingExplicitFile(t *testing.T) {
	fs := Flags()
	require.NoError(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}))
	_, err := LoadConfig(fs)
	require.Error(t, err)
}
