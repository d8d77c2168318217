package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	SetConfigDir(dir)
	defer SetConfigDir("")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultDenyList, cfg.DenyList())
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	SetConfigDir(dir)
	defer SetConfigDir("")

	cfg := &Config{Baud: 921600, ProtectDeny: []string{"gpt*", "custom*"}}
	require.NoError(t, Save(cfg))
	assert.FileExists(t, filepath.Join(dir, "config.toml"))

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 921600, loaded.Baud)
	assert.Equal(t, []string{"gpt*", "custom*"}, loaded.DenyList())
}

func TestTimeoutsDefaults(t *testing.T) {
	cfg := &Config{}
	handshake, command, bulk := cfg.Timeouts()
	assert.Equal(t, 30*time.Second, handshake)
	assert.Equal(t, 5*time.Second, command)
	assert.Equal(t, 30*time.Second, bulk)
}

func TestBaudOrDefault(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 115200, cfg.BaudOrDefault(115200))

	cfg.Baud = 921600
	assert.Equal(t, 921600, cfg.BaudOrDefault(115200))
}
