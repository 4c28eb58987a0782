package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "0 0 8 * * *", cfg.Scheduler.SweepCron)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "admin", cfg.Auth.AdminUsername)
	assert.Empty(t, cfg.Auth.AdminPassword)
	assert.Equal(t, time.UTC, cfg.Location())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
alert:
  slack:
    channel: "#compliance"
scheduler:
  timezone: America/Bogota
digest:
  recipients: [boss@example.com]
`), 0644))
	t.Setenv("REPORTTRACK_DATABASE_DRIVER", "postgres")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "#compliance", cfg.Alert.Slack.Channel)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, []string{"boss@example.com"}, cfg.Digest.Recipients)
	assert.Equal(t, "America/Bogota", cfg.Scheduler.Timezone)
}
