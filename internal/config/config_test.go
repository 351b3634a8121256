package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Sync.GetOperationTimeout())
	assert.Equal(t, "@every 30s", cfg.Scheduler.Interval)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Contains(t, cfg.Sync.TableNames(), "workouts")
	assert.Equal(t, "trakn.db", cfg.Local.FilePath)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
remote:
  host: db.internal
  port: 3307
  database: trakn
local:
  file_path: /tmp/queue.db
sync:
  max_retries: 3
  operation_timeout: 2s
  tables:
    - name: workouts
    - name: sessions
      primary_key: session_id
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("TRAKN_SERVER_PORT", "9999")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Remote.Host)
	assert.Equal(t, 3307, cfg.Remote.Port)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Sync.GetOperationTimeout())
	require.Len(t, cfg.Sync.Tables, 2)
	assert.Equal(t, "id", cfg.Sync.Tables[0].PrimaryKey)
	assert.Equal(t, "session_id", cfg.Sync.Tables[1].PrimaryKey)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Sync: SyncConfig{MaxRetries: 1}}
	assert.Error(t, cfg.Validate())

	cfg.Local.FilePath = "q.db"
	cfg.Sync.MaxRetries = -1
	assert.Error(t, cfg.Validate())

	cfg.Sync.MaxRetries = 5
	cfg.Sync.Tables = []TableConfig{{Name: ""}}
	assert.Error(t, cfg.Validate())
}
