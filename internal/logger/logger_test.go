package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trakn-sync-service/internal/config"
)

func TestInitLogger_File(t *testing.T) {
	t.Cleanup(func() { Log = zap.NewNop() })

	path := filepath.Join(t.TempDir(), "sync.log")
	require.NoError(t, InitLogger(config.LoggingConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1}))

	Log.Info("drain pass completed")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "drain pass completed")
}

func TestInitLogger_Invalid(t *testing.T) {
	t.Cleanup(func() { Log = zap.NewNop() })

	assert.Error(t, InitLogger(config.LoggingConfig{Level: "loud"}))
	assert.Error(t, InitLogger(config.LoggingConfig{Level: "info", Format: "xml"}))
}
