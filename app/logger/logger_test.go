package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/amirphl/medipay/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("file output is rotated by lumberjack", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.log")
		log, err := NewLogger(config.LoggingConfig{Level: "debug", Output: "file", FilePath: path, MaxSize: 1})
		require.NoError(t, err)

		log.Info("order_created")
		_ = log.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"message":"order_created"`)
		assert.Contains(t, string(data), `"level":"info"`)
	})

	t.Run("level gates output", func(t *testing.T) {
		log, err := NewLogger(config.LoggingConfig{Level: "warn"})
		require.NoError(t, err)
		assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, log.Core().Enabled(zapcore.ErrorLevel))
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := NewLogger(config.LoggingConfig{Level: "trace"})
		assert.Error(t, err)
	})

	t.Run("rejects unknown output", func(t *testing.T) {
		_, err := NewLogger(config.LoggingConfig{Level: "info", Output: "syslog"})
		assert.Error(t, err)
	})
}
