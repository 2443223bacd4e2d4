package logger

import (
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestPrepareLogger(t *testing.T) {
	t.Cleanup(func() {
		log.SetLevel(log.WarnLevel)
		log.SetFormatter(&log.TextFormatter{})
	})

	t.Run("level", func(t *testing.T) {
		require.NoError(t, PrepareLogger(Config{Level: "DEBUG"}))
		require.Equal(t, log.DebugLevel, log.GetLevel())

		require.NoError(t, PrepareLogger(Config{}))
		require.Equal(t, log.WarnLevel, log.GetLevel())
	})

	t.Run("json format", func(t *testing.T) {
		require.NoError(t, PrepareLogger(Config{Level: "INFO", Format: "json"}))
		_, ok := log.StandardLogger().Formatter.(*log.JSONFormatter)
		require.True(t, ok)
	})

	t.Run("file output", func(t *testing.T) {
		require.NoError(t, PrepareLogger(Config{Level: "INFO", Output: filepath.Join(t.TempDir(), "out.log")}))
		require.NoError(t, PrepareLogger(Config{Level: "INFO", Output: "stdout"}))
	})

	t.Run("errors", func(t *testing.T) {
		require.Error(t, PrepareLogger(Config{Level: "LOUD"}))
		require.ErrorIs(t, PrepareLogger(Config{Level: "INFO", Format: "xml"}), ErrUnknownFormat)
	})
}
