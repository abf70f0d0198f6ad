package daemon

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelForDebug(t *testing.T) {
	require.Equal(t, slog.LevelInfo, levelFor(0))
	require.Equal(t, slog.LevelDebug, levelFor(1))
	require.Equal(t, slog.LevelDebug, levelFor(4))
}

func TestNewLoggerForegroundWithoutSyslog(t *testing.T) {
	log, err := NewLogger(true, false, 1)
	require.NoError(t, err)
	require.NotNil(t, log)
}
