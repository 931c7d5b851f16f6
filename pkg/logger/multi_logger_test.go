package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestMultiLogger(t *testing.T) *MultiLogger {
	t.Helper()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { ml.Close() })
	return ml
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("Download")
	require.NoError(t, err)
	assert.Equal(t, CategoryDownload, c)

	_, err = ParseCategory("queue")
	assert.Error(t, err)
}

func TestNewMultiLogger_RequiresDir(t *testing.T) {
	_, err := NewMultiLogger(MultiLoggerConfig{Level: "info"})
	assert.Error(t, err)
}

func TestMultiLogger_WritesPerCategory(t *testing.T) {
	ml := newTestMultiLogger(t)
	reader := NewLogReader(ml.GetLogsDir())

	ml.LogDownloadEvent("task_succeeded", zap.String("task_id", "t1"), zap.String("package", "Main"))
	ml.LogUpdateEvent("scheduled_run_completed")
	ml.LogAppError("init failed", zap.String("package", "Main"))
	ml.Error().Warn("below the error threshold")
	require.NoError(t, ml.Sync())

	now := time.Now()
	downloads, err := reader.ReadLogs(CategoryDownload, now, 0)
	require.NoError(t, err)
	require.Len(t, downloads, 1)
	assert.Equal(t, "task_succeeded", downloads[0].Message)
	assert.Equal(t, "download", downloads[0].Category)
	assert.Equal(t, "t1", downloads[0].Fields["task_id"])

	updates, err := reader.ReadLogs(CategoryUpdate, now, 0)
	require.NoError(t, err)
	require.Len(t, updates, 1)

	errs, err := reader.ReadLogs(CategoryError, now, 0)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "error", errs[0].Level)
}

func TestMultiLogger_RotatesOnDateChange(t *testing.T) {
	ml := newTestMultiLogger(t)
	tomorrow := time.Now().Add(24 * time.Hour)

	ml.LogDownloadEvent("today")
	ml.now = func() time.Time { return tomorrow }
	ml.LogDownloadEvent("tomorrow")
	require.NoError(t, ml.Sync())

	reader := NewLogReader(ml.GetLogsDir())
	entries, err := reader.ReadLogs(CategoryDownload, tomorrow, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tomorrow", entries[0].Message)

	_, err = os.Stat(filepath.Join(ml.GetLogsDir(), "download-"+tomorrow.Format(dateLayout)+".log"))
	assert.NoError(t, err)
}

func TestMultiLogger_Tee(t *testing.T) {
	ml := newTestMultiLogger(t)
	core, observed := observer.New(zapcore.InfoLevel)

	log := ml.Tee(zap.New(core), CategoryUpdate).With(zap.String("package", "Main"))
	log.Info("Update run started")
	log.Debug("not enabled")
	require.NoError(t, ml.Sync())

	assert.Equal(t, 1, observed.Len())

	entries, err := NewLogReader(ml.GetLogsDir()).ReadLogs(CategoryUpdate, time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Update run started", entries[0].Message)
	assert.Equal(t, "Main", entries[0].Fields["package"])
}

func TestMultiLogger_ClosedLoggerFallsBackToNop(t *testing.T) {
	ml := newTestMultiLogger(t)
	require.NoError(t, ml.Close())

	assert.NotPanics(t, func() {
		ml.LogAppError("after close")
	})
}
