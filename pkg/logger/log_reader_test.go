package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
}

func TestLogReader_MissingFile(t *testing.T) {
	reader := NewLogReader(t.TempDir())

	entries, err := reader.ReadLogs(CategoryUpdate, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLogReader_KeepsLastEntries(t *testing.T) {
	reader := NewLogReader(t.TempDir())
	now := time.Now()
	writeLines(t, reader.GetLogPath(CategoryDownload, now),
		`{"timestamp":"t1","level":"info","message":"one"}`,
		`{"timestamp":"t2","level":"info","message":"two"}`,
		`plain text line`,
	)

	entries, err := reader.ReadLogs(CategoryDownload, now, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].Message)
	assert.Equal(t, "plain text line", entries[1].Message)
	assert.Equal(t, "info", entries[1].Level)
	assert.Equal(t, "download", entries[1].Category)
}

func TestLogReader_Query(t *testing.T) {
	reader := NewLogReader(t.TempDir())
	now := time.Now()
	writeLines(t, reader.GetLogPath(CategoryDownload, now),
		`{"level":"info","message":"task_running","package":"Main","task_id":"a"}`,
		`{"level":"info","message":"file_failed","package":"Main","task_id":"a","file":"logo.bundle"}`,
		`{"level":"info","message":"task_running","package":"Patch","task_id":"b"}`,
		`{"level":"warn","message":"slow transfer","package":"Patch","task_id":"b"}`,
	)

	tests := []struct {
		name     string
		filter   LogFilter
		messages []string
	}{
		{"all", LogFilter{}, []string{"task_running", "file_failed", "task_running", "slow transfer"}},
		{"package", LogFilter{Package: "Patch"}, []string{"task_running", "slow transfer"}},
		{"task", LogFilter{TaskID: "a"}, []string{"task_running", "file_failed"}},
		{"level", LogFilter{Level: "WARN"}, []string{"slow transfer"}},
		{"text in fields", LogFilter{Text: "LOGO.bundle"}, []string{"file_failed"}},
		{"combined", LogFilter{Package: "Main", Text: "running"}, []string{"task_running"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := reader.Query(CategoryDownload, now, tt.filter, 0)
			require.NoError(t, err)
			var got []string
			for _, e := range entries {
				got = append(got, e.Message)
			}
			assert.Equal(t, tt.messages, got)
		})
	}
}

func TestLogReader_TailLogs(t *testing.T) {
	dir := t.TempDir()
	reader := NewLogReader(dir)
	reader.pollInterval = 5 * time.Millisecond
	path := reader.GetLogPath(CategoryError, time.Now())
	writeLines(t, path, `{"level":"error","message":"old"}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- reader.TailLogs(ctx, CategoryError, entries) }()

	// give the tail time to seek past the existing line
	time.Sleep(50 * time.Millisecond)
	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"level":"error","message":"new"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case e := <-entries:
		assert.Equal(t, "new", e.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("tailed entry not received")
	}

	cancel()
	assert.NoError(t, <-done)
}
