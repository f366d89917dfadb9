package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLog(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func TestLogger_WritesPerLevelFiles(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)

	l.Info("hello %d", 1)
	l.Warning("careful %s", "now")
	l.Error("broken")

	assert.Contains(t, readLog(t, dir, InfoFile), "hello 1")
	assert.Contains(t, readLog(t, dir, WarningFile), "careful now")
	assert.Contains(t, readLog(t, dir, ErrorFile), "broken")
	assert.NotContains(t, readLog(t, dir, InfoFile), "broken")
}

func TestLogger_WithPrefix(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)

	l.With("[lane=animal]").With("[run=abc]").Info("started")

	assert.Contains(t, readLog(t, dir, InfoFile), "[lane=animal] [run=abc] started")
}

func TestLogger_CleanLogs(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)

	l.Warning("to be removed")
	require.NoError(t, l.CleanLogs(WarningFile))
	assert.Empty(t, readLog(t, dir, WarningFile))

	assert.Error(t, l.CleanLogs("../secret"))
}
