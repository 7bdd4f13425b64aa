package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesToFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, Init(dir))

	InfoLog.Info("hello info")
	ErrorLog.Error("hello error")
	require.NoError(t, Cleanup())

	info, err := os.ReadFile(filepath.Join(dir, "info.log"))
	require.NoError(t, err)
	assert.Contains(t, string(info), "hello info")
	assert.Contains(t, string(info), "Logger initialized")

	errs, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errs), "hello error")
	assert.NotContains(t, string(errs), "hello info")
}

func TestEntryFromContext(t *testing.T) {
	e := logrus.NewEntry(InfoLog).WithField("request_id", "abc")
	ctx := WithLogEntry(context.Background(), e)
	assert.Same(t, e, Entry(ctx))

	fallback := Entry(context.Background())
	require.NotNil(t, fallback)
	assert.Same(t, InfoLog, fallback.Logger)
}
