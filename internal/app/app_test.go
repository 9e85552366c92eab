package app

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.LoadConfig()
	dir := t.TempDir()
	cfg.StoreDriver = "sqlite"
	cfg.SQLitePath = filepath.Join(dir, "schedule.db")
	cfg.OfflineQueuePath = filepath.Join(dir, "offline.db")
	cfg.RedisURI = ""
	cfg.R2 = config.R2{}
	cfg.SecretKey = "0123456789abcdef"
	return cfg
}

func TestNewWiresSQLiteStack(t *testing.T) {
	a, err := New(context.Background(), sqliteConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Nil(t, a.AsynqClient)
	assert.True(t, a.DB.Online(context.Background()))

	url, err := a.Watermarks.Resolve(context.Background(), "page-1")
	require.NoError(t, err)
	assert.Empty(t, url)

	upcoming, err := a.Scheduler.ListUpcoming(context.Background(), []string{"page-1"})
	require.NoError(t, err)
	assert.Empty(t, upcoming)

	report, err := a.Publisher.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Published)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.SecretKey = "short"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", "kind", service.ErrorKind(service.ErrAuthExpired))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "auth_expired", line["kind"])
}
