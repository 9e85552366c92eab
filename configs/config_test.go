package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("MIN_LEAD_TIME", "")
	t.Setenv("MAX_RETRIES", "")

	cfg := LoadConfig()
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 20*time.Minute, cfg.Scheduling.MinLeadTime)
	assert.Equal(t, 5, cfg.Scheduling.BatchSize)
	assert.Equal(t, 300*time.Second, cfg.Scheduling.ProcessingLeaseTTL)
	assert.Equal(t, 3, cfg.Scheduling.MaxRetries)
	assert.Equal(t, "https://graph.facebook.com/v18.0", cfg.GraphAPIBaseURL)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("RECONCILE_INTERVAL", "90")
	t.Setenv("PUBLISH_TIMEOUT", "2m")
	t.Setenv("BATCH_SIZE", "7")
	t.Setenv("GRAPH_API_BASE_URL", "http://localhost:9999/")

	cfg := LoadConfig()
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, 90*time.Second, cfg.Scheduling.ReconcileInterval)
	assert.Equal(t, 2*time.Minute, cfg.Scheduling.PublishTimeout)
	assert.Equal(t, 7, cfg.Scheduling.BatchSize)
	assert.Equal(t, "http://localhost:9999", cfg.GraphAPIBaseURL)
}

func TestValidate(t *testing.T) {
	cfg := LoadConfig()
	cfg.StoreDriver = "sqlite"
	cfg.SQLitePath = "x.db"
	cfg.SecretKey = ""
	require.NoError(t, cfg.Validate())

	cfg.SecretKey = "short"
	require.Error(t, cfg.Validate())

	cfg.SecretKey = "0123456789abcdef"
	cfg.StoreDriver = "mongo"
	require.Error(t, cfg.Validate())

	cfg.StoreDriver = "postgres"
	cfg.PostgresURI = ""
	require.Error(t, cfg.Validate())
}

func TestValidateTimings(t *testing.T) {
	valid := func() *Config {
		cfg := LoadConfig()
		cfg.StoreDriver = "sqlite"
		cfg.SQLitePath = "x.db"
		cfg.SecretKey = ""
		cfg.Scheduling.MinLeadTime = ProviderMinLeadTime
		cfg.Scheduling.PublishTimeout = 30 * time.Second
		cfg.Scheduling.ProcessingLeaseTTL = 300 * time.Second
		return cfg
	}
	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Scheduling.PublishTimeout = cfg.Scheduling.ProcessingLeaseTTL
	assert.ErrorContains(t, cfg.Validate(), "PUBLISH_TIMEOUT")

	cfg = valid()
	cfg.Scheduling.PublishTimeout = 10 * time.Minute
	assert.Error(t, cfg.Validate(), "a publish call must not outlive its lease")

	cfg = valid()
	cfg.Scheduling.MinLeadTime = 10 * time.Minute
	assert.ErrorContains(t, cfg.Validate(), "MIN_LEAD_TIME")

	cfg = valid()
	cfg.Scheduling.MinLeadTime = time.Hour
	assert.NoError(t, cfg.Validate())
}
