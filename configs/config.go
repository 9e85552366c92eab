package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

// Configured reports whether watermark storage can be reached.
func (r R2) Configured() bool {
	return r.AccountID != "" && r.AccessKey != "" && r.SecretKey != "" && r.BucketName != ""
}

// ProviderMinLeadTime is the earliest the Graph API accepts a scheduled post.
const ProviderMinLeadTime = 20 * time.Minute

// Scheduling holds the timing knobs shared by the scheduler and the reconciler.
type Scheduling struct {
	MinLeadTime        time.Duration
	BatchSize          int
	BatchDelay         time.Duration
	PublishTimeout     time.Duration
	ReconcileInterval  time.Duration
	ProcessingLeaseTTL time.Duration
	MaxRetries         int
	DrainInterval      time.Duration
}

type Config struct {
	StoreDriver      string
	PostgresURI      string
	SQLitePath       string
	OfflineQueuePath string
	RedisURI         string
	GraphAPIBaseURL  string
	ListenAddr       string
	FrontendURL      string
	LockPath         string
	LogLevel         string
	R2               R2
	Scheduling       Scheduling
	SecretKey        string
	CookieName       string
}

func LoadConfig() *Config {
	return &Config{
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		PostgresURI:      getEnv("POSTGRES_URI", ""),
		SQLitePath:       getEnv("SQLITE_PATH", "postflow.db"),
		OfflineQueuePath: getEnv("OFFLINE_QUEUE_PATH", "postflow-offline.db"),
		RedisURI:         getEnv("REDIS_URI", ""),
		GraphAPIBaseURL:  strings.TrimRight(getEnv("GRAPH_API_BASE_URL", "https://graph.facebook.com/v18.0"), "/"),
		ListenAddr:       getEnv("LISTEN_ADDR", ":8000"),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:5173"),
		LockPath:         getEnv("LOCK_PATH", "postflow-reconciler.lock"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  strings.TrimRight(getEnv("R2_PUBLIC_URL", ""), "/"),
		},
		Scheduling: Scheduling{
			MinLeadTime:        getEnvDuration("MIN_LEAD_TIME", ProviderMinLeadTime),
			BatchSize:          getEnvInt("BATCH_SIZE", 5),
			BatchDelay:         getEnvDuration("BATCH_DELAY", time.Second),
			PublishTimeout:     getEnvDuration("PUBLISH_TIMEOUT", 30*time.Second),
			ReconcileInterval:  getEnvDuration("RECONCILE_INTERVAL", 60*time.Second),
			ProcessingLeaseTTL: getEnvDuration("PROCESSING_LEASE_TTL", 300*time.Second),
			MaxRetries:         getEnvInt("MAX_RETRIES", 3),
			DrainInterval:      getEnvDuration("OFFLINE_DRAIN_INTERVAL", 15*time.Second),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "postflow_token"),
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.PostgresURI == "" {
			return fmt.Errorf("POSTGRES_URI is required when STORE_DRIVER=postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	switch len(c.SecretKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("SECRET_KEY must be 16, 24 or 32 bytes, got %d", len(c.SecretKey))
	}

	s := c.Scheduling
	if s.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be positive")
	}
	if s.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be positive")
	}
	if s.ReconcileInterval <= 0 || s.ProcessingLeaseTTL <= 0 || s.PublishTimeout <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL, PROCESSING_LEASE_TTL and PUBLISH_TIMEOUT must be positive")
	}
	if s.PublishTimeout >= s.ProcessingLeaseTTL {
		return fmt.Errorf("PUBLISH_TIMEOUT (%s) must be shorter than PROCESSING_LEASE_TTL (%s)", s.PublishTimeout, s.ProcessingLeaseTTL)
	}
	if s.MinLeadTime < ProviderMinLeadTime {
		return fmt.Errorf("MIN_LEAD_TIME (%s) is below the provider minimum of %s", s.MinLeadTime, ProviderMinLeadTime)
	}
	return nil
}

// StoreDSN returns the data source name for the configured driver.
func (c *Config) StoreDSN() string {
	if c.StoreDriver == "sqlite" {
		return c.SQLitePath
	}
	return c.PostgresURI
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// bare numbers are seconds
	if n, err := cast.ToInt64E(value); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := cast.ToDurationE(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := cast.ToIntE(value)
	if err != nil {
		return defaultValue
	}
	return n
}
