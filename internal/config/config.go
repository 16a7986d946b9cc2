package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by the *_BACKEND settings.
const (
	BackendMemory    = "memory"
	BackendSupabase  = "supabase"
	BackendGCS       = "gcs"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendRedis     = "redis"
)

// AppConfig implements the domain.Config interface
type AppConfig struct {
	ServerPort  string `yaml:"server_port"`
	MaxFileSize int64  `yaml:"max_file_size"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	SupabaseURL string `yaml:"supabase_url"`
	SupabaseKey string `yaml:"supabase_key"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	GCPProject  string `yaml:"gcp_project"`

	StorageBackend  string `yaml:"storage_backend"`
	CatalogBackend  string `yaml:"catalog_backend"`
	JobStoreBackend string `yaml:"job_store_backend"`
	QueueBackend    string `yaml:"queue_backend"`
	LedgerBackend   string `yaml:"ledger_backend"`

	// DefaultBucket receives every category without its own entry in Buckets.
	DefaultBucket string            `yaml:"default_bucket"`
	Buckets       map[string]string `yaml:"buckets"`
	PresignTTL    time.Duration     `yaml:"presign_ttl"`

	CrackCeiling        int    `yaml:"crack_max_length_ceiling"`
	CrackDefaultCharset string `yaml:"crack_default_charset"`

	HeavyWorkers   int    `yaml:"heavy_workers"`
	QuickWorkers   int    `yaml:"quick_workers"`
	JobMaxAttempts int    `yaml:"job_max_attempts"`
	ConsumerName   string `yaml:"consumer_name"`
	// ClaimIdle is both the queue's reclaim threshold for unacknowledged
	// messages and the lease a worker holds on a running job.
	ClaimIdle time.Duration `yaml:"claim_idle"`

	ReconcileSchedule string        `yaml:"reconcile_schedule"`
	ReconcileBatch    int           `yaml:"reconcile_batch"`
	TaskTimeout       time.Duration `yaml:"task_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	AuthStaticTokens string   `yaml:"auth_static_tokens"`
	SubmitRate       float64  `yaml:"submit_rate"`
	SubmitBurst      int      `yaml:"submit_burst"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
}

func defaults() *AppConfig {
	return &AppConfig{
		ServerPort:          "8080",
		MaxFileSize:         50 * 1024 * 1024, // 50MB default
		LogLevel:            "info",
		LogFormat:           "console",
		StorageBackend:      BackendMemory,
		CatalogBackend:      BackendMemory,
		JobStoreBackend:     BackendMemory,
		QueueBackend:        BackendMemory,
		LedgerBackend:       BackendMemory,
		DefaultBucket:       "documents",
		Buckets:             map[string]string{},
		PresignTTL:          15 * time.Minute,
		CrackCeiling:        6,
		CrackDefaultCharset: "abcdefghijklmnopqrstuvwxyz0123456789",
		QuickWorkers:        4,
		JobMaxAttempts:      5,
		ClaimIdle:           5 * time.Minute,
		ReconcileSchedule:   "@every 5m",
		ReconcileBatch:      100,
		TaskTimeout:         time.Minute,
		ShutdownTimeout:     30 * time.Second,
		SubmitRate:          2,
		SubmitBurst:         10,
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://localhost:3000",
		},
	}
}

// NewConfig creates a configuration from defaults and environment variables.
func NewConfig() *AppConfig {
	c := defaults()
	c.applyEnv()
	return c
}

// Load reads the optional YAML file named by CONFIG_FILE, applies environment
// overrides on top and validates the result.
func Load() (*AppConfig, error) {
	c := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, c); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if c.Buckets == nil {
			c.Buckets = map[string]string{}
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *AppConfig) applyEnv() {
	// Cloud Run (and many PaaS) provide the listening port via PORT.
	// Keep SERVER_PORT for local/dev compatibility.
	c.ServerPort = getEnvOrDefault("PORT", getEnvOrDefault("SERVER_PORT", c.ServerPort))
	c.MaxFileSize = getEnvInt64OrDefault("MAX_FILE_SIZE", c.MaxFileSize)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvOrDefault("LOG_FORMAT", c.LogFormat)

	c.SupabaseURL = getEnvOrDefault("SUPABASE_URL", c.SupabaseURL)
	c.SupabaseKey = getEnvOrDefault("SUPABASE_ANON_KEY", c.SupabaseKey)
	c.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getEnvOrDefault("REDIS_URL", c.RedisURL)
	c.GCPProject = getEnvOrDefault("GOOGLE_CLOUD_PROJECT", c.GCPProject)

	c.StorageBackend = strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", c.StorageBackend))
	c.CatalogBackend = strings.ToLower(getEnvOrDefault("CATALOG_BACKEND", c.CatalogBackend))
	c.JobStoreBackend = strings.ToLower(getEnvOrDefault("JOB_STORE_BACKEND", c.JobStoreBackend))
	c.QueueBackend = strings.ToLower(getEnvOrDefault("QUEUE_BACKEND", c.QueueBackend))
	c.LedgerBackend = strings.ToLower(getEnvOrDefault("LEDGER_BACKEND", c.LedgerBackend))

	c.DefaultBucket = getEnvOrDefault("DEFAULT_BUCKET", c.DefaultBucket)
	for _, cat := range domain.Categories {
		key := "BUCKET_" + strings.ToUpper(string(cat))
		if v := os.Getenv(key); v != "" {
			c.Buckets[string(cat)] = v
		}
	}
	c.PresignTTL = getEnvDurationOrDefault("PRESIGN_TTL", c.PresignTTL)

	c.CrackCeiling = getEnvIntOrDefault("CRACK_MAX_LENGTH_CEILING", c.CrackCeiling)
	c.CrackDefaultCharset = getEnvOrDefault("CRACK_DEFAULT_CHARSET", c.CrackDefaultCharset)

	c.HeavyWorkers = getEnvIntOrDefault("HEAVY_WORKERS", c.HeavyWorkers)
	c.QuickWorkers = getEnvIntOrDefault("QUICK_WORKERS", c.QuickWorkers)
	c.JobMaxAttempts = getEnvIntOrDefault("JOB_MAX_ATTEMPTS", c.JobMaxAttempts)
	c.ConsumerName = getEnvOrDefault("CONSUMER_NAME", c.ConsumerName)
	c.ClaimIdle = getEnvDurationOrDefault("CLAIM_IDLE", c.ClaimIdle)

	c.ReconcileSchedule = getEnvOrDefault("RECONCILE_SCHEDULE", c.ReconcileSchedule)
	c.ReconcileBatch = getEnvIntOrDefault("RECONCILE_BATCH", c.ReconcileBatch)
	c.TaskTimeout = getEnvDurationOrDefault("TASK_TIMEOUT", c.TaskTimeout)
	c.ShutdownTimeout = getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.AuthStaticTokens = getEnvOrDefault("AUTH_STATIC_TOKENS", c.AuthStaticTokens)
	c.SubmitRate = getEnvFloatOrDefault("SUBMIT_RATE", c.SubmitRate)
	c.SubmitBurst = getEnvIntOrDefault("SUBMIT_BURST", c.SubmitBurst)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
}

// Validate rejects unknown backends and missing connection settings.
func (c *AppConfig) Validate() error {
	check := func(setting, value string, allowed ...string) error {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return fmt.Errorf("%s: unknown backend %q (want one of %s)", setting, value, strings.Join(allowed, ", "))
	}
	for _, err := range []error{
		check("STORAGE_BACKEND", c.StorageBackend, BackendMemory, BackendSupabase, BackendGCS),
		check("CATALOG_BACKEND", c.CatalogBackend, BackendMemory, BackendSupabase, BackendPostgres),
		check("JOB_STORE_BACKEND", c.JobStoreBackend, BackendMemory, BackendPostgres, BackendFirestore),
		check("QUEUE_BACKEND", c.QueueBackend, BackendMemory, BackendRedis),
		check("LEDGER_BACKEND", c.LedgerBackend, BackendMemory, BackendRedis),
	} {
		if err != nil {
			return err
		}
	}
	if c.uses(BackendPostgres) && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}
	if c.uses(BackendRedis) && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for the redis backend")
	}
	if c.uses(BackendFirestore) && c.GCPProject == "" {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the firestore backend")
	}
	if c.uses(BackendSupabase) && (c.SupabaseURL == "" || c.SupabaseKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY are required for the supabase backend")
	}
	if c.DefaultBucket == "" {
		return fmt.Errorf("DEFAULT_BUCKET must not be empty")
	}
	for name := range c.Buckets {
		if !domain.Category(name).Valid() {
			return fmt.Errorf("bucket configured for unknown category %q", name)
		}
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if c.CrackCeiling < 1 {
		return fmt.Errorf("CRACK_MAX_LENGTH_CEILING must be at least 1")
	}
	if c.QuickWorkers < 0 || c.HeavyWorkers < 0 {
		return fmt.Errorf("worker counts must not be negative")
	}
	if c.ClaimIdle < time.Second {
		return fmt.Errorf("CLAIM_IDLE must be at least 1s")
	}
	return nil
}

// uses reports whether any backend setting selects backend.
func (c *AppConfig) uses(backend string) bool {
	for _, b := range []string{c.StorageBackend, c.CatalogBackend, c.JobStoreBackend, c.QueueBackend, c.LedgerBackend} {
		if b == backend {
			return true
		}
	}
	return false
}

// GetServerPort returns the server port
func (c *AppConfig) GetServerPort() string {
	return c.ServerPort
}

// GetMaxFileSize returns the maximum allowed file size
func (c *AppConfig) GetMaxFileSize() int64 {
	return c.MaxFileSize
}

// GetLogLevel returns the logging level
func (c *AppConfig) GetLogLevel() string {
	return c.LogLevel
}

// GetSupabaseURL returns the Supabase URL
func (c *AppConfig) GetSupabaseURL() string {
	return c.SupabaseURL
}

// GetSupabaseKey returns the Supabase anon key
func (c *AppConfig) GetSupabaseKey() string {
	return c.SupabaseKey
}

// Helper functions for environment variable handling
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	return int(getEnvInt64OrDefault(key, int64(defaultValue)))
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
