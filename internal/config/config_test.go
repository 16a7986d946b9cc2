package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
	"github.com/Phucdanghoc/File-store-sub000/internal/service"
	"github.com/Phucdanghoc/File-store-sub000/pkg/logger"
)

const defaultMaxFileSize int64 = 50 * 1024 * 1024

var envKeys = []string{
	"PORT", "SERVER_PORT", "MAX_FILE_SIZE", "LOG_LEVEL", "LOG_FORMAT", "SUPABASE_URL", "SUPABASE_ANON_KEY",
	"DATABASE_URL", "REDIS_URL", "GOOGLE_CLOUD_PROJECT", "STORAGE_BACKEND", "CATALOG_BACKEND",
	"JOB_STORE_BACKEND", "QUEUE_BACKEND", "LEDGER_BACKEND", "DEFAULT_BUCKET", "BUCKET_PDF", "BUCKET_ARCHIVE",
	"PRESIGN_TTL", "CRACK_MAX_LENGTH_CEILING", "HEAVY_WORKERS", "QUICK_WORKERS", "JOB_MAX_ATTEMPTS",
	"RECONCILE_SCHEDULE", "AUTH_STATIC_TOKENS", "SUBMIT_RATE", "CORS_ALLOWED_ORIGINS", "CONFIG_FILE",
	"CLAIM_IDLE", "CONSUMER_NAME",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := NewConfig()

	if cfg.GetServerPort() != "8080" {
		t.Fatalf("expected default server port 8080, got %s", cfg.GetServerPort())
	}
	if cfg.GetMaxFileSize() != defaultMaxFileSize {
		t.Fatalf("expected default max file size %d, got %d", defaultMaxFileSize, cfg.GetMaxFileSize())
	}
	if cfg.GetLogLevel() != "info" {
		t.Fatalf("expected default log level info, got %s", cfg.GetLogLevel())
	}
	if cfg.StorageBackend != BackendMemory || cfg.QueueBackend != BackendMemory {
		t.Fatalf("expected memory backends by default, got %s/%s", cfg.StorageBackend, cfg.QueueBackend)
	}
	if cfg.ReconcileSchedule != "@every 5m" {
		t.Fatalf("expected default reconcile schedule, got %s", cfg.ReconcileSchedule)
	}
	if cfg.CrackCeiling != 6 {
		t.Fatalf("expected default crack ceiling 6, got %d", cfg.CrackCeiling)
	}
	if cfg.ClaimIdle != 5*time.Minute {
		t.Fatalf("expected default claim idle 5m, got %s", cfg.ClaimIdle)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestNewConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("MAX_FILE_SIZE", "12345")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("QUEUE_BACKEND", "REDIS")
	t.Setenv("BUCKET_PDF", "pdf-bucket")
	t.Setenv("PRESIGN_TTL", "2m")
	t.Setenv("HEAVY_WORKERS", "3")
	t.Setenv("CLAIM_IDLE", "90s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := NewConfig()

	if cfg.GetServerPort() != "9090" {
		t.Fatalf("expected server port 9090, got %s", cfg.GetServerPort())
	}
	if cfg.GetMaxFileSize() != 12345 {
		t.Fatalf("expected max file size 12345, got %d", cfg.GetMaxFileSize())
	}
	if cfg.GetLogLevel() != "debug" {
		t.Fatalf("expected log level debug, got %s", cfg.GetLogLevel())
	}
	if cfg.QueueBackend != BackendRedis {
		t.Fatalf("expected redis queue backend, got %s", cfg.QueueBackend)
	}
	if cfg.Buckets["pdf"] != "pdf-bucket" {
		t.Fatalf("expected pdf bucket override, got %v", cfg.Buckets)
	}
	if cfg.PresignTTL != 2*time.Minute {
		t.Fatalf("expected presign ttl 2m, got %s", cfg.PresignTTL)
	}
	if cfg.HeavyWorkers != 3 {
		t.Fatalf("expected 3 heavy workers, got %d", cfg.HeavyWorkers)
	}
	if cfg.ClaimIdle != 90*time.Second {
		t.Fatalf("expected claim idle 90s, got %s", cfg.ClaimIdle)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected allowed origins: %v", cfg.AllowedOrigins)
	}
}

func TestNewConfig_Fallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "9091")
	t.Setenv("MAX_FILE_SIZE", "not-a-number")
	t.Setenv("PRESIGN_TTL", "soon")

	cfg := NewConfig()

	if cfg.GetServerPort() != "9091" {
		t.Fatalf("expected server port 9091, got %s", cfg.GetServerPort())
	}
	if cfg.GetMaxFileSize() != defaultMaxFileSize {
		t.Fatalf("expected default max file size %d, got %d", defaultMaxFileSize, cfg.GetMaxFileSize())
	}
	if cfg.PresignTTL != 15*time.Minute {
		t.Fatalf("expected default presign ttl, got %s", cfg.PresignTTL)
	}
}

func TestLoad_YAMLOverlayThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "docflow.yaml")
	yaml := `
server_port: "7000"
default_bucket: files
buckets:
  archive: archives
presign_ttl: 30m
quick_workers: 8
claim_idle: 2m
reconcile_schedule: "*/10 * * * *"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("QUICK_WORKERS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Fatalf("expected port from file, got %s", cfg.ServerPort)
	}
	if cfg.DefaultBucket != "files" || cfg.Buckets["archive"] != "archives" {
		t.Fatalf("unexpected buckets: %s %v", cfg.DefaultBucket, cfg.Buckets)
	}
	if cfg.PresignTTL != 30*time.Minute {
		t.Fatalf("expected presign ttl from file, got %s", cfg.PresignTTL)
	}
	if cfg.QuickWorkers != 2 {
		t.Fatalf("expected env to win over file, got %d", cfg.QuickWorkers)
	}
	if cfg.ClaimIdle != 2*time.Minute {
		t.Fatalf("expected claim idle from file, got %s", cfg.ClaimIdle)
	}
	if cfg.ReconcileSchedule != "*/10 * * * *" {
		t.Fatalf("unexpected schedule %s", cfg.ReconcileSchedule)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown backend":    {"STORAGE_BACKEND": "s3"},
		"postgres no url":    {"CATALOG_BACKEND": "postgres"},
		"redis no url":       {"QUEUE_BACKEND": "redis"},
		"firestore no proj":  {"JOB_STORE_BACKEND": "firestore"},
		"supabase no key":    {"STORAGE_BACKEND": "supabase", "SUPABASE_URL": "http://localhost"},
		"zero crack ceiling": {"CRACK_MAX_LENGTH_CEILING": "0"},
		"tiny claim idle":    {"CLAIM_IDLE": "10ms"},
		"missing file":       {"CONFIG_FILE": "/does/not/exist.yaml"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected Load to fail")
			}
		})
	}
}

func TestNewContainer_Memory(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTH_STATIC_TOKENS", "dev-token:dev-user")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	var buf strings.Builder
	appLogger := logger.New("debug", "json", &buf)

	c, err := NewContainer(context.Background(), cfg, appLogger)
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	defer c.Close(context.Background())

	if c.Coordinator == nil || c.Worker == nil || c.Pool == nil || c.Scheduler == nil {
		t.Fatalf("expected services to be wired")
	}
	user, err := c.AuthService.ValidateToken("dev-token")
	if err != nil || user.ID != "dev-user" {
		t.Fatalf("expected static token to resolve, got %v %v", user, err)
	}
	rec, err := c.Coordinator.Save(context.Background(), service.SaveInput{OwnerID: "dev-user", Filename: "notes.txt", Data: []byte("hello")})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if rec.Category != domain.CategoryFile {
		t.Fatalf("expected file category, got %s", rec.Category)
	}
	if err := c.Migrate(context.Background()); err == nil {
		t.Fatalf("expected migrate to fail without postgres")
	}
	if !strings.Contains(buf.String(), "Backends selected") {
		t.Fatalf("expected backend selection to be logged: %s", buf.String())
	}
}
