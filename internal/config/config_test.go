package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bookingsync/internal/models"
)

func TestLoadConfig(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("TEST_SUBJECT_ID", "student-42")

	yamlContent := `
viewer:
  subject_id: "${TEST_SUBJECT_ID}"
  role: initiator
database:
  path: "test.db"
cache:
  ttl: 90s
sync:
  replay_rps: 5
  retry:
    max_retries: 3
    initial_delay: 2s
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Viewer.SubjectID != "student-42" {
		t.Errorf("expected subject_id from env, got %s", cfg.Viewer.SubjectID)
	}
	if cfg.Cache.TTL != 90*time.Second {
		t.Errorf("expected cache ttl 90s, got %s", cfg.Cache.TTL)
	}
	if cfg.Sync.Retry.InitialDelay != 2*time.Second {
		t.Errorf("expected retry initial delay 2s, got %s", cfg.Sync.Retry.InitialDelay)
	}
	if cfg.Queue.Backend != "sqlite" {
		t.Errorf("expected default queue backend sqlite, got %s", cfg.Queue.Backend)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		cfg := Config{
			Viewer:   ViewerConfig{SubjectID: "s1", Role: "recipient"},
			Database: DatabaseConfig{Path: "path"},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}, wantErr: false},
		{name: "missing subject", mutate: func(c *Config) { c.Viewer.SubjectID = "" }, wantErr: true},
		{name: "bad role", mutate: func(c *Config) { c.Viewer.Role = "owner" }, wantErr: true},
		{name: "missing database", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "redis backend without address", mutate: func(c *Config) { c.Queue.Backend = "redis" }, wantErr: true},
		{name: "failover backend with address", mutate: func(c *Config) {
			c.Queue.Backend = "failover"
			c.Redis.Address = "localhost:6379"
		}, wantErr: false},
		{name: "unknown backend", mutate: func(c *Config) { c.Queue.Backend = "s3" }, wantErr: true},
		{name: "memory backend", mutate: func(c *Config) { c.Queue.Backend = "memory" }, wantErr: false},
		{name: "negative purge interval", mutate: func(c *Config) { c.Cache.PurgeInterval = -time.Minute }, wantErr: true},
		{name: "negative cache ttl", mutate: func(c *Config) { c.Cache.TTL = -time.Second }, wantErr: true},
		{name: "negative probe interval", mutate: func(c *Config) { c.Connectivity.ProbeInterval = -time.Second }, wantErr: true},
		{name: "telegram without chat", mutate: func(c *Config) { c.Notifications.Telegram.BotToken = "t" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Monitoring: MonitoringConfig{PrometheusEnabled: true}}
	cfg.applyDefaults()

	if cfg.Cache.TTL != models.DefaultCacheTTL {
		t.Errorf("expected default cache ttl %s, got %s", models.DefaultCacheTTL, cfg.Cache.TTL)
	}
	if cfg.Fetch.PageSize != models.DefaultPageSize {
		t.Errorf("expected default page size %d, got %d", models.DefaultPageSize, cfg.Fetch.PageSize)
	}
	if cfg.Monitoring.PrometheusPort != 9090 {
		t.Errorf("expected default prometheus port 9090, got %d", cfg.Monitoring.PrometheusPort)
	}
	if cfg.Redis.Prefix != "bookingsync:" {
		t.Errorf("expected default redis prefix, got %s", cfg.Redis.Prefix)
	}
	if cfg.Sync.Retry.MaxRetries != 0 {
		t.Errorf("expected online retry disabled by default, got %d", cfg.Sync.Retry.MaxRetries)
	}
}
