package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"bookingsync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig          `yaml:"app"`
	Viewer        ViewerConfig       `yaml:"viewer"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	Queue         QueueConfig        `yaml:"queue"`
	Cache         CacheConfig        `yaml:"cache"`
	Fetch         FetchConfig        `yaml:"fetch"`
	Sync          SyncConfig         `yaml:"sync"`
	Connectivity  ConnectivityConfig `yaml:"connectivity"`
	Notifications NotifyConfig       `yaml:"notifications"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
	Logging       LoggingConfig      `yaml:"logging"`
	Exports       ExportConfig       `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// ViewerConfig selects whose bookings the process keeps in sync.
type ViewerConfig struct {
	SubjectID string `yaml:"subject_id"`
	Role      string `yaml:"role"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// QueueConfig picks the backend of the offline queue: sqlite, redis, failover
// (written to redis and sqlite, newer copy wins) or memory (not durable, for local runs).
type QueueConfig struct {
	Backend string `yaml:"backend"`
}

type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

type FetchConfig struct {
	PageSize int `yaml:"page_size"`
}

type SyncConfig struct {
	ReplayRPS   float64     `yaml:"replay_rps"`
	ReplayBurst int         `yaml:"replay_burst"`
	Retry       RetryConfig `yaml:"retry"`
}

// RetryConfig controls re-draining while online after a pass left failures.
// MaxRetries 0 disables it; failed mutations then wait for the next reconnect.
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type ConnectivityConfig struct {
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Debug    bool   `yaml:"debug"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Viewer.SubjectID == "" {
		return errors.New("viewer subject_id is required")
	}
	if _, ok := models.ParseRole(c.Viewer.Role); !ok {
		return fmt.Errorf("viewer role %q must be initiator or recipient", c.Viewer.Role)
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	switch c.Queue.Backend {
	case "sqlite", "memory":
	case "redis", "failover":
		if c.Redis.Address == "" {
			return fmt.Errorf("queue backend %s requires redis.address", c.Queue.Backend)
		}
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}

	if c.Cache.TTL < 0 {
		return errors.New("cache ttl must not be negative")
	}
	if c.Cache.PurgeInterval < 0 {
		return errors.New("cache purge_interval must not be negative")
	}
	if c.Connectivity.ProbeInterval < 0 || c.Connectivity.ProbeTimeout < 0 {
		return errors.New("connectivity probe durations must not be negative")
	}

	if c.Notifications.Telegram.BotToken != "" && c.Notifications.Telegram.ChatID == 0 {
		return errors.New("notifications.telegram.chat_id is required with a bot token")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "bookingsync"
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = "sqlite"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "bookingsync:"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = models.DefaultCacheTTL
	}
	if c.Cache.PurgeInterval == 0 {
		c.Cache.PurgeInterval = 10 * time.Minute
	}
	if c.Fetch.PageSize == 0 {
		c.Fetch.PageSize = models.DefaultPageSize
	}
	if c.Sync.ReplayBurst == 0 {
		c.Sync.ReplayBurst = 1
	}
	if c.Connectivity.ProbeInterval == 0 {
		c.Connectivity.ProbeInterval = 5 * time.Second
	}
	if c.Connectivity.ProbeTimeout == 0 {
		c.Connectivity.ProbeTimeout = 2 * time.Second
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}
