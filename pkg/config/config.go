package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Store     StoreConfig     `yaml:"store"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Queue     QueueConfig     `yaml:"queue"`
	Logger    LoggerConfig    `yaml:"logger"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // Bearer token expected from workers (optional, if empty, auth is disabled)
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"` // empty disables Redis (locks run in single-instance mode)
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Migrate  bool   `yaml:"migrate"` // run AutoMigrate on startup
}

// StoreConfig selects the job store backend
type StoreConfig struct {
	Driver   string `yaml:"driver"`    // mysql, memory
	SeedFile string `yaml:"seed_file"` // YAML fixture loaded into the memory store
}

// SchedulerConfig scheduler configuration
type SchedulerConfig struct {
	WorkerExpirationSeconds int  `yaml:"worker_expiration_seconds"` // heartbeat age after which a worker is reaped
	ReaperIntervalSeconds   int  `yaml:"reaper_interval_seconds"`   // sweep period
	GenerateOnRunCreated    bool `yaml:"generate_on_run_created"`   // also create jobs when a run:created event arrives
}

// QueueConfig asynq consumer configuration
type QueueConfig struct {
	Enabled     bool `yaml:"enabled"`
	Concurrency int  `yaml:"concurrency"`
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig prometheus exposition
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

const (
	defaultPort                    = 8000
	defaultStoreDriver             = "mysql"
	defaultWorkerExpirationSeconds = 60
	defaultReaperIntervalSeconds   = 60
	defaultQueueConcurrency        = 2
	defaultMetricsPath             = "/metrics"
)

// WorkerExpiration returns the heartbeat expiration window
func (c SchedulerConfig) WorkerExpiration() time.Duration {
	return time.Duration(c.WorkerExpirationSeconds) * time.Second
}

// ReaperInterval returns the sweep period
func (c SchedulerConfig) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalSeconds) * time.Second
}

// DefaultSchedulerConfig returns scheduler defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		WorkerExpirationSeconds: defaultWorkerExpirationSeconds,
		ReaperIntervalSeconds:   defaultReaperIntervalSeconds,
	}
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := Load(configPath)
	if err != nil {
		return err
	}

	GlobalConfig = cfg
	return nil
}

// Load reads and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	validateAndApplyDefaults(&cfg)
	return &cfg, nil
}

// validateAndApplyDefaults replaces missing or invalid values with defaults
func validateAndApplyDefaults(cfg *Config) {
	defaults := DefaultSchedulerConfig()
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = defaultStoreDriver
	}
	if cfg.Scheduler.WorkerExpirationSeconds <= 0 {
		cfg.Scheduler.WorkerExpirationSeconds = defaults.WorkerExpirationSeconds
	}
	if cfg.Scheduler.ReaperIntervalSeconds <= 0 {
		cfg.Scheduler.ReaperIntervalSeconds = defaults.ReaperIntervalSeconds
	}
	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = defaultQueueConcurrency
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
}
