package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"washplan/internal/scheduling"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Scheduling struct {
		MinAdvanceHours        int `yaml:"min_advance_hours"`
		MaxAdvanceDays         int `yaml:"max_advance_days"`
		SlotGranularityMinutes int `yaml:"slot_granularity_minutes"`
		BufferMinutes          int `yaml:"buffer_minutes"`
		MaxCascadeDepth        int `yaml:"max_cascade_depth"`
	} `yaml:"scheduling"`

	Telegram struct {
		Enabled  bool   `yaml:"enabled"`
		BotToken string `yaml:"bot_token"`
		ChatID   int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	Reports struct {
		Dir string `yaml:"dir"`
	} `yaml:"reports"`

	Reminders struct {
		Enabled              bool `yaml:"enabled"`
		HorizonHours         int  `yaml:"horizon_hours"`
		CheckIntervalMinutes int  `yaml:"check_interval_minutes"`
	} `yaml:"reminders"`

	Backup BackupConfig `yaml:"backup"`
}

// BackupConfig controls the periodic database file copy.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	IntervalHours int    `yaml:"interval_hours"`
	RetentionDays int    `yaml:"retention_days"`
}

// Interval returns the backup period, defaulting to daily.
func (b BackupConfig) Interval() time.Duration {
	if b.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.IntervalHours) * time.Hour
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/washplan.db"
	}
	if cfg.Reports.Dir == "" {
		cfg.Reports.Dir = "data/reports"
	}
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = "data/backups"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Rules converts the scheduling section to engine rules, with the engine
// defaults filling unset values.
func (c *Config) Rules() scheduling.Rules {
	rules := scheduling.DefaultRules()
	if c.Scheduling.MinAdvanceHours > 0 {
		rules.MinAdvance = time.Duration(c.Scheduling.MinAdvanceHours) * time.Hour
	}
	if c.Scheduling.MaxAdvanceDays > 0 {
		rules.MaxAdvance = time.Duration(c.Scheduling.MaxAdvanceDays) * 24 * time.Hour
	}
	if c.Scheduling.SlotGranularityMinutes > 0 {
		rules.SlotGranularity = time.Duration(c.Scheduling.SlotGranularityMinutes) * time.Minute
	}
	if c.Scheduling.BufferMinutes > 0 {
		rules.DefaultBufferMinutes = c.Scheduling.BufferMinutes
	}
	if c.Scheduling.MaxCascadeDepth > 0 {
		rules.MaxCascadeDepth = c.Scheduling.MaxCascadeDepth
	}
	return rules
}

// CacheTTL returns the availability cache lifetime; zero disables caching.
func (c *Config) CacheTTL() time.Duration {
	if c.Redis.Address == "" || c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}
