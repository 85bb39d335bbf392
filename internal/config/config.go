package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/healflow/console-engine/internal/models"
)

// Config captures the settings required to boot the console engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Clients       ClientsConfig       `yaml:"clients"`
	Sync          SyncConfig          `yaml:"sync"`
	Stall         StallConfig         `yaml:"stall"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Filters       FiltersConfig       `yaml:"filters"`
	Risk          RiskConfig          `yaml:"risk"`
	Logging       LoggingConfig       `yaml:"logging"`
	Cache         CacheConfig         `yaml:"cache"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ClientsConfig groups backend integrations.
type ClientsConfig struct {
	Backend   BackendClientConfig   `yaml:"backend"`
	Reporting ReportingClientConfig `yaml:"reporting"`
}

// BackendClientConfig configures access to the incident backend APIs.
type BackendClientConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	Timeout     time.Duration `yaml:"timeout"`
	SignalLimit int           `yaml:"signalLimit"`
}

// ReportingClientConfig configures the read-only analytics endpoints. When
// BaseURL is empty the backend base URL is reused.
type ReportingClientConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

// SyncConfig controls the snapshot refresh loop.
type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// StallConfig controls the stalled-process detector.
type StallConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Threshold time.Duration `yaml:"threshold"`
}

// NotificationsConfig bounds the operator notification queue.
type NotificationsConfig struct {
	MaxEntries int `yaml:"maxEntries"`
}

// FiltersConfig sets the filter defaults applied before the operator changes
// anything.
type FiltersConfig struct {
	TimeWindow string   `yaml:"timeWindow"`
	Phase      string   `yaml:"phase"`
	Tiers      []string `yaml:"tiers"`
}

// RiskConfig controls risk rule-pack loading for the decide stage.
type RiskConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls Redis-backed caching of reporting lookups.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	ReportingTTL time.Duration `yaml:"reportingTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("HEALFLOW_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// DefaultFilters converts the configured filter defaults into the domain type.
func (c *Config) DefaultFilters() models.Filters {
	filters := models.DefaultFilters()
	if c.Filters.TimeWindow != "" {
		filters.TimeWindow = c.Filters.TimeWindow
	}
	if c.Filters.Phase != "" {
		filters.Phase = c.Filters.Phase
	}
	if len(c.Filters.Tiers) > 0 {
		tiers := make([]models.EntityTier, 0, len(c.Filters.Tiers))
		for _, t := range c.Filters.Tiers {
			tiers = append(tiers, models.EntityTier(t))
		}
		filters.Tiers = tiers
	}
	return filters
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8090",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Clients: ClientsConfig{
			Backend: BackendClientConfig{
				Timeout:     5 * time.Second,
				SignalLimit: 50,
			},
			Reporting: ReportingClientConfig{
				Timeout: 5 * time.Second,
			},
		},
		Sync: SyncConfig{
			Interval: 3 * time.Second,
		},
		Stall: StallConfig{
			Interval:  10 * time.Second,
			Threshold: 30 * time.Second,
		},
		Notifications: NotificationsConfig{MaxEntries: 100},
		Risk:          RiskConfig{Path: "configs/risk/default.yaml"},
		Logging:       LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			ReportingTTL: 2 * time.Minute,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HEALFLOW_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("HEALFLOW_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("HEALFLOW_BACKEND_BASE_URL"); v != "" {
		cfg.Clients.Backend.BaseURL = v
	}
	if v := os.Getenv("HEALFLOW_BACKEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Clients.Backend.Timeout = d
		}
	}
	if v := os.Getenv("HEALFLOW_BACKEND_SIGNAL_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Clients.Backend.SignalLimit = n
		}
	}
	if v := os.Getenv("HEALFLOW_REPORTING_BASE_URL"); v != "" {
		cfg.Clients.Reporting.BaseURL = v
	}
	if v := os.Getenv("HEALFLOW_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.Interval = d
		}
	}
	if v := os.Getenv("HEALFLOW_STALL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Stall.Interval = d
		}
	}
	if v := os.Getenv("HEALFLOW_STALL_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Stall.Threshold = d
		}
	}
	if v := os.Getenv("HEALFLOW_NOTIFICATIONS_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Notifications.MaxEntries = n
		}
	}
	if v := os.Getenv("HEALFLOW_RISK_PATH"); v != "" {
		cfg.Risk.Path = v
	}
	if v := os.Getenv("HEALFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HEALFLOW_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("HEALFLOW_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("HEALFLOW_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("HEALFLOW_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("HEALFLOW_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("HEALFLOW_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("HEALFLOW_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("HEALFLOW_CACHE_REPORTING_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ReportingTTL = d
		}
	}
}
