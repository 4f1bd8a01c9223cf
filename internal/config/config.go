// Package config loads process configuration from environment variables and
// an optional YAML file via viper, the same layering the cobra entrypoint
// under cmd/panel binds its flags through.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoggerConfig configures internal/shared/logger.Init. Field names and
// meaning are unchanged from the original config package this repo's logger
// package was written against.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// DatabaseConfig configures the Store's gorm connection.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // mysql | postgres | sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig configures the shared-cache write-through layer.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HTTPConfig configures the gin API server.
type HTTPConfig struct {
	BindAddr string `mapstructure:"bind_addr"`
}

// AuthConfig configures admin bearer-token issuance.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl"`
}

// NotifyConfig configures the fire-and-forget notification sinks.
type NotifyConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

// SchedulerConfig configures job cadences; overridable for tests that need
// faster ticks than production.
type SchedulerConfig struct {
	ConfigCacheInterval   time.Duration `mapstructure:"config_cache_interval"`
	LinksCacheInterval    time.Duration `mapstructure:"links_cache_interval"`
	ReconcilerInterval    time.Duration `mapstructure:"reconciler_interval"`
	UsageLogInterval      time.Duration `mapstructure:"usage_log_interval"`
	ReachedTrackerInterval time.Duration `mapstructure:"reached_tracker_interval"`
	ResellerGateInterval  time.Duration `mapstructure:"reseller_gate_interval"`
	NodeAccessInterval    time.Duration `mapstructure:"node_access_interval"`
	HealthLogInterval     time.Duration `mapstructure:"health_log_interval"`
}

// Config is the root configuration object, bound once at process start and
// passed explicitly to every component (per SPEC_FULL.md §9's "no hidden
// global mutation" guidance).
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// ReportingLicenseKey and ReportingSecretKey enable the optional upstream
	// usage-reporting POST (§6 "Upstream reporting"): the license key selects
	// the reporting endpoint's subdomain, the secret key is the URL path
	// component. Both empty disables reporting.
	ReportingLicenseKey string `mapstructure:"reporting_license_key"`
	ReportingSecretKey  string `mapstructure:"reporting_secret_key"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "panel.db")
	v.SetDefault("database.max_open_conns", 500)
	v.SetDefault("database.max_idle_conns", 300)
	v.SetDefault("database.conn_max_lifetime", 300*time.Second)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("http.bind_addr", ":8000")

	v.SetDefault("auth.jwt_ttl", 24*time.Hour)

	v.SetDefault("notify.queue_size", 256)

	v.SetDefault("scheduler.config_cache_interval", time.Minute)
	v.SetDefault("scheduler.links_cache_interval", time.Minute)
	v.SetDefault("scheduler.reconciler_interval", time.Minute)
	v.SetDefault("scheduler.usage_log_interval", time.Minute)
	v.SetDefault("scheduler.reached_tracker_interval", time.Minute)
	v.SetDefault("scheduler.reseller_gate_interval", time.Minute)
	v.SetDefault("scheduler.node_access_interval", 8*time.Hour)
	v.SetDefault("scheduler.health_log_interval", 90*time.Second)
}

// Load reads configuration from an optional file path, then from environment
// variables prefixed PANEL_ (e.g. PANEL_DATABASE_DSN), with env taking
// precedence over the file and the file over defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("panel")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
