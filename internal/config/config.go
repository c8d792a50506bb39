package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application's configuration values.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Probe       ProbeConfig       `mapstructure:"probe"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Schedule    ScheduleConfig    `mapstructure:"schedule"`
	Retention   RetentionConfig   `mapstructure:"retention"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Agent       AgentConfig       `mapstructure:"agent"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

type HTTPConfig struct {
	Port          string        `mapstructure:"port"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// ProbeConfig controls the active probe fan-out.
type ProbeConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	PingTimeout    time.Duration `mapstructure:"ping_timeout"`
	PingPrivileged bool          `mapstructure:"ping_privileged"`
	SSLTimeout     time.Duration `mapstructure:"ssl_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// AlertingConfig controls evaluation windows and delivery.
type AlertingConfig struct {
	Cooldown        time.Duration `mapstructure:"cooldown"`
	ErrorRateWindow time.Duration `mapstructure:"error_rate_window"`
	SSLWarningDays  int           `mapstructure:"ssl_warning_days"`
	WebhookTimeout  time.Duration `mapstructure:"webhook_timeout"`
	NATSURL         string        `mapstructure:"nats_url"`
	NATSSubject     string        `mapstructure:"nats_subject"`
	RedisURL        string        `mapstructure:"redis_url"`
}

// ScheduleConfig holds the cron specs of the background jobs.
type ScheduleConfig struct {
	Probe     string `mapstructure:"probe"`
	Heartbeat string `mapstructure:"heartbeat"`
	ErrorRate string `mapstructure:"error_rate"`
	SSL       string `mapstructure:"ssl"`
	Retention string `mapstructure:"retention"`
}

type RetentionConfig struct {
	Results time.Duration `mapstructure:"results"`
}

type MaintenanceConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// LoggingConfig configures the logrus logger.
type LoggingConfig struct {
	Level  string   `mapstructure:"level"`
	Format string   `mapstructure:"format"`
	Output []string `mapstructure:"output"`
	File   string   `mapstructure:"file"`
}

// AgentConfig is used by the host metrics push agent.
type AgentConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	APIKey    string        `mapstructure:"api_key"`
	MonitorID string        `mapstructure:"monitor_id"`
	Interval  time.Duration `mapstructure:"interval"`
	DiskPath  string        `mapstructure:"disk_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "pulsewatch.db")

	v.SetDefault("http.port", "8080")
	v.SetDefault("http.shutdown_grace", 10*time.Second)

	v.SetDefault("probe.max_concurrency", 32)
	v.SetDefault("probe.http_timeout", 15*time.Second)
	v.SetDefault("probe.ping_timeout", 10*time.Second)
	v.SetDefault("probe.ping_privileged", false)
	v.SetDefault("probe.ssl_timeout", 10*time.Second)
	v.SetDefault("probe.user_agent", "pulsewatch/1.0")

	v.SetDefault("alerting.cooldown", 5*time.Minute)
	v.SetDefault("alerting.error_rate_window", 10*time.Minute)
	v.SetDefault("alerting.ssl_warning_days", 14)
	v.SetDefault("alerting.webhook_timeout", 10*time.Second)
	v.SetDefault("alerting.nats_url", "")
	v.SetDefault("alerting.nats_subject", "pulsewatch.alerts")
	v.SetDefault("alerting.redis_url", "")

	v.SetDefault("schedule.probe", "* * * * *")
	v.SetDefault("schedule.heartbeat", "* * * * *")
	v.SetDefault("schedule.error_rate", "*/5 * * * *")
	v.SetDefault("schedule.ssl", "5 0 * * *")
	v.SetDefault("schedule.retention", "30 3 * * *")

	v.SetDefault("retention.results", 30*24*time.Hour)
	v.SetDefault("maintenance.cache_ttl", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", []string{"stdout"})
	v.SetDefault("logging.file", "")

	v.SetDefault("agent.server_url", "http://localhost:8080")
	v.SetDefault("agent.api_key", "")
	v.SetDefault("agent.monitor_id", "")
	v.SetDefault("agent.interval", time.Minute)
	v.SetDefault("agent.disk_path", "/")
}

// Load reads defaults, then the optional YAML file at path, then PULSEWATCH_*
// environment variables, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PULSEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Probe.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("probe.max_concurrency must be positive"))
	}
	if c.Probe.HTTPTimeout <= 0 || c.Probe.PingTimeout <= 0 || c.Probe.SSLTimeout <= 0 {
		errs = append(errs, errors.New("probe timeouts must be positive"))
	}
	if c.Alerting.Cooldown < 0 {
		errs = append(errs, errors.New("alerting.cooldown must not be negative"))
	}
	if c.Alerting.ErrorRateWindow <= 0 {
		errs = append(errs, errors.New("alerting.error_rate_window must be positive"))
	}
	if c.Alerting.SSLWarningDays < 0 {
		errs = append(errs, errors.New("alerting.ssl_warning_days must not be negative"))
	}
	if c.Retention.Results <= 0 {
		errs = append(errs, errors.New("retention.results must be positive"))
	}
	return errors.Join(errs...)
}
