// Package config loads service configuration: built-in defaults, then an
// optional YAML file, then FLAGLIGHTS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/flaglights/go/clients/lifx_client"
	"github.com/mcdev12/flaglights/go/clients/openf1_client"
	"github.com/mcdev12/flaglights/go/internal/dbconfig"
	"github.com/mcdev12/flaglights/go/internal/settings"
)

// PathEnv names the environment variable holding the YAML config path.
const PathEnv = "FLAGLIGHTS_CONFIG"

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Feed      FeedConfig      `yaml:"feed"`
	Lights    LightsConfig    `yaml:"lights"`
	Liveness  LivenessConfig  `yaml:"liveness"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Store     StoreConfig     `yaml:"store"`
	Events    EventsConfig    `yaml:"events"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"            env:"FLAGLIGHTS_HTTP_ADDR"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"FLAGLIGHTS_HTTP_ALLOWED_ORIGINS" envSeparator:","`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"FLAGLIGHTS_LOG_LEVEL"`
	Format string `yaml:"format" env:"FLAGLIGHTS_LOG_FORMAT"`
}

type FeedConfig struct {
	BaseURL        string        `yaml:"base_url"         env:"FLAGLIGHTS_FEED_BASE_URL"`
	SessionKey     string        `yaml:"session_key"      env:"FLAGLIGHTS_FEED_SESSION_KEY"`
	ResultLimit    int           `yaml:"result_limit"     env:"FLAGLIGHTS_FEED_RESULT_LIMIT"`
	Timeout        time.Duration `yaml:"timeout"          env:"FLAGLIGHTS_FEED_TIMEOUT"`
	RetryAttempts  int           `yaml:"retry_attempts"   env:"FLAGLIGHTS_FEED_RETRY_ATTEMPTS"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" env:"FLAGLIGHTS_FEED_RETRY_BASE_DELAY"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"  env:"FLAGLIGHTS_FEED_RETRY_MAX_DELAY"`
	DedupSize      int           `yaml:"dedup_size"       env:"FLAGLIGHTS_FEED_DEDUP_SIZE"`
	TestMessageTTL time.Duration `yaml:"test_message_ttl" env:"FLAGLIGHTS_FEED_TEST_MESSAGE_TTL"`
}

type LightsConfig struct {
	BaseURL         string        `yaml:"base_url"         env:"FLAGLIGHTS_LIFX_BASE_URL"`
	Token           string        `yaml:"token"            env:"FLAGLIGHTS_LIFX_TOKEN"`
	Timeout         time.Duration `yaml:"timeout"          env:"FLAGLIGHTS_LIFX_TIMEOUT"`
	RetryAttempts   int           `yaml:"retry_attempts"   env:"FLAGLIGHTS_LIFX_RETRY_ATTEMPTS"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay" env:"FLAGLIGHTS_LIFX_RETRY_BASE_DELAY"`
	RetryMaxDelay   time.Duration `yaml:"retry_max_delay"  env:"FLAGLIGHTS_LIFX_RETRY_MAX_DELAY"`
	MinInterval     time.Duration `yaml:"min_interval"     env:"FLAGLIGHTS_LIFX_MIN_INTERVAL"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"FLAGLIGHTS_LIFX_REFRESH_INTERVAL"`
}

type LivenessConfig struct {
	Window        time.Duration `yaml:"window"         env:"FLAGLIGHTS_LIVENESS_WINDOW"`
	CheckInterval time.Duration `yaml:"check_interval" env:"FLAGLIGHTS_LIVENESS_CHECK_INTERVAL"`
	FastPoll      time.Duration `yaml:"fast_poll"      env:"FLAGLIGHTS_POLL_FAST"`
	SlowPoll      time.Duration `yaml:"slow_poll"      env:"FLAGLIGHTS_POLL_SLOW"`
}

type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval" env:"FLAGLIGHTS_SCHEDULER_TICK"`
	Retention    time.Duration `yaml:"retention"     env:"FLAGLIGHTS_SCHEDULER_RETENTION"`
	DefaultDelay int           `yaml:"default_delay" env:"FLAGLIGHTS_DEFAULT_DELAY"`
}

type StoreConfig struct {
	Backend        string `yaml:"backend"         env:"FLAGLIGHTS_STORE_BACKEND"`
	Path           string `yaml:"path"            env:"FLAGLIGHTS_STORE_PATH"`
	DSN            string `yaml:"dsn"             env:"FLAGLIGHTS_STORE_DSN"`
	RedisAddr      string `yaml:"redis_addr"      env:"FLAGLIGHTS_REDIS_ADDR"`
	RedisPassword  string `yaml:"redis_password"  env:"FLAGLIGHTS_REDIS_PASSWORD"`
	RedisDB        int    `yaml:"redis_db"        env:"FLAGLIGHTS_REDIS_DB"`
	RedisNamespace string `yaml:"redis_namespace" env:"FLAGLIGHTS_REDIS_NAMESPACE"`
	Watch          bool   `yaml:"watch"           env:"FLAGLIGHTS_STORE_WATCH"`
}

type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"       env:"FLAGLIGHTS_NATS_URL"`
	SubjectPrefix string `yaml:"subject_prefix" env:"FLAGLIGHTS_NATS_SUBJECT_PREFIX"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Feed: FeedConfig{
			BaseURL:        openf1_client.BaseURL,
			SessionKey:     openf1_client.LatestSession,
			ResultLimit:    openf1_client.DefaultResultLimit,
			Timeout:        15 * time.Second,
			RetryAttempts:  3,
			RetryBaseDelay: time.Second,
			RetryMaxDelay:  10 * time.Second,
			DedupSize:      100,
			TestMessageTTL: 120 * time.Second,
		},
		Lights: LightsConfig{
			BaseURL:         lifx_client.BaseURL,
			Timeout:         15 * time.Second,
			RetryAttempts:   3,
			RetryBaseDelay:  2 * time.Second,
			RetryMaxDelay:   8 * time.Second,
			MinInterval:     50 * time.Millisecond,
			RefreshInterval: 30 * time.Second,
		},
		Liveness: LivenessConfig{
			Window:        2 * time.Minute,
			CheckInterval: 60 * time.Second,
			FastPoll:      500 * time.Millisecond,
			SlowPoll:      30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			TickInterval: 100 * time.Millisecond,
			Retention:    60 * time.Second,
			DefaultDelay: 5,
		},
		Store: StoreConfig{
			Backend:        settings.BackendFile,
			Path:           "flaglights.yaml",
			RedisAddr:      "localhost:6379",
			RedisNamespace: "default",
			Watch:          true,
		},
		Events: EventsConfig{
			SubjectPrefix: "flaglights.events",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if (cfg.Store.Backend == settings.BackendPostgres || cfg.Store.Backend == settings.BackendPgx) && cfg.Store.DSN == "" {
		db, err := dbconfig.NewConfigFromEnv()
		if err != nil {
			return nil, err
		}
		cfg.Store.DSN = db.DSN()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Scheduler.DefaultDelay < 0 {
		errs = append(errs, fmt.Errorf("scheduler.default_delay must be >= 0, got %d", c.Scheduler.DefaultDelay))
	}
	if c.Scheduler.TickInterval <= 0 {
		errs = append(errs, errors.New("scheduler.tick_interval must be positive"))
	}
	if c.Liveness.FastPoll <= 0 || c.Liveness.SlowPoll <= 0 {
		errs = append(errs, errors.New("liveness poll intervals must be positive"))
	}
	if c.Feed.RetryAttempts < 0 || c.Lights.RetryAttempts < 0 {
		errs = append(errs, errors.New("retry attempts must be >= 0"))
	}
	if c.Feed.DedupSize <= 0 {
		errs = append(errs, errors.New("feed.dedup_size must be positive"))
	}
	switch c.Store.Backend {
	case settings.BackendMemory, settings.BackendFile, settings.BackendSQLite, settings.BackendPostgres, settings.BackendPgx, settings.BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if (c.Store.Backend == settings.BackendFile || c.Store.Backend == settings.BackendSQLite) && c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required for file and sqlite backends"))
	}
	return errors.Join(errs...)
}

// SettingsOptions maps the store section onto settings.Options.
func (c *Config) SettingsOptions() settings.Options {
	return settings.Options{
		Backend:        c.Store.Backend,
		Path:           c.Store.Path,
		DSN:            c.Store.DSN,
		RedisAddr:      c.Store.RedisAddr,
		RedisPassword:  c.Store.RedisPassword,
		RedisDB:        c.Store.RedisDB,
		RedisNamespace: c.Store.RedisNamespace,
	}
}
