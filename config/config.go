// Package config loads glucoscope's settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.sr.ht/~whereswaldon/glucoscope/backend"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GLUCOSCOPE_"

// Config holds everything needed to start the dashboard.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Feed    FeedConfig    `yaml:"feed"`
	Chart   ChartConfig   `yaml:"chart"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// APIConfig locates the REST API.
type APIConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// FeedConfig controls the websocket push channel. An empty URL is derived
// from the API base URL.
type FeedConfig struct {
	Disabled             bool          `yaml:"disabled"`
	URL                  string        `yaml:"url"`
	PingInterval         time.Duration `yaml:"pingInterval"`
	ReconnectDelay       time.Duration `yaml:"reconnectDelay"`
	ReconnectMultiplier  float64       `yaml:"reconnectMultiplier"`
	MaxReconnectAttempts int           `yaml:"maxReconnectAttempts"`
}

// ChartConfig sets chart defaults.
type ChartConfig struct {
	DefaultWindow time.Duration `yaml:"defaultWindow"`
	StaleAfter    time.Duration `yaml:"staleAfter"`
	DefaultHours  int           `yaml:"defaultHours"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the Prometheus endpoint. It is disabled when Addr
// is empty.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000/api/v1",
			Timeout: 10 * time.Second,
		},
		Feed: FeedConfig{
			PingInterval:         25 * time.Second,
			ReconnectDelay:       backend.DefaultBackoff.Base,
			ReconnectMultiplier:  backend.DefaultBackoff.Multiplier,
			MaxReconnectAttempts: backend.DefaultBackoff.MaxAttempts,
		},
		Chart: ChartConfig{
			DefaultWindow: 3 * time.Hour,
			StaleAfter:    15 * time.Minute,
			DefaultHours:  24,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (if any), then the .env file in the
// working directory (if any), then GLUCOSCOPE_* environment variables, and
// validates the result.
func Load(path string) (*Config, error) {
	return load(path, ".env")
}

func load(path, envFile string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	cfg := Default()
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

	dotenv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", envFile, err)
	}
	lookup := func(key string) string {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			return v
		}
		return dotenv[EnvPrefix+key]
	}
	if err := applyOverrides(&cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyOverrides(cfg *Config, lookup func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := lookup(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := lookup(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v := lookup(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v := lookup(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("API_URL", &cfg.API.BaseURL)
	str("API_TOKEN", &cfg.API.Token)
	dur("API_TIMEOUT", &cfg.API.Timeout)
	flag("FEED_DISABLED", &cfg.Feed.Disabled)
	str("FEED_URL", &cfg.Feed.URL)
	dur("FEED_PING_INTERVAL", &cfg.Feed.PingInterval)
	dur("RECONNECT_DELAY", &cfg.Feed.ReconnectDelay)
	if v := lookup("RECONNECT_MULTIPLIER"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %sRECONNECT_MULTIPLIER: %w", EnvPrefix, err))
		} else {
			cfg.Feed.ReconnectMultiplier = f
		}
	}
	num("MAX_RECONNECT_ATTEMPTS", &cfg.Feed.MaxReconnectAttempts)
	dur("CHART_WINDOW", &cfg.Chart.DefaultWindow)
	dur("CHART_STALE_AFTER", &cfg.Chart.StaleAfter)
	num("DEFAULT_HOURS", &cfg.Chart.DefaultHours)
	str("LOG_LEVEL", &cfg.Logging.Level)
	flag("LOG_JSON", &cfg.Logging.JSON)
	str("METRICS_ADDR", &cfg.Metrics.Addr)
	return errors.Join(errs...)
}

// Validate checks the settings for values the dashboard cannot run with.
func (c Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.baseURL %q must be an http(s) URL", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout must be positive, got %v", c.API.Timeout))
	}
	if c.Feed.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("feed.reconnectDelay must be positive, got %v", c.Feed.ReconnectDelay))
	}
	if c.Feed.ReconnectMultiplier < 1 {
		errs = append(errs, fmt.Errorf("feed.reconnectMultiplier must be at least 1, got %v", c.Feed.ReconnectMultiplier))
	}
	if c.Feed.MaxReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("feed.maxReconnectAttempts must not be negative, got %d", c.Feed.MaxReconnectAttempts))
	}
	if c.Chart.DefaultWindow <= 0 || c.Chart.StaleAfter <= 0 {
		errs = append(errs, errors.New("chart durations must be positive"))
	}
	if c.Chart.DefaultHours <= 0 {
		errs = append(errs, fmt.Errorf("chart.defaultHours must be positive, got %d", c.Chart.DefaultHours))
	}
	if _, ok := parseLevel(c.Logging.Level); !ok {
		errs = append(errs, fmt.Errorf("unknown logging.level %q", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// FeedURL returns the websocket endpoint, derived from the API base URL
// unless configured explicitly.
func (c Config) FeedURL() string {
	if c.Feed.URL != "" {
		return c.Feed.URL
	}
	return strings.TrimSuffix(c.API.BaseURL, "/") + "/ws"
}

// Backoff returns the reconnect schedule for the push channel.
func (c Config) Backoff() backend.Backoff {
	return backend.Backoff{
		Base:        c.Feed.ReconnectDelay,
		Multiplier:  c.Feed.ReconnectMultiplier,
		MaxAttempts: c.Feed.MaxReconnectAttempts,
	}
}
