// Package config loads wikifeed settings from defaults, an optional YAML
// file, .env files and WIKIFEED_* environment variables, in increasing
// order of precedence. Command-line flags are applied on top by the CLI.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/wikifeed/pkg/dispatch"
	"github.com/cuemby/wikifeed/pkg/errors"
	"github.com/cuemby/wikifeed/pkg/stream"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// WIKIFEED_STREAM_URL or WIKIFEED_DISPATCH_DELIVERY_TIMEOUT.
const EnvPrefix = "WIKIFEED"

// DefaultConfigName is looked up in the working directory when no path is given
const DefaultConfigName = "wikifeed"

// Config is the full engine configuration
type Config struct {
	Stream        StreamConfig        `mapstructure:"stream"`
	Dispatch      DispatchConfig      `mapstructure:"dispatch"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Log           LogConfig           `mapstructure:"log"`
	API           APIConfig           `mapstructure:"api"`
	Store         StoreConfig         `mapstructure:"store"`
	Subscriptions SubscriptionsConfig `mapstructure:"subscriptions"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`

	// ConfigFile is the file that was read, if any
	ConfigFile string `mapstructure:"-"`
}

// StreamConfig configures the upstream connection
type StreamConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// DispatchConfig configures delivery
type DispatchConfig struct {
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
}

// IngestConfig configures the optional throttle. A zero rate disables it.
type IngestConfig struct {
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// APIConfig configures the admin HTTP server. An empty address disables it.
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// StoreConfig configures persistence. An empty data dir disables it.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// SubscriptionsConfig points at a YAML subscriptions file to load and watch
type SubscriptionsConfig struct {
	File  string `mapstructure:"file"`
	Watch bool   `mapstructure:"watch"`
}

// WebhookConfig configures the webhook deliverer. An empty URL disables it.
type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`

	// HealthURL is requested to probe the target; when empty the host of
	// URL is dialed instead. A zero ProbeInterval disables probing.
	HealthURL     string        `mapstructure:"health_url"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stream.url", stream.DefaultURL)
	v.SetDefault("stream.reconnect_delay", stream.DefaultReconnectDelay)
	v.SetDefault("stream.connect_timeout", stream.DefaultConnectTimeout)
	v.SetDefault("stream.idle_timeout", time.Duration(0))
	v.SetDefault("stream.user_agent", stream.DefaultUserAgent)

	v.SetDefault("dispatch.delivery_timeout", dispatch.DefaultDeliveryTimeout)
	v.SetDefault("dispatch.max_concurrency", dispatch.DefaultMaxConcurrency)

	v.SetDefault("ingest.rate_limit", 0.0)
	v.SetDefault("ingest.burst", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("api.addr", ":9090")
	v.SetDefault("store.data_dir", "")
	v.SetDefault("subscriptions.file", "")
	v.SetDefault("subscriptions.watch", true)

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.health_url", "")
	v.SetDefault("webhook.probe_interval", 30*time.Second)
}

// Default returns the configuration with only defaults applied
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults always decode
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load builds the configuration. If path is empty, ./wikifeed.yaml is read
// when present; a path that is given must exist.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	return cfg, nil
}

// loadEnvFiles loads .env then .env.local; existing variables win
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	if err := validateURL("stream.url", c.Stream.URL); err != nil {
		return err
	}
	if c.Stream.ReconnectDelay <= 0 {
		return errors.NewValidationError("stream.reconnect_delay", c.Stream.ReconnectDelay, "must be positive")
	}
	if c.Stream.ConnectTimeout <= 0 {
		return errors.NewValidationError("stream.connect_timeout", c.Stream.ConnectTimeout, "must be positive")
	}
	if c.Stream.IdleTimeout < 0 {
		return errors.NewValidationError("stream.idle_timeout", c.Stream.IdleTimeout, "must not be negative")
	}
	if c.Dispatch.DeliveryTimeout <= 0 {
		return errors.NewValidationError("dispatch.delivery_timeout", c.Dispatch.DeliveryTimeout, "must be positive")
	}
	if c.Dispatch.MaxConcurrency <= 0 {
		return errors.NewValidationError("dispatch.max_concurrency", c.Dispatch.MaxConcurrency, "must be positive")
	}
	if c.Ingest.RateLimit < 0 {
		return errors.NewValidationError("ingest.rate_limit", c.Ingest.RateLimit, "must not be negative")
	}
	if c.Ingest.RateLimit > 0 && c.Ingest.Burst <= 0 {
		return errors.NewValidationError("ingest.burst", c.Ingest.Burst, "must be positive when rate_limit is set")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.NewValidationError("log.level", c.Log.Level, "must be one of debug, info, warn, error")
	}
	if c.Store.DataDir != "" && c.Subscriptions.File != "" {
		return errors.NewValidationError("subscriptions.file", c.Subscriptions.File, "cannot be combined with store.data_dir")
	}
	if c.Webhook.URL != "" {
		if err := validateURL("webhook.url", c.Webhook.URL); err != nil {
			return err
		}
		if c.Webhook.Timeout <= 0 {
			return errors.NewValidationError("webhook.timeout", c.Webhook.Timeout, "must be positive")
		}
		if c.Webhook.HealthURL != "" {
			if err := validateURL("webhook.health_url", c.Webhook.HealthURL); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewValidationError(field, raw, "must be an absolute http(s) URL")
	}
	return nil
}
