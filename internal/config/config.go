package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Gateway GatewayConfig `mapstructure:"gateway"`
	API     APIConfig     `mapstructure:"api"`
	Scrape  ScrapeConfig  `mapstructure:"scrape"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Notify  NotifyConfig  `mapstructure:"notify"`
}

type GatewayConfig struct {
	URL                 string `mapstructure:"url"`
	Token               string `mapstructure:"token"`
	HandshakeTimeoutSec int    `mapstructure:"handshake_timeout_sec"`
}

type APIConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryDelay    int    `mapstructure:"retry_delay_sec"`
}

type ScrapeConfig struct {
	BatchSize       int `mapstructure:"batch_size"`
	RequestDelaySec int `mapstructure:"request_delay_sec"`
	RetryCount      int `mapstructure:"retry_count"`
	RetryDelaySec   int `mapstructure:"retry_delay_sec"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory"`
	Compress  bool   `mapstructure:"compress"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// NotifyConfig configures ntfy notifications. Tags is a comma-separated
// list of emoji shortcodes added to every message.
type NotifyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Server  string `mapstructure:"server"`
	Topic   string `mapstructure:"topic"`
	Token   string `mapstructure:"token"`
	Tags    string `mapstructure:"tags"`
}

func (c NotifyConfig) TagList() []string {
	var tags []string
	for _, tag := range strings.Split(c.Tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (c GatewayConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSec) * time.Second
}

func (c ScrapeConfig) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySec) * time.Second
}

func (c ScrapeConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySec) * time.Second
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("gateway.url", "wss://gateway.discord.gg/?v=10&encoding=json")
	v.SetDefault("gateway.handshake_timeout_sec", 10)
	v.SetDefault("api.base_url", "https://discord.com/api/v9")
	v.SetDefault("api.timeout_sec", 30)
	v.SetDefault("api.rate_per_second", 1)
	v.SetDefault("api.retry_count", 3)
	v.SetDefault("api.retry_delay_sec", 2)
	v.SetDefault("scrape.batch_size", 25)
	v.SetDefault("scrape.request_delay_sec", 3)
	v.SetDefault("scrape.retry_count", 5)
	v.SetDefault("scrape.retry_delay_sec", 3)
	v.SetDefault("output.directory", "data")
	v.SetDefault("output.compress", false)
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.topic", "")
	v.SetDefault("notify.token", "")
	v.SetDefault("notify.tags", "busts_in_silhouette")

	// Environment variable support
	v.SetEnvPrefix("ROSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("gateway.token", "ROSTER_TOKEN")
	for _, key := range []string{"enabled", "server", "topic", "token", "tags"} {
		env := strings.ToUpper(key)
		_ = v.BindEnv("notify."+key, "ROSTER_NOTIFY_"+env, "NTFY_"+env)
	}

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
