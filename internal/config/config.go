package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	// TelegramBotToken enables the bot when set.
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	BadgerDBPath     string `mapstructure:"BADGERDB_PATH"`
	HTTPAddr         string `mapstructure:"HTTP_ADDR"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`

	// SiteBaseURL is the forum root entries are fetched from.
	SiteBaseURL   string        `mapstructure:"SITE_BASE_URL"`
	ScrapeTimeout time.Duration `mapstructure:"SCRAPE_TIMEOUT"`
	PageCacheMB   int           `mapstructure:"PAGE_CACHE_MB"`
	PageCacheTTL  time.Duration `mapstructure:"PAGE_CACHE_TTL"`
	GCInterval    time.Duration `mapstructure:"GC_INTERVAL"`
}

var defaults = map[string]any{
	"TELEGRAM_BOT_TOKEN": "",
	"BADGERDB_PATH":      "./badger_data",
	"HTTP_ADDR":          ":4455",
	"LOG_LEVEL":          "info",
	"SITE_BASE_URL":      "https://eksisozluk.com",
	"SCRAPE_TIMEOUT":     30 * time.Second,
	"PAGE_CACHE_MB":      64,
	"PAGE_CACHE_TTL":     5 * time.Minute,
	"GC_INTERVAL":        5 * time.Minute,
}

// LoadConfig reads config.yaml from path (if present) and the environment.
// Environment variables take precedence over the file.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	return load(v)
}

// LoadConfigFile reads an explicit config file and the environment.
func LoadConfigFile(file string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(file)
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	// Keys are only looked up in the environment once viper knows them,
	// so every key has an entry in defaults. An empty variable still counts.
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	if c.BadgerDBPath == "" {
		return errors.New("BADGERDB_PATH must not be empty")
	}
	if c.HTTPAddr == "" && c.TelegramBotToken == "" {
		return errors.New("nothing to serve: set HTTP_ADDR or TELEGRAM_BOT_TOKEN")
	}
	if !strings.HasPrefix(c.SiteBaseURL, "http://") && !strings.HasPrefix(c.SiteBaseURL, "https://") {
		return fmt.Errorf("SITE_BASE_URL must be an http(s) URL, got %q", c.SiteBaseURL)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if c.ScrapeTimeout <= 0 {
		return errors.New("SCRAPE_TIMEOUT must be positive")
	}
	return nil
}

// NewLogger builds the JSON logger at the configured level.
func (c Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
