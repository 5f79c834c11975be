package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/poller"
)

// EnvPrefix namespaces environment overrides, e.g. SMART_INGREDIENTS_POLL_INTERVAL.
const EnvPrefix = "SMART_INGREDIENTS"

// Preference store kinds.
const (
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds client and reference server settings.
type Config struct {
	APIBase        string        `mapstructure:"api_base"`
	AuthToken      string        `mapstructure:"auth_token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	Poll struct {
		Interval time.Duration `mapstructure:"interval"`
		// Timeout bounds a whole watch session; zero waits indefinitely.
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"poll"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Preference struct {
		Store     string `mapstructure:"store"`
		Path      string `mapstructure:"path"`
		Namespace string `mapstructure:"namespace"`
	} `mapstructure:"preference"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Server struct {
		Addr            string        `mapstructure:"addr"`
		GRPCHealthAddr  string        `mapstructure:"grpc_health_addr"`
		JWTSecret       string        `mapstructure:"jwt_secret"`
		JWTAudience     string        `mapstructure:"jwt_audience"`
		OCRText         string        `mapstructure:"ocr_text"`
		OCRReadyAfter   int           `mapstructure:"ocr_ready_after"`
		CacheTTL        time.Duration `mapstructure:"cache_ttl"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	source string
}

// Source returns the config file that was read, or "" when only defaults and
// environment were used.
func (c *Config) Source() string {
	return c.source
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in increasing precedence. When path is empty, config.yaml is
// looked up in the working directory and the user config directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// API_BASE is honoured without the prefix for parity with the web client.
	if err := v.BindEnv("api_base", EnvPrefix+"_API_BASE", "API_BASE"); err != nil {
		return nil, fmt.Errorf("bind api_base: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir := userConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.source = v.ConfigFileUsed()
	cfg.APIBase = strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	cfg.Preference.Store = strings.ToLower(strings.TrimSpace(cfg.Preference.Store))
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_base", "http://127.0.0.1:3000")
	v.SetDefault("auth_token", "")
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("poll.interval", poller.DefaultInterval)
	v.SetDefault("poll.timeout", time.Duration(0))
	v.SetDefault("log.level", "info")
	v.SetDefault("preference.store", StoreFile)
	v.SetDefault("preference.path", defaultPreferencePath())
	v.SetDefault("preference.namespace", "smart-ingredients")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.dsn", "")
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.grpc_health_addr", "")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.jwt_audience", "")
	v.SetDefault("server.ocr_text", "水,糖,盐")
	v.SetDefault("server.ocr_ready_after", 2)
	v.SetDefault("server.cache_ttl", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
}

func userConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ""
	}
	return filepath.Join(dir, "smart-ingredients")
}

func defaultPreferencePath() string {
	if dir := userConfigDir(); dir != "" {
		return filepath.Join(dir, "preferences.json")
	}
	return filepath.Join(".smart-ingredients", "preferences.json")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBase)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api_base must be an http(s) URL, got %q", c.APIBase)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.Poll.Interval < poller.DefaultInterval {
		return fmt.Errorf("poll.interval must be at least %s, got %s", poller.DefaultInterval, c.Poll.Interval)
	}
	if c.Poll.Timeout < 0 {
		return errors.New("poll.timeout must not be negative")
	}

	switch c.Preference.Store {
	case StoreFile:
		if c.Preference.Path == "" {
			return errors.New("preference.path is required for the file store")
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis store")
		}
	case StorePostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown preference.store %q", c.Preference.Store)
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.OCRReadyAfter < 0 {
		return errors.New("server.ocr_ready_after must not be negative")
	}
	return nil
}
