package cmd

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/analysis"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/config"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/logging"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/poller"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/preference"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/server"
)

type commandContext struct {
	configFlag   *string
	apiBaseFlag  *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *zap.Logger
}

func newCommandContext(configFlag, apiBaseFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		apiBaseFlag:  apiBaseFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(flagValue(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if base := flagValue(c.apiBaseFlag); base != "" {
			cfg.APIBase = strings.TrimRight(base, "/")
		}
		if level := flagValue(c.logLevelFlag); level != "" {
			cfg.Log.Level = level
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) log() *zap.Logger {
	c.loggerOnce.Do(func() {
		level := flagValue(c.logLevelFlag)
		if cfg := c.configValue(); cfg != nil {
			level = cfg.Log.Level
		}
		logger, err := logging.NewLogger(level)
		if err != nil {
			logger = zap.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) sync() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func (c *commandContext) client() *analysis.Client {
	cfg := c.configValue()
	return analysis.NewClient(cfg.APIBase,
		analysis.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		analysis.WithAuthToken(cfg.AuthToken),
		analysis.WithLogger(c.log()),
	)
}

func (c *commandContext) poller(client *analysis.Client) *poller.Poller {
	return poller.New(client,
		poller.WithInterval(c.configValue().Poll.Interval),
		poller.WithLogger(c.log()),
	)
}

// withPreferences opens the configured preference store for the duration of
// fn. Store problems degrade to an in-memory store so preference handling
// never blocks a command.
func (c *commandContext) withPreferences(ctx context.Context, fn func(*preference.Service) error) error {
	cfg := c.configValue()
	logger := c.log()

	var (
		store   preference.Store
		closeFn = func() {}
	)
	switch cfg.Preference.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closeFn = func() { _ = client.Close() }
		store = preference.NewRedisStore(client, cfg.Preference.Namespace)
	case config.StorePostgres:
		db, err := server.OpenDatabase(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Debug("preference database unavailable", zap.Error(err))
			store = preference.NewMemoryStore()
			break
		}
		if sqlDB, err := db.DB(); err == nil {
			closeFn = func() { _ = sqlDB.Close() }
		}
		gormStore := preference.NewGormStore(db)
		if err := gormStore.AutoMigrate(ctx); err != nil {
			logger.Debug("preference migration failed", zap.Error(err))
		}
		store = gormStore
	case config.StoreMemory:
		store = preference.NewMemoryStore()
	default:
		store = preference.NewFileStore(cfg.Preference.Path)
	}
	defer closeFn()

	return fn(preference.NewService(store, logger))
}

func flagValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return strings.TrimSpace(*ptr)
}
