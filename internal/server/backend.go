package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/auth"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/config"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/handlers"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/imageprocessor"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/repository"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/usecase"
)

// Backend is an assembled reference server.
type Backend struct {
	Router  *gin.Engine
	closers []func() error
}

// Close releases database and Redis connections.
func (b *Backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewBackend wires repository, cache, processor and routes from cfg. Without
// database.dsn or redis.addr the in-memory implementations are used.
func NewBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	b := &Backend{}

	var repo repository.Repository = repository.NewMemoryRepository()
	if cfg.Database.DSN != "" {
		db, err := OpenDatabase(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		closeDB, err := dbCloser(db)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, closeDB)

		gormRepo := repository.NewGormRepository(db, logger)
		if err := gormRepo.AutoMigrate(ctx); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		repo = gormRepo
		logger.Info("using postgres repository")
	}

	var cache usecase.Cache = usecase.NewMemoryCache()
	if cfg.Redis.Addr != "" {
		client, err := OpenRedis(ctx, cfg)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.closers = append(b.closers, client.Close)
		cache = usecase.NewRedisCache(client)
		logger.Info("using redis cache", zap.String("addr", cfg.Redis.Addr))
	}

	processor := imageprocessor.NewScripted(cfg.Server.OCRText, cfg.Server.OCRReadyAfter)
	uc := usecase.NewAnalysisUseCase(repo, cache, processor, logger, usecase.WithCacheTTL(cfg.Server.CacheTTL))

	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = handlers.MaxUploadSize
	handlers.RegisterRoutes(router, uc, auth.JWTMiddleware(cfg.Server.JWTSecret, cfg.Server.JWTAudience), logger)

	b.Router = router
	return b, nil
}

// dbCloser returns the function releasing db's connection pool.
func dbCloser(db *gorm.DB) (func() error, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access db handle: %w", err)
	}
	return sqlDB.Close, nil
}

// OpenDatabase connects to PostgreSQL and verifies the connection.
func OpenDatabase(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}
