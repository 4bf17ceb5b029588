package cmd

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/productmatch/internal/config"
	"github.com/example/productmatch/internal/imageio"
	"github.com/example/productmatch/internal/logging"
	"github.com/example/productmatch/internal/matcher"
	"github.com/example/productmatch/internal/similarity"
)

func openDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, logging.NewOperationError("cmd.open_database", "", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, logging.NewOperationError("cmd.open_database", "", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, logging.NewOperationError("cmd.ping_database", "", err)
	}
	logger.Info("database connected")
	return db, nil
}

func closeDatabase(db *gorm.DB, logger *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("failed to close database", zap.Error(err))
	}
}

func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, logging.NewOperationError("cmd.connect_redis", "", err)
	}
	return client, nil
}

func newMatcher(cfg *config.Config, logger *zap.Logger) *matcher.Matcher {
	loader := imageio.NewLoader(cfg.CatalogBaseDir)
	logger.Info("catalog images resolved against base directory",
		zap.String("catalog_base_dir", loader.BaseDir()),
		zap.Int("max_parallel", cfg.MaxParallel),
	)
	return matcher.New(
		loader,
		similarity.NewSSIM(cfg.CompareSize),
		logger,
		matcher.WithMaxParallel(cfg.MaxParallel),
	)
}
