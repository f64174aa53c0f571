package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"studio/backend/internal/config"
	"studio/backend/internal/storage"
	"studio/backend/internal/storage/hybrid"
	"studio/backend/internal/storage/memory"
	"studio/backend/internal/storage/mongo"
	"studio/backend/internal/storage/redis"
	sqlstore "studio/backend/internal/storage/sql"
)

// OpenStore 按配置打开主存储，启用 Redis 时包装为混合存储
//
// database.auto_migrate 为 true 时同时建表或建索引。
func OpenStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var (
		primary storage.Store
		err     error
	)

	switch cfg.Database.Type {
	case "mongo":
		var store *mongo.Store
		store, err = mongo.Open(ctx, &cfg.Database, log)
		if err == nil && cfg.Database.AutoMigrate {
			if err = store.EnsureIndexes(ctx); err != nil {
				_ = store.Close()
			}
		}
		primary = store
	case "postgres", "mysql":
		var store *sqlstore.Store
		store, err = sqlstore.Open(ctx, &cfg.Database, log)
		if err == nil && cfg.Database.AutoMigrate {
			if err = store.Migrate(ctx); err != nil {
				_ = store.Close()
			}
		}
		primary = store
	default:
		log.Info("using memory storage (development mode)")
		primary = memory.NewStore()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Database.Type, err)
	}

	if !cfg.Redis.Enabled {
		return primary, nil
	}

	cache, err := redis.New(ctx, &cfg.Redis, log)
	if err != nil {
		_ = primary.Close()
		return nil, err
	}

	log.Info("using hybrid storage",
		zap.String("primary", cfg.Database.Type),
		zap.String("redis_address", cfg.Redis.Address),
	)
	return hybrid.NewStore(primary, cache, log), nil
}
