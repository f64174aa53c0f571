package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"studio/backend/internal/config"
	"studio/backend/internal/domain"
	"studio/backend/internal/storage"
)

// Store 关系型数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL），基于 GORM
type Store struct {
	db   *gorm.DB
	pool *pgxpool.Pool // 仅 PostgreSQL 使用
	log  *zap.Logger
}

var (
	_ storage.Store        = (*Store)(nil)
	_ storage.PoolReporter = (*Store)(nil)
)

// Open 根据配置打开数据库连接
func Open(ctx context.Context, cfg *config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var (
		store *Store
		err   error
	)
	switch cfg.Type {
	case "postgres":
		store, err = openPostgres(ctx, cfg)
	case "mysql":
		store, err = openMySQL(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	store.log = log
	log.Info("connected to SQL database",
		zap.String("type", cfg.Type),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return store, nil
}

// openPostgres 通过 pgx 连接池打开 PostgreSQL，GORM 复用同一个池
func openPostgres(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	store, err := NewStoreWithDialector(postgres.New(postgres.Config{Conn: sqlDB}))
	if err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, err
	}
	store.pool = pool
	return store, nil
}

func openMySQL(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	sqlDB, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 设置连接池参数
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := NewStoreWithDialector(mysql.New(mysql.Config{Conn: sqlDB}))
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// NewStoreWithDialector 使用指定方言初始化存储，测试中配合 sqlmock 使用
func NewStoreWithDialector(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}
	return &Store{db: db, log: zap.NewNop()}, nil
}

// Migrate 自动建表（contact_messages、admin_users）
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&domain.Message{}, &domain.User{})
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// Health 检查数据库健康状态
func (s *Store) Health(ctx context.Context) error {
	if s.pool != nil {
		return s.pool.Ping(ctx)
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// PoolStats 返回连接池统计，PostgreSQL 读 pgxpool，MySQL 读 database/sql
func (s *Store) PoolStats() (storage.PoolStats, bool) {
	if s.pool != nil {
		stat := s.pool.Stat()
		return storage.PoolStats{
			InUse: int(stat.AcquiredConns()),
			Idle:  int(stat.IdleConns()),
			Open:  int(stat.TotalConns()),
			Max:   int(stat.MaxConns()),
		}, true
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return storage.PoolStats{}, false
	}
	stat := sqlDB.Stats()
	return storage.PoolStats{
		InUse: stat.InUse,
		Idle:  stat.Idle,
		Open:  stat.OpenConnections,
		Max:   stat.MaxOpenConnections,
	}, true
}

// translateError 将 GORM 错误转换为存储层错误
func translateError(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return storage.ErrUsernameExists
	default:
		return err
	}
}
