package hybrid

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"studio/backend/internal/domain"
	"studio/backend/internal/storage"
	"studio/backend/internal/storage/redis"
)

// Store 混合存储实现，主存储负责持久化，Redis 负责单条留言缓存和限流计数
type Store struct {
	primary storage.Store
	cache   *redis.Cache
	log     *zap.Logger
}

var (
	_ storage.Store               = (*Store)(nil)
	_ storage.RateLimitRepository = (*Store)(nil)
	_ storage.PoolReporter        = (*Store)(nil)
)

// NewStore 创建混合存储实例
func NewStore(primary storage.Store, cache *redis.Cache, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{primary: primary, cache: cache, log: log}
}

// ========== Message Repository ==========

// CreateMessage 保存留言，新留言不预热缓存
func (s *Store) CreateMessage(ctx context.Context, message *domain.Message) error {
	return s.primary.CreateMessage(ctx, message)
}

// GetMessage 先查 Redis，未命中再查主存储并回填
func (s *Store) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	if msg, err := s.cache.GetCachedMessage(ctx, id); err == nil {
		return msg, nil
	} else if !errors.Is(err, redis.ErrCacheMiss) {
		s.log.Warn("message cache read failed", zap.String("message_id", id), zap.Error(err))
	}

	msg, err := s.primary.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.CacheMessage(ctx, msg); err != nil {
		s.log.Warn("message cache write failed", zap.String("message_id", id), zap.Error(err))
	}
	return msg, nil
}

// FindMessages 列表查询不缓存
func (s *Store) FindMessages(ctx context.Context, filter storage.MessageFilter) ([]domain.Message, error) {
	return s.primary.FindMessages(ctx, filter)
}

// CountMessages 计数不缓存
func (s *Store) CountMessages(ctx context.Context, filter storage.MessageFilter) (int64, error) {
	return s.primary.CountMessages(ctx, filter)
}

// UpdateMessageStatus 更新主存储后使缓存失效
func (s *Store) UpdateMessageStatus(ctx context.Context, id string, status domain.MessageStatus, updatedAt time.Time) (*domain.Message, error) {
	msg, err := s.primary.UpdateMessageStatus(ctx, id, status, updatedAt)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return msg, nil
}

// DeleteMessage 删除主存储记录后使缓存失效
func (s *Store) DeleteMessage(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := s.primary.DeleteMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return msg, nil
}

func (s *Store) invalidate(ctx context.Context, id string) {
	if err := s.cache.DeleteCachedMessage(ctx, id); err != nil {
		s.log.Warn("message cache invalidation failed", zap.String("message_id", id), zap.Error(err))
	}
}

// ========== User Repository ==========

// CreateUser 账号数据量小，直接走主存储
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	return s.primary.CreateUser(ctx, user)
}

// GetUserByID 根据 ID 获取账号
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.primary.GetUserByID(ctx, id)
}

// GetUserByUsername 根据用户名获取账号
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.primary.GetUserByUsername(ctx, username)
}

// ========== Rate Limit ==========

// IncrementRateLimit 限流计数放在 Redis，多实例共享
func (s *Store) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	return s.cache.IncrementRateLimit(ctx, key, window)
}

// ========== Lifecycle ==========

// Close 关闭主存储与 Redis
func (s *Store) Close() error {
	return errors.Join(s.primary.Close(), s.cache.Close())
}

// PoolStats 透传主存储的连接池统计
func (s *Store) PoolStats() (storage.PoolStats, bool) {
	if reporter, ok := s.primary.(storage.PoolReporter); ok {
		return reporter.PoolStats()
	}
	return storage.PoolStats{}, false
}

// Health 主存储与 Redis 都可用才算健康
func (s *Store) Health(ctx context.Context) error {
	if err := s.primary.Health(ctx); err != nil {
		return err
	}
	return s.cache.Ping(ctx)
}
