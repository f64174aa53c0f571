package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"studio/backend/internal/domain"
	"studio/backend/internal/storage"
)

// ErrCacheMiss 缓存中没有对应的键
var ErrCacheMiss = errors.New("cache miss")

const (
	messageKeyPrefix   = "studio:message:"
	rateLimitKeyPrefix = "studio:ratelimit:"
	defaultMessageTTL  = 10 * time.Minute
)

// Cache Redis 缓存实现：单条留言缓存 + 固定窗口限流计数
type Cache struct {
	rdb *goredis.Client
	ttl time.Duration
	log *zap.Logger
}

var _ storage.RateLimitRepository = (*Cache)(nil)

// NewCache 基于已有客户端创建缓存，ttl <= 0 时使用默认值
func NewCache(rdb *goredis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultMessageTTL
	}
	return &Cache{rdb: rdb, ttl: ttl, log: zap.NewNop()}
}

// ========== 留言缓存 ==========

// CacheMessage 缓存留言
func (c *Cache) CacheMessage(ctx context.Context, message *domain.Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.rdb.Set(ctx, messageKeyPrefix+message.ID, data, c.ttl).Err()
}

// GetCachedMessage 获取缓存的留言，未命中返回 ErrCacheMiss
func (c *Cache) GetCachedMessage(ctx context.Context, id string) (*domain.Message, error) {
	data, err := c.rdb.Get(ctx, messageKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var message domain.Message
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("unmarshal cached message: %w", err)
	}
	return &message, nil
}

// DeleteCachedMessage 删除缓存的留言
func (c *Cache) DeleteCachedMessage(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, messageKeyPrefix+id).Err()
}

// ========== 限流缓存 ==========

// IncrementRateLimit 增加限流计数，窗口从第一次计数开始
//
// SET NX EX 与 INCR 在同一个 MULTI 中执行，计数键不会缺少过期时间
func (c *Cache) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := rateLimitKeyPrefix + key

	var incr *goredis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SetNX(ctx, fullKey, 0, window)
		incr = pipe.Incr(ctx, fullKey)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// GetRateLimit 获取限流计数
func (c *Cache) GetRateLimit(ctx context.Context, key string) (int64, error) {
	count, err := c.rdb.Get(ctx, rateLimitKeyPrefix+key).Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}
