package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"studio/backend/internal/domain"
	"studio/backend/internal/storage"
)

// Store 使用内存保存留言与后台账号，主要用于开发验证和测试。
type Store struct {
	mu         sync.RWMutex
	messages   map[string]*domain.Message // messageID -> message
	users      map[string]*domain.User    // userID -> user
	byUsername map[string]string          // lower(username) -> userID

	// 速率限制相关
	rateLimits        map[string]*rateLimitEntry
	rateLimitsCleanup time.Time // 下次清理过期速率限制的时间

	now func() time.Time
}

// rateLimitEntry 速率限制条目
type rateLimitEntry struct {
	Count     int64
	ExpiresAt time.Time
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		messages:   make(map[string]*domain.Message),
		users:      make(map[string]*domain.User),
		byUsername: make(map[string]string),
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

var (
	_ storage.Store               = (*Store)(nil)
	_ storage.RateLimitRepository = (*Store)(nil)
)

// ========== Message Repository ==========

// CreateMessage 保存新留言。
func (s *Store) CreateMessage(_ context.Context, message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *message
	s.messages[message.ID] = &cp
	return nil
}

// GetMessage 获取单条留言。
func (s *Store) GetMessage(_ context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	cp := *msg
	return &cp, nil
}

// FindMessages 按过滤条件返回留言，createdAt 倒序。
func (s *Store) FindMessages(_ context.Context, filter storage.MessageFilter) ([]domain.Message, error) {
	s.mu.RLock()
	matched := s.matchLocked(filter)
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Skip > 0 {
		if filter.Skip >= len(matched) {
			return []domain.Message{}, nil
		}
		matched = matched[filter.Skip:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// CountMessages 统计满足条件的留言数量，忽略分页参数。
func (s *Store) CountMessages(_ context.Context, filter storage.MessageFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, msg := range s.messages {
		if filter.Matches(msg) {
			count++
		}
	}
	return count, nil
}

// UpdateMessageStatus 更新留言状态并刷新 updatedAt。
func (s *Store) UpdateMessageStatus(_ context.Context, id string, status domain.MessageStatus, updatedAt time.Time) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	msg.Status = status
	msg.UpdatedAt = updatedAt

	cp := *msg
	return &cp, nil
}

// DeleteMessage 删除留言并返回被删除的记录。
func (s *Store) DeleteMessage(_ context.Context, id string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	delete(s.messages, id)
	return msg, nil
}

// matchLocked 调用方需持有读锁
func (s *Store) matchLocked(filter storage.MessageFilter) []domain.Message {
	result := make([]domain.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		if filter.Matches(msg) {
			result = append(result, *msg)
		}
	}
	return result
}

// ========== User Repository ==========

// CreateUser 创建后台账号，用户名不区分大小写唯一。
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Username)
	if _, exists := s.byUsername[key]; exists {
		return storage.ErrUsernameExists
	}

	cp := *user
	s.users[user.ID] = &cp
	s.byUsername[key] = user.ID
	return nil
}

// GetUserByID 根据 ID 获取账号。
func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

// GetUserByUsername 根据用户名获取账号。
func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

// ========== Rate Limit ==========

// IncrementRateLimit 增加限流计数
func (s *Store) IncrementRateLimit(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	// 清理过期的速率限制条目（每5分钟清理一次）
	if now.After(s.rateLimitsCleanup) {
		for k, v := range s.rateLimits {
			if now.After(v.ExpiresAt) {
				delete(s.rateLimits, k)
			}
		}
		s.rateLimitsCleanup = now.Add(5 * time.Minute)
	}

	entry, exists := s.rateLimits[key]
	if !exists || now.After(entry.ExpiresAt) {
		s.rateLimits[key] = &rateLimitEntry{
			Count:     1,
			ExpiresAt: now.Add(window),
		}
		return 1, nil
	}

	entry.Count++
	return entry.Count, nil
}

// ========== Lifecycle ==========

// Close 内存存储无需释放资源
func (s *Store) Close() error {
	return nil
}

// Health 内存存储始终可用
func (s *Store) Health(context.Context) error {
	return nil
}
