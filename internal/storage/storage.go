package storage

import (
	"context"
	"errors"
	"time"

	"studio/backend/internal/domain"
)

var (
	// ErrMessageNotFound 留言不存在
	ErrMessageNotFound = domain.ErrMessageNotFound
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameExists 用户名已存在
	ErrUsernameExists = errors.New("username already exists")
)

// MessageFilter 留言查询条件
//
// Status 为空表示不过滤；CreatedFrom/CreatedTo 均为闭区间；Limit 为 0 表示不限制。
type MessageFilter struct {
	Status      domain.MessageStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Skip        int
	Limit       int
}

// Matches 判断留言是否满足过滤条件（不考虑分页）
func (f MessageFilter) Matches(m *domain.Message) bool {
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if f.CreatedFrom != nil && m.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && m.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}

// MessageRepository 定义留言数据存取操作。所有查询按 createdAt 倒序返回。
type MessageRepository interface {
	CreateMessage(ctx context.Context, message *domain.Message) error
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	FindMessages(ctx context.Context, filter MessageFilter) ([]domain.Message, error)
	CountMessages(ctx context.Context, filter MessageFilter) (int64, error)
	UpdateMessageStatus(ctx context.Context, id string, status domain.MessageStatus, updatedAt time.Time) (*domain.Message, error)
	DeleteMessage(ctx context.Context, id string) (*domain.Message, error)
}

// UserRepository 定义后台账号数据存取操作。
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// RateLimitRepository 定义固定窗口限流计数操作。
type RateLimitRepository interface {
	// IncrementRateLimit 计数加一并返回窗口内的当前计数
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// PoolStats 数据库连接池统计
type PoolStats struct {
	InUse int // 正在使用的连接
	Idle  int // 空闲连接
	Open  int // 已建立的连接
	Max   int // 连接上限，0 表示不限
}

// PoolReporter 可以报告连接池状态的存储，未使用连接池时返回 false
type PoolReporter interface {
	PoolStats() (PoolStats, bool)
}

// Store 聚合全部存储能力。
type Store interface {
	MessageRepository
	UserRepository
	Close() error
	Health(ctx context.Context) error
}
