package sql

import (
	"context"
	"strings"

	"studio/backend/internal/domain"
	"studio/backend/internal/storage"
)

// ========== User Repository ==========

// CreateUser 创建后台账号
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if _, err := s.GetUserByUsername(ctx, user.Username); err == nil {
		return storage.ErrUsernameExists
	}
	return translateError(s.db.WithContext(ctx).Create(user).Error, storage.ErrUserNotFound)
}

// GetUserByID 根据ID获取账号
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		return nil, translateError(err, storage.ErrUserNotFound)
	}
	return &user, nil
}

// GetUserByUsername 根据用户名获取账号，不区分大小写
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).
		Where("LOWER(username) = ?", strings.ToLower(username)).
		Take(&user).Error
	if err != nil {
		return nil, translateError(err, storage.ErrUserNotFound)
	}
	return &user, nil
}
