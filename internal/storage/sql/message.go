package sql

import (
	"context"
	"time"

	"gorm.io/gorm"

	"studio/backend/internal/domain"
	"studio/backend/internal/storage"
)

// ========== Message Repository ==========

// CreateMessage 保存新留言
func (s *Store) CreateMessage(ctx context.Context, message *domain.Message) error {
	return s.db.WithContext(ctx).Create(message).Error
}

// GetMessage 根据 ID 获取留言
func (s *Store) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&msg).Error
	if err != nil {
		return nil, translateError(err, storage.ErrMessageNotFound)
	}
	return &msg, nil
}

// FindMessages 按条件查询，created_at 倒序
func (s *Store) FindMessages(ctx context.Context, filter storage.MessageFilter) ([]domain.Message, error) {
	query := applyFilter(s.db.WithContext(ctx), filter).Order("created_at DESC, id DESC")
	if filter.Skip > 0 {
		query = query.Offset(filter.Skip)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	messages := make([]domain.Message, 0)
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// CountMessages 统计满足条件的留言数
func (s *Store) CountMessages(ctx context.Context, filter storage.MessageFilter) (int64, error) {
	var count int64
	err := applyFilter(s.db.WithContext(ctx).Model(&domain.Message{}), filter).Count(&count).Error
	return count, err
}

// UpdateMessageStatus 更新状态与 updated_at，返回更新后的记录
func (s *Store) UpdateMessageStatus(ctx context.Context, id string, status domain.MessageStatus, updatedAt time.Time) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Message{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": status, "updated_at": updatedAt}).Error
	})
	if err != nil {
		return nil, translateError(err, storage.ErrMessageNotFound)
	}

	msg.Status = status
	msg.UpdatedAt = updatedAt
	return &msg, nil
}

// DeleteMessage 删除留言并返回删除前的记录
func (s *Store) DeleteMessage(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&msg).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Message{}).Error
	})
	if err != nil {
		return nil, translateError(err, storage.ErrMessageNotFound)
	}
	return &msg, nil
}

func applyFilter(query *gorm.DB, filter storage.MessageFilter) *gorm.DB {
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}
	return query
}
