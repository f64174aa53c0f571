package domain

import "time"

// UserRole 后台账号角色
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleEditor UserRole = "editor" // 只能登录，不能管理留言
)

// User 后台账号
type User struct {
	ID           string    `json:"id" bson:"_id" gorm:"column:id;primaryKey;type:varchar(36)"`
	Name         string    `json:"name" bson:"name" gorm:"column:name;type:varchar(255)"`
	Username     string    `json:"username" bson:"username" gorm:"column:username;uniqueIndex;type:varchar(64);not null"`
	PasswordHash string    `json:"-" bson:"passwordHash" gorm:"column:password_hash;type:varchar(255);not null"` // 不返回给前端
	Role         UserRole  `json:"role" bson:"role" gorm:"column:role;type:varchar(20);not null"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt" gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt" gorm:"column:updated_at;autoUpdateTime:false"`
}

// TableName 关系型数据库中的表名
func (User) TableName() string {
	return "admin_users"
}

// IsAdmin 判断是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
