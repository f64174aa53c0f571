package domain

import "time"

// MessageStatus 联系消息的处理状态
type MessageStatus string

const (
	StatusUnread  MessageStatus = "unread"
	StatusRead    MessageStatus = "read"
	StatusReplied MessageStatus = "replied"
)

// AllStatuses 全部合法状态，按生命周期顺序排列
var AllStatuses = []MessageStatus{StatusUnread, StatusRead, StatusReplied}

// IsValid 判断状态是否为合法枚举值
func (s MessageStatus) IsValid() bool {
	switch s {
	case StatusUnread, StatusRead, StatusReplied:
		return true
	}
	return false
}

// ParseStatus 解析状态字符串，非法值返回 false
func ParseStatus(value string) (MessageStatus, bool) {
	status := MessageStatus(value)
	return status, status.IsValid()
}

// Message 表示一条来自网站联系表单的留言。
//
// json/bson 字段名即对外的存储与传输契约，不可随意修改。
type Message struct {
	ID        string        `json:"_id" bson:"_id" gorm:"column:id;primaryKey;type:varchar(36)"`
	Name      string        `json:"name" bson:"name" gorm:"column:name;type:varchar(255);not null"`
	Email     string        `json:"email" bson:"email" gorm:"column:email;type:varchar(255);not null"`
	Message   string        `json:"message" bson:"message" gorm:"column:message;type:text;not null"`
	Status    MessageStatus `json:"status" bson:"status" gorm:"column:status;type:varchar(16);not null;index"`
	CreatedAt time.Time     `json:"createdAt" bson:"createdAt" gorm:"column:created_at;not null;index;autoCreateTime:false"`
	UpdatedAt time.Time     `json:"updatedAt" bson:"updatedAt" gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName 关系型数据库中的表名
func (Message) TableName() string {
	return "contact_messages"
}

// ContactInput 联系表单提交的原始字段（未清洗）
type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// ValidatedMessage 通过校验、已清洗的联系表单字段
type ValidatedMessage struct {
	Name    string
	Email   string
	Message string
}

// MessageEventType 消息生命周期事件类型
type MessageEventType string

const (
	EventMessageCreated MessageEventType = "message.created"
	EventMessageUpdated MessageEventType = "message.updated"
	EventMessageDeleted MessageEventType = "message.deleted"
)

// MessageEvent 消息发生变化后发布给观察者的事件
type MessageEvent struct {
	Type    MessageEventType `json:"type"`
	Message Message          `json:"message"`
	At      time.Time        `json:"at"`
}
