package httptransport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"studio/backend/internal/domain"
)

// isoMillis 与浏览器 toISOString 一致的时间格式
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// ErrorResponse 统一错误响应结构
type ErrorResponse struct {
	Success   bool   `json:"success"`   // 固定为 false
	Message   string `json:"message"`   // 英文提示信息
	Timestamp string `json:"timestamp"` // UTC 时间
}

// MessageView 对外输出的留言，附带格式化后的时间
type MessageView struct {
	domain.Message
	FormattedCreatedAt string `json:"formattedCreatedAt"`
	FormattedUpdatedAt string `json:"formattedUpdatedAt"`
}

// newMessageView 按日历时区格式化时间
func newMessageView(message domain.Message, loc *time.Location) MessageView {
	return MessageView{
		Message:            message,
		FormattedCreatedAt: domain.FormatTimestamp(message.CreatedAt, loc),
		FormattedUpdatedAt: domain.FormatTimestamp(message.UpdatedAt, loc),
	}
}

// newMessageViews 批量转换，空结果输出为 []
func newMessageViews(messages []domain.Message, loc *time.Location) []MessageView {
	views := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, newMessageView(m, loc))
	}
	return views
}

// nowISO 当前 UTC 时间
func nowISO() string {
	return time.Now().UTC().Format(isoMillis)
}

// formatISO 格式化为 UTC 毫秒时间
func formatISO(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// Error 通用错误响应
func Error(c *gin.Context, httpCode int, msg string) {
	c.JSON(httpCode, ErrorResponse{
		Success:   false,
		Message:   msg,
		Timestamp: nowISO(),
	})
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	Error(c, http.StatusBadRequest, msg)
}

// Unauthorized 未认证错误（401）
func Unauthorized(c *gin.Context, msg string) {
	Error(c, http.StatusUnauthorized, msg)
}

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context, msg string) {
	Error(c, http.StatusInternalServerError, msg)
}
