package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"studio/backend/internal/domain"
)

// 通用错误消息
const (
	MsgInvalidJSON          = "Invalid JSON body"
	MsgCredentialsRequired  = "Username and password are required"
	MsgInvalidCredentials   = "Invalid credentials"
	MsgDateRangeRequired    = "Both startDate and endDate are required (YYYY-MM-DD format)"
	MsgContactFailed        = "Failed to send message"
	MsgMessageListFailed    = "Failed to fetch messages"
	MsgMessageGetFailed     = "Failed to fetch message"
	MsgMessageUpdateFailed  = "Failed to update message"
	MsgMessageDeleteFailed  = "Failed to delete message"
	MsgStatisticsGetFailed  = "Failed to fetch message statistics"
	MsgInternalError        = "Internal server error"
	MsgContactRateLimited   = "Too many messages sent, please try again later"
	MsgWelcomeDashboard     = "Welcome to admin dashboard"
	MsgLoginSuccessful      = "Login successful"
	MsgTokenValid           = "Token is valid"
	MsgMessageSent          = "Message sent successfully"
	MsgMessageDeleted       = "Message deleted successfully"
	msgMessageMarkedPattern = "Message marked as %s"
)

// StatusFor 按领域错误类别映射 HTTP 状态码
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAuth:
		if errors.Is(err, domain.ErrForbidden) {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// GetErrorMessage 获取对外的错误消息
//
// 客户端错误返回领域错误的原因（如 "message not found"），
// 服务端错误不暴露内部细节，返回 fallback。
func GetErrorMessage(err error, fallback string) string {
	if StatusFor(err) >= http.StatusInternalServerError {
		return fallback
	}
	var de *domain.Error
	if errors.As(err, &de) && de.Err != nil {
		return de.Err.Error()
	}
	return err.Error()
}

// writeError 写回领域错误，5xx 记录日志
func writeError(c *gin.Context, log *zap.Logger, err error, fallback string) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	Error(c, status, GetErrorMessage(err, fallback))
}
