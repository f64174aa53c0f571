package httptransport

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"studio/backend/internal/domain"
	"studio/backend/internal/middleware"
	"studio/backend/internal/service"
)

// AdminHandler 后台留言管理处理器，路由需先经过管理员认证
type AdminHandler struct {
	messages *service.MessageService
	log      *zap.Logger
}

// NewAdminHandler 创建后台留言管理处理器
//
// 参数:
//   - messages: 留言业务服务
//   - log: 日志记录器
//
// 返回值:
//   - *AdminHandler: 处理器实例
func NewAdminHandler(messages *service.MessageService, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{
		messages: messages,
		log:      log,
	}
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// ListMessages 分页列出留言
// @Summary 留言列表
// @Tags 管理
// @Produce json
// @Param status query string false "unread / read / replied，其他值忽略"
// @Param page query int false "页码，默认 1"
// @Param limit query int false "每页条数，默认 10，最多 100"
// @Param dateFrom query string false "createdAt 下界（YYYY-MM-DD 或 RFC 3339）"
// @Param dateTo query string false "createdAt 上界（YYYY-MM-DD 或 RFC 3339）"
// @Security BearerAuth
// @Router /admin/messages [get]
func (h *AdminHandler) ListMessages(c *gin.Context) {
	loc := h.messages.Location()
	query := domain.ListQuery{
		Status: c.Query("status"),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	}

	var err error
	if query.DateFrom, err = queryDate(c, "dateFrom", loc); err != nil {
		BadRequest(c, "dateFrom: "+err.Error())
		return
	}
	if query.DateTo, err = queryDate(c, "dateTo", loc); err != nil {
		BadRequest(c, "dateTo: "+err.Error())
		return
	}

	page, err := h.messages.List(c.Request.Context(), query)
	if err != nil {
		writeError(c, h.log, err, MsgMessageListFailed)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       newMessageViews(page.Messages, loc),
		"pagination": page.Pagination,
		"fetchedAt":  nowISO(),
	})
}

// GetStats 留言统计
// @Summary 留言统计
// @Tags 管理
// @Security BearerAuth
// @Router /admin/messages/stats [get]
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.messages.Stats(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err, MsgStatisticsGetFailed)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// MessagesByDateRange 按日历日期闭区间查询
// @Summary 按日期查询留言
// @Tags 管理
// @Param startDate query string true "开始日期 YYYY-MM-DD"
// @Param endDate query string true "结束日期 YYYY-MM-DD，包含当天"
// @Security BearerAuth
// @Router /admin/messages/date-range [get]
func (h *AdminHandler) MessagesByDateRange(c *gin.Context) {
	startDate := strings.TrimSpace(c.Query("startDate"))
	endDate := strings.TrimSpace(c.Query("endDate"))
	if startDate == "" || endDate == "" {
		BadRequest(c, MsgDateRangeRequired)
		return
	}

	messages, dateRange, err := h.messages.ByDateRange(c.Request.Context(), startDate, endDate)
	if err != nil {
		writeError(c, h.log, err, MsgMessageListFailed)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    newMessageViews(messages, h.messages.Location()),
		"dateRange": gin.H{
			"startDate": startDate,
			"endDate":   endDate,
			"from":      formatISO(dateRange.Start),
			"to":        formatISO(dateRange.End),
		},
		"count":     len(messages),
		"fetchedAt": nowISO(),
	})
}

// RecentMessages 最新留言
// @Summary 最新留言
// @Tags 管理
// @Param limit query int false "条数，默认 10，最多 100"
// @Security BearerAuth
// @Router /admin/messages/recent [get]
func (h *AdminHandler) RecentMessages(c *gin.Context) {
	messages, err := h.messages.Recent(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		writeError(c, h.log, err, MsgMessageListFailed)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"data":      newMessageViews(messages, h.messages.Location()),
		"count":     len(messages),
		"fetchedAt": nowISO(),
	})
}

// GetMessage 留言详情
// @Summary 留言详情
// @Tags 管理
// @Param id path string true "留言ID"
// @Security BearerAuth
// @Router /admin/messages/{id} [get]
func (h *AdminHandler) GetMessage(c *gin.Context) {
	message, err := h.messages.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err, MsgMessageGetFailed)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"data":      newMessageView(*message, h.messages.Location()),
		"fetchedAt": nowISO(),
	})
}

// UpdateStatus 修改留言状态
// @Summary 修改留言状态
// @Tags 管理
// @Accept json
// @Param id path string true "留言ID"
// @Param request body updateStatusRequest true "新状态"
// @Security BearerAuth
// @Router /admin/messages/{id}/status [put]
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidJSON)
		return
	}

	message, err := h.messages.UpdateStatus(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.Status))
	if err != nil {
		writeError(c, h.log, err, MsgMessageUpdateFailed)
		return
	}

	h.log.Info("message status updated",
		zap.String("message_id", message.ID),
		zap.String("status", string(message.Status)),
		zap.String("by", c.GetString(middleware.ContextUsername)),
	)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   fmt.Sprintf(msgMessageMarkedPattern, message.Status),
		"data":      newMessageView(*message, h.messages.Location()),
		"updatedAt": formatISO(message.UpdatedAt),
	})
}

// DeleteMessage 删除留言
// @Summary 删除留言
// @Tags 管理
// @Param id path string true "留言ID"
// @Security BearerAuth
// @Router /admin/messages/{id} [delete]
func (h *AdminHandler) DeleteMessage(c *gin.Context) {
	message, err := h.messages.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err, MsgMessageDeleteFailed)
		return
	}

	h.log.Info("message deleted", zap.String("message_id", message.ID))

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   MsgMessageDeleted,
		"deletedAt": nowISO(),
		"deletedMessage": gin.H{
			"id":                message.ID,
			"name":              message.Name,
			"originalCreatedAt": formatISO(message.CreatedAt),
		},
	})
}

// queryInt 解析整数查询参数，缺失或非法时返回 0 交给业务层取默认值
func queryInt(c *gin.Context, key string) int {
	value, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return 0
	}
	return value
}

// queryDate 解析可选的日期查询参数
func queryDate(c *gin.Context, key string, loc *time.Location) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	t, err := domain.ParseDate(raw, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
