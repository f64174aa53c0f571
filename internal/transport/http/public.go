package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"studio/backend/internal/domain"
	"studio/backend/internal/service"
)

// ContactHandler 网站联系表单（无需认证）
type ContactHandler struct {
	messages *service.MessageService
	log      *zap.Logger
}

// NewContactHandler 创建联系表单处理器
func NewContactHandler(messages *service.MessageService, log *zap.Logger) *ContactHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContactHandler{
		messages: messages,
		log:      log,
	}
}

// Submit 保存联系表单留言
// @Summary 提交联系表单
// @Tags Public
// @Accept json
// @Produce json
// @Param request body domain.ContactInput true "留言内容"
// @Success 201 {object} object{success=bool,message=string,data=MessageView}
// @Failure 400 {object} ErrorResponse "字段缺失或邮箱格式错误"
// @Failure 429 {object} ErrorResponse "提交过于频繁"
// @Router /contact [post]
func (h *ContactHandler) Submit(c *gin.Context) {
	var input domain.ContactInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, MsgInvalidJSON)
		return
	}

	message, err := h.messages.Create(c.Request.Context(), input)
	if err != nil {
		writeError(c, h.log, err, MsgContactFailed)
		return
	}

	h.log.Info("contact message received",
		zap.String("message_id", message.ID),
		zap.String("ip", c.ClientIP()),
	)

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": MsgMessageSent,
		"data":    newMessageView(*message, h.messages.Location()),
	})
}
