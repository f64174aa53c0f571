package httptransport

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"studio/backend/internal/auth"
	"studio/backend/internal/middleware"
)

// AuthHandler 处理登录与令牌校验请求
type AuthHandler struct {
	authService *auth.Service // 认证业务服务
	log         *zap.Logger   // 结构化日志记录器
}

// NewAuthHandler 创建新的认证处理器实例
//
// 参数:
//   - authService: 认证业务服务
//   - log: 日志记录器，为 nil 时不输出
//
// 返回值:
//   - *AuthHandler: 认证处理器实例
func NewAuthHandler(authService *auth.Service, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{
		authService: authService,
		log:         log,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type loginResponse struct {
	Message   string       `json:"message"`
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expiresIn"` // 秒
	User      userResponse `json:"user"`
}

// Login 处理后台登录请求
// @Summary 后台登录
// @Description 使用用户名和密码登录，成功后返回访问令牌
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录凭证"
// @Success 200 {object} loginResponse "登录成功"
// @Failure 400 {object} ErrorResponse "缺少用户名或密码"
// @Failure 401 {object} ErrorResponse "用户名或密码错误"
// @Router /login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgCredentialsRequired)
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		BadRequest(c, MsgCredentialsRequired)
		return
	}

	user, err := h.authService.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, h.log, err, MsgInternalError)
		return
	}
	if user == nil {
		h.log.Info("login rejected",
			zap.String("username", req.Username),
			zap.String("ip", c.ClientIP()),
		)
		Unauthorized(c, MsgInvalidCredentials)
		return
	}

	// 生成令牌
	token, err := h.authService.IssueToken(user)
	if err != nil {
		h.log.Error("failed to issue token", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	h.log.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username),
	)

	c.JSON(http.StatusOK, loginResponse{
		Message:   MsgLoginSuccessful,
		Token:     token,
		ExpiresIn: int64(h.authService.TokenExpiry() / time.Second),
		User: userResponse{
			ID:       user.ID,
			Name:     user.Name,
			Username: user.Username,
			Role:     string(user.Role),
		},
	})
}

// Verify 返回当前令牌携带的身份信息
// @Summary 校验令牌
// @Tags 认证
// @Produce json
// @Security BearerAuth
// @Router /auth/verify [get]
func (h *AuthHandler) Verify(c *gin.Context) {
	claims, _ := middleware.ClaimsFromContext(c)
	c.JSON(http.StatusOK, gin.H{
		"message": MsgTokenValid,
		"user":    claims,
	})
}

// Dashboard 后台首页欢迎信息
func (h *AuthHandler) Dashboard(c *gin.Context) {
	claims, _ := middleware.ClaimsFromContext(c)
	c.JSON(http.StatusOK, gin.H{
		"message": MsgWelcomeDashboard,
		"user":    claims,
	})
}
