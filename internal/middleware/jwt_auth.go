package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"studio/backend/internal/auth/jwt"
)

// 上下文键
const (
	ContextClaims   = "claims"
	ContextUserID   = "userID"
	ContextUsername = "username"
	ContextRole     = "role"
)

// TokenVerifier 校验访问令牌，auth.Service 满足该接口
type TokenVerifier interface {
	VerifyToken(token string) (*jwt.Claims, error)
}

// JWTAuth JWT认证中间件
type JWTAuth struct {
	verifier TokenVerifier
	log      *zap.Logger
}

// NewJWTAuth 创建JWT认证中间件
func NewJWTAuth(verifier TokenVerifier, log *zap.Logger) *JWTAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTAuth{
		verifier: verifier,
		log:      log,
	}
}

// RequireAuth 要求 Authorization: Bearer 令牌
//
// 缺少令牌返回 401，令牌无效或过期返回 403。
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return ja.require(false)
}

// RequireAuthAllowQuery 同 RequireAuth，另外接受 ?token= 参数（浏览器 WebSocket 无法设置请求头）
func (ja *JWTAuth) RequireAuthAllowQuery() gin.HandlerFunc {
	return ja.require(true)
}

func (ja *JWTAuth) require(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c, allowQuery)
		if token == "" {
			abortWithError(c, http.StatusUnauthorized, "Access token required")
			return
		}

		claims, err := ja.verifier.VerifyToken(token)
		if err != nil {
			ja.log.Warn("invalid token",
				zap.Error(err),
				zap.String("ip", c.ClientIP()),
			)
			abortWithError(c, http.StatusForbidden, "Invalid or expired token")
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// ClaimsFromContext 取出认证中间件写入的声明
func ClaimsFromContext(c *gin.Context) (*jwt.Claims, bool) {
	value, exists := c.Get(ContextClaims)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*jwt.Claims)
	return claims, ok
}

// extractToken 从请求中提取JWT token
func extractToken(c *gin.Context, allowQuery bool) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if allowQuery {
		return c.Query("token")
	}
	return ""
}
