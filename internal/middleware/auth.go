package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/optical-switch/internal/errors"
	"github.com/wfunc/optical-switch/internal/service"
)

// 上下文键
const (
	ContextUsername  = "username"
	ContextRole      = "role"
	ContextSessionID = "sessionID"
)

// AuthMiddleware JWT认证中间件
type AuthMiddleware struct {
	authService service.AuthService
	enabled     bool
}

// NewAuthMiddleware 创建认证中间件；enabled 为 false 时所有请求直接放行
func NewAuthMiddleware(authService service.AuthService, enabled bool) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		enabled:     enabled,
	}
}

// RequireAuth 需要认证的中间件
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return m.RequireRole()
}

// RequireRole 需要特定角色的中间件，不传角色时只要求认证
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			c.Next()
			return
		}

		token := m.extractToken(c)
		if token == "" {
			abort(c, errors.New(errors.ErrAuthentication, "缺少认证令牌"))
			return
		}

		claims, err := m.authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			abort(c, errors.Wrap(err, errors.ErrTokenInvalid))
			return
		}

		if len(roles) > 0 && !containsRole(roles, claims.Role) {
			abort(c, errors.Newf(errors.ErrAuthorization, "需要角色: %s", strings.Join(roles, ",")))
			return
		}

		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextSessionID, claims.SessionID)
		c.Next()
	}
}

// extractToken 从 Authorization 头、X-Access-Token 头或 token 查询参数提取令牌
//
// 浏览器 websocket 无法设置请求头，只能使用查询参数。
func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	if bearer := c.GetHeader("Authorization"); bearer != "" {
		parts := strings.SplitN(bearer, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}
	return c.Query("token")
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func abort(c *gin.Context, err *errors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus(), errors.NewErrorResponse(err, GetRequestID(c)))
}

// GetUsername 从上下文获取操作员用户名
func GetUsername(c *gin.Context) (string, bool) {
	v := c.GetString(ContextUsername)
	return v, v != ""
}

// GetUserRole 从上下文获取操作员角色
func GetUserRole(c *gin.Context) (string, bool) {
	v := c.GetString(ContextRole)
	return v, v != ""
}

// GetSessionID 从上下文获取会话ID
func GetSessionID(c *gin.Context) (string, bool) {
	v := c.GetString(ContextSessionID)
	return v, v != ""
}
