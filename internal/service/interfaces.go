package service

import (
	"context"
	"time"

	"github.com/wfunc/optical-switch/internal/models"
	"github.com/wfunc/optical-switch/internal/utils"
)

// AuthService 操作员认证服务接口
type AuthService interface {
	Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error)
	ValidateToken(ctx context.Context, token string) (*utils.JWTClaims, error)
}

// CommandRecorder 命令历史记录器
type CommandRecorder interface {
	Record(log *models.CommandLog)
}

// EventPublisher 光开关事件发布者（websocket hub）
type EventPublisher interface {
	Publish(eventType, requestID string, payload interface{})
}

// 事件类型
const (
	EventCommand  = "command"
	EventResponse = "response"
	EventResult   = "result"
)

// 命令来源
const (
	SourceAPI        = "api"
	SourceCLI        = "cli"
	SourceContinuous = "continuous"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest 刷新令牌请求
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // 秒
	Username     string `json:"username"`
	Role         string `json:"role"`
}

// CommandResult 一次光开关操作的结果
type CommandResult struct {
	RequestID  string        `json:"request_id"`
	Operation  string        `json:"operation"`
	Command    string        `json:"command"`
	Continuous bool          `json:"continuous"`
	Responses  []string      `json:"responses"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
}

// CommandEvent 命令发送事件
type CommandEvent struct {
	Operation  string `json:"operation"`
	Command    string `json:"command"`
	Continuous bool   `json:"continuous"`
	Source     string `json:"source"`
}

// ResponseEvent 应答行事件
type ResponseEvent struct {
	Operation string `json:"operation"`
	Line      string `json:"line"`
}
