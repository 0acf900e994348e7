package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/wfunc/optical-switch/internal/config"
	"github.com/wfunc/optical-switch/internal/errors"
	"github.com/wfunc/optical-switch/internal/utils"
	"go.uber.org/zap"
)

// operator 配置中的操作员
type operator struct {
	username     string
	passwordHash string
	role         string
}

// authService 认证服务实现
type authService struct {
	operators  map[string]operator
	jwtManager *utils.JWTManager
	log        *zap.Logger

	// 未知用户也做一次哈希校验，登录耗时不暴露用户名是否存在
	dummyHash string
}

// NewAuthService 创建认证服务
func NewAuthService(cfg *config.SecurityConfig, log *zap.Logger) (AuthService, error) {
	accessExpiry := time.Duration(cfg.JWT.ExpireHours) * time.Hour
	if accessExpiry <= 0 {
		accessExpiry = 12 * time.Hour
	}
	refreshExpiry := time.Duration(cfg.JWT.RefreshHours) * time.Hour
	if refreshExpiry <= 0 {
		refreshExpiry = 7 * 24 * time.Hour
	}

	s := &authService{
		operators:  make(map[string]operator, len(cfg.Operators)),
		jwtManager: utils.NewJWTManager(cfg.JWT.Secret, accessExpiry, refreshExpiry),
		log:        log,
	}

	dummy, err := utils.HashPassword("optical-switch")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnknown, "初始化认证服务失败")
	}
	s.dummyHash = dummy

	for _, op := range cfg.Operators {
		if op.Username == "" {
			return nil, errors.New(errors.ErrConfigValidate, "操作员用户名为空")
		}
		if _, err := utils.VerifyPassword("", op.PasswordHash); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigValidate, "操作员 %s 的密码哈希无效", op.Username)
		}
		if utils.NeedsRehash(op.PasswordHash) {
			log.Warn("操作员密码哈希参数偏弱", zap.String("username", op.Username))
		}
		role := op.Role
		if role == "" {
			role = "operator"
		}
		s.operators[op.Username] = operator{
			username:     op.Username,
			passwordHash: op.PasswordHash,
			role:         role,
		}
	}
	return s, nil
}

// Login 操作员登录
func (s *authService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	op, ok := s.operators[req.Username]
	hash := op.passwordHash
	if !ok {
		hash = s.dummyHash
	}

	valid, err := utils.VerifyPassword(req.Password, hash)
	if err != nil || !valid || !ok {
		s.log.Warn("登录失败", zap.String("username", req.Username))
		return nil, errors.New(errors.ErrAuthentication, "用户名或密码错误")
	}

	sessionID, err := utils.GenerateSessionID()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnknown, "生成会话ID失败")
	}
	access, err := s.jwtManager.GenerateAccessToken(op.username, op.role, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnknown, "生成令牌失败")
	}
	refresh, err := s.jwtManager.GenerateRefreshToken(op.username, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnknown, "生成令牌失败")
	}

	s.log.Info("操作员登录", zap.String("username", op.username), zap.String("role", op.role))
	return &AuthResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwtManager.GetTokenExpiry(utils.TokenTypeAccess).Seconds()),
		Username:     op.username,
		Role:         op.role,
	}, nil
}

// RefreshToken 使用刷新令牌换取新的访问令牌
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.jwtManager.ValidateToken(refreshToken)
	if err != nil {
		return nil, tokenError(err)
	}
	op, ok := s.operators[claims.Username]
	if !ok {
		return nil, errors.New(errors.ErrTokenInvalid, "操作员不存在")
	}

	access, _, err := s.jwtManager.RefreshAccessToken(refreshToken, op.role)
	if err != nil {
		return nil, tokenError(err)
	}

	return &AuthResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.jwtManager.GetTokenExpiry(utils.TokenTypeAccess).Seconds()),
		Username:    op.username,
		Role:        op.role,
	}, nil
}

// ValidateToken 验证访问令牌
func (s *authService) ValidateToken(ctx context.Context, token string) (*utils.JWTClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, tokenError(err)
	}
	if claims.TokenType != utils.TokenTypeAccess {
		return nil, errors.New(errors.ErrTokenInvalid, "不是访问令牌")
	}
	if _, ok := s.operators[claims.Username]; !ok {
		return nil, errors.New(errors.ErrTokenInvalid, "操作员不存在")
	}
	return claims, nil
}

// tokenError 映射令牌错误
func tokenError(err error) *errors.AppError {
	switch {
	case stderrors.Is(err, utils.ErrExpiredToken):
		return errors.New(errors.ErrTokenExpired)
	case stderrors.Is(err, utils.ErrNotRefreshToken):
		return errors.New(errors.ErrTokenInvalid, "不是刷新令牌")
	default:
		return errors.New(errors.ErrTokenInvalid)
	}
}
