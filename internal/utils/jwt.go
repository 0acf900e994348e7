package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "optical-switch"

// 令牌类型
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token has expired")
	ErrNotRefreshToken = errors.New("not a refresh token")
)

// JWTClaims 操作员令牌
type JWTClaims struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// JWTManager JWT管理器
type JWTManager struct {
	secretKey          []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	now                func() time.Time
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(secretKey string, accessExpiry, refreshExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:          []byte(secretKey),
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
		now:                time.Now,
	}
}

// GenerateAccessToken 生成访问令牌
func (j *JWTManager) GenerateAccessToken(username, role, sessionID string) (string, error) {
	return j.sign(username, role, sessionID, TokenTypeAccess, j.accessTokenExpiry)
}

// GenerateRefreshToken 生成刷新令牌
func (j *JWTManager) GenerateRefreshToken(username, sessionID string) (string, error) {
	return j.sign(username, "", sessionID, TokenTypeRefresh, j.refreshTokenExpiry)
}

func (j *JWTManager) sign(username, role, sessionID, tokenType string, expiry time.Duration) (string, error) {
	now := j.now()
	claims := &JWTClaims{
		Username:  username,
		Role:      role,
		SessionID: sessionID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secretKey)
}

// ValidateToken 验证令牌
func (j *JWTManager) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secretKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(j.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshAccessToken 使用刷新令牌生成新的访问令牌
func (j *JWTManager) RefreshAccessToken(refreshToken, role string) (string, *JWTClaims, error) {
	claims, err := j.ValidateToken(refreshToken)
	if err != nil {
		return "", nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return "", nil, ErrNotRefreshToken
	}

	token, err := j.GenerateAccessToken(claims.Username, role, claims.SessionID)
	return token, claims, err
}

// GetTokenExpiry 获取令牌有效期
func (j *JWTManager) GetTokenExpiry(tokenType string) time.Duration {
	if tokenType == TokenTypeRefresh {
		return j.refreshTokenExpiry
	}
	return j.accessTokenExpiry
}
