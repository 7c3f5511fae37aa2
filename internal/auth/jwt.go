package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/config"
)

// ErrMissingToken 请求没有携带令牌
var ErrMissingToken = errors.New("missing token")

// Claims 令牌中携带的用户身份，由外部登录服务签发
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken 生成 JWT（签发属于登录服务，这里仅供本地联调与测试）
func GenerateToken(cfg *config.JWTConfig, userID int64, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// ParseToken 解析 JWT，只接受 HS256
func ParseToken(cfg *config.JWTConfig, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID > 0 {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

// StripBearer 去掉 "Bearer " 前缀，兼容直接传裸令牌
func StripBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// Verifier 校验外部签发的令牌，REST 与 websocket 握手共用
type Verifier struct {
	cfg   *config.JWTConfig
	cache *TokenCache
}

// NewVerifier 创建校验器，cache 可为 nil
func NewVerifier(cfg *config.JWTConfig, cache *TokenCache) *Verifier {
	return &Verifier{cfg: cfg, cache: cache}
}

// Verify 先查缓存，未命中再解析并回写缓存；缓存故障只降级不报错
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	token := StripBearer(raw)
	if token == "" {
		return nil, ErrMissingToken
	}
	if v.cache != nil {
		claims, ok, err := v.cache.Get(ctx, token)
		if err != nil {
			zap.L().Warn("token cache get failed", zap.Error(err))
		} else if ok && claims.ExpiresAt != nil && claims.ExpiresAt.After(time.Now()) {
			return claims, nil
		}
	}
	claims, err := ParseToken(v.cfg, token)
	if err != nil {
		return nil, err
	}
	if v.cache != nil {
		if err := v.cache.Set(ctx, token, claims); err != nil {
			zap.L().Warn("token cache set failed", zap.Error(err))
		}
	}
	return claims, nil
}

// Evict 删除令牌的缓存结果，角色变更或封禁后让下一次校验重新验签
func (v *Verifier) Evict(ctx context.Context, raw string) error {
	token := StripBearer(raw)
	if token == "" {
		return ErrMissingToken
	}
	if v.cache == nil {
		return nil
	}
	return v.cache.Invalidate(ctx, token)
}
