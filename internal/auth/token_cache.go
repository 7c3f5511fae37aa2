package auth

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	radix "github.com/mediocregopher/radix/v3"
)

// cachedIdentity 缓存中只保存身份与过期时间，不保存原始令牌
type cachedIdentity struct {
	UserID    int64  `json:"uid"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"exp"`
}

// TokenCache 基于一致性哈希分片的令牌校验结果缓存，websocket 断线重连时避免重复验签
type TokenCache struct {
	redis radix.Client
	ring  *ConsistentHashRing
	ttl   time.Duration
}

// NewTokenCache 构建缓存器，redis 为 nil 时所有操作都是空操作
func NewTokenCache(redis radix.Client, ring *ConsistentHashRing, ttl time.Duration) *TokenCache {
	if ring == nil {
		ring = NewConsistentHashRing(nil, 0)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenCache{redis: redis, ring: ring, ttl: ttl}
}

func (c *TokenCache) cacheKey(token string) string {
	sum := sha1.Sum([]byte(token))
	return fmt.Sprintf("mentorship:auth:%s:%s", c.ring.GetNode(token), hex.EncodeToString(sum[:]))
}

// Get 命中时返回还原的 Claims
func (c *TokenCache) Get(ctx context.Context, token string) (*Claims, bool, error) {
	if c.redis == nil {
		return nil, false, nil
	}
	key := c.cacheKey(token)
	var raw []byte
	mn := radix.MaybeNil{Rcv: &raw}
	if err := c.redis.Do(radix.Cmd(&mn, "GET", key)); err != nil {
		return nil, false, err
	}
	if mn.Nil || len(raw) == 0 {
		return nil, false, nil
	}
	var id cachedIdentity
	if err := json.Unmarshal(raw, &id); err != nil || id.UserID == 0 {
		// 数据损坏，清理后走正常解析
		_ = c.redis.Do(radix.Cmd(nil, "DEL", key))
		return nil, false, nil
	}
	return &Claims{
		UserID: id.UserID,
		Email:  id.Email,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Unix(id.ExpiresAt, 0)),
		},
	}, true, nil
}

// Set 写入缓存，TTL 不超过令牌剩余有效期
func (c *TokenCache) Set(ctx context.Context, token string, claims *Claims) error {
	if c.redis == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := c.ttl
	if left := time.Until(claims.ExpiresAt.Time); left < ttl {
		ttl = left
	}
	if ttl < time.Second {
		return nil
	}
	body, err := json.Marshal(cachedIdentity{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Unix(),
	})
	if err != nil {
		return err
	}
	return c.redis.Do(radix.FlatCmd(nil, "SETEX", c.cacheKey(token), int64(ttl/time.Second), body))
}

// Invalidate 删除某个令牌的缓存（登出/封禁时由外部调用）
func (c *TokenCache) Invalidate(ctx context.Context, token string) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Do(radix.Cmd(nil, "DEL", c.cacheKey(token)))
}
