package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/kataras/iris/v12"
	"golang.org/x/time/rate"
)

// KeyedLimiter 按 key（用户/连接）分桶的令牌桶限流器，空闲桶定期清理
type KeyedLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	hits    uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter 创建限流器，rps 或 burst 非正时返回 nil（nil 限流器放行所有请求）
func NewKeyedLimiter(rps float64, burst int, idleTTL time.Duration) *KeyedLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &KeyedLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		buckets: make(map[string]*bucket),
	}
}

// Allow 判断 key 当前是否还有令牌
func (l *KeyedLimiter) Allow(key string) bool {
	if l == nil || key == "" {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.buckets {
			if v.lastSeen.Before(cutoff) {
				delete(l.buckets, k)
			}
		}
	}
	return allowed
}

// Forget 连接断开时释放对应的桶
func (l *KeyedLimiter) Forget(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// RateLimitMiddleware 按登录用户限流，需放在鉴权中间件之后；未登录请求按客户端 IP 限流
func RateLimitMiddleware(l *KeyedLimiter, onLimited func()) iris.Handler {
	return func(ctx iris.Context) {
		key := ctx.RemoteAddr()
		if uid := ctx.Values().GetInt64Default(ValueUserID, 0); uid > 0 {
			key = "user:" + strconv.FormatInt(uid, 10)
		}
		if !l.Allow(key) {
			if onLimited != nil {
				onLimited()
			}
			ctx.StopWithJSON(iris.StatusTooManyRequests, iris.Map{
				"code": iris.StatusTooManyRequests,
				"msg":  "too many requests, please slow down",
			})
			return
		}
		ctx.Next()
	}
}
