package redis

import (
	"sync"

	radix "github.com/mediocregopher/radix/v3"
	"go.uber.org/zap"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/config"
)

var (
	client radix.Client
	once   sync.Once
)

// Init 初始化 Redis 连接池。Redis 只用于令牌缓存，连不上时降级为 nil 客户端继续运行
func Init(cfg *config.RedisConfig) radix.Client {
	once.Do(func() {
		if cfg.Addr == "" {
			zap.L().Info("redis disabled, token cache off")
			return
		}
		pool, err := radix.NewPool("tcp", cfg.Addr, 10)
		if err != nil {
			zap.L().Warn("failed to connect redis, token cache off", zap.String("addr", cfg.Addr), zap.Error(err))
			return
		}
		client = pool
	})
	return client
}
