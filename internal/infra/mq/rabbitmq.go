package mq

import (
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/config"
)

var (
	conn *amqp.Connection
	once sync.Once
)

// Init 初始化 RabbitMQ 连接。required 为 false 时（web 服务）连不上只告警，通知投递会失败但不影响聊天
func Init(cfg *config.RabbitMQConfig, required bool) *amqp.Connection {
	once.Do(func() {
		c, err := amqp.Dial(cfg.URL)
		if err != nil {
			if required {
				zap.L().Fatal("failed to connect rabbitmq", zap.Error(err))
			}
			zap.L().Warn("failed to connect rabbitmq, notifications disabled", zap.Error(err))
			return
		}
		conn = c
	})
	return conn
}
