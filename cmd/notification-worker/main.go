package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/config"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/infra/logger"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/infra/mq"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/repository/mysql"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/service"
)

// 通知消费者：从队列读取好友请求等通知并落库
func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file")
	prefetch := pflag.Int("prefetch", 20, "unacked deliveries per consumer")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.Init(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db := mysql.Init(&cfg.MySQL)
	mqConn := mq.Init(&cfg.RabbitMQ, true)
	defer mqConn.Close()

	svc := service.NewNotificationService(mysql.NewNotificationRepository(db))

	ch, err := mqConn.Channel()
	if err != nil {
		log.Fatal("failed to open channel", zap.Error(err))
	}
	defer ch.Close()

	queue := cfg.RabbitMQ.NotificationQueue
	if _, err = ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		log.Fatal("failed to declare queue", zap.String("queue", queue), zap.Error(err))
	}
	if err = ch.Qos(*prefetch, 0, false); err != nil {
		log.Fatal("failed to set qos", zap.Error(err))
	}

	// 手动确认
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("failed to consume", zap.Error(err))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	log.Info("notification worker started", zap.String("queue", queue))
	for {
		select {
		case <-sig:
			log.Info("notification worker stopping")
			return
		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				return
			}
			handleDelivery(svc, d)
		}
	}
}

func handleDelivery(svc *service.NotificationService, d amqp.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := svc.Handle(ctx, d.Body)
	switch {
	case err == nil:
		zap.L().Debug("notification stored", zap.String("id", n.ID), zap.Int64("user_id", n.UserID), zap.String("type", n.Type))
		_ = d.Ack(false)
	case service.KindOf(err) == service.KindValidation:
		// 格式错误，丢弃
		zap.L().Warn("invalid notification dropped", zap.Error(err))
		_ = d.Nack(false, false)
	default:
		// 存储失败，首次投递重新入队，重投仍失败则丢弃
		zap.L().Error("store notification failed", zap.Bool("redelivered", d.Redelivered), zap.Error(err))
		_ = d.Nack(false, !d.Redelivered)
	}
}
