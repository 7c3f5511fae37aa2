package server

import (
	"context"
	"time"

	radix "github.com/mediocregopher/radix/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/auth"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/config"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/group"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/user"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/infra/mq"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/infra/redis"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/middleware"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/realtime"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/repository/mysql"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/service"
)

// App 进程内共享的服务实例，前台与管理端路由共用
type App struct {
	Cfg      *config.Config
	Registry *prometheus.Registry
	Monitor  *service.Monitor
	Verifier *auth.Verifier

	Users  user.Repository
	Groups group.Repository

	Contacts      *service.ContactService
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Presence      *service.PresenceService
	Notifications *service.NotificationService

	Hub         *realtime.Hub
	Gateway     *realtime.Gateway
	RESTLimiter *middleware.KeyedLimiter
}

// NewApp 初始化基础设施并组装服务。Redis 与 RabbitMQ 不可用时降级运行
func NewApp(cfg *config.Config) *App {
	db := mysql.Init(&cfg.MySQL)
	redisClient := redis.Init(&cfg.Redis)
	mqConn := mq.Init(&cfg.RabbitMQ, false)
	a := Build(cfg, db, redisClient, mqConn)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := a.Presence.Reset(ctx)
	if err != nil {
		zap.L().Fatal("reset presence failed", zap.Error(err))
	}
	if n > 0 {
		zap.L().Info("cleared stale online flags", zap.Int64("users", n))
	}
	return a
}

// Build 用给定的连接组装服务，redisClient / mqConn 可为 nil
func Build(cfg *config.Config, db *gorm.DB, redisClient radix.Client, mqConn *amqp.Connection) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	monitor := service.NewMonitor(reg)

	var cache *auth.TokenCache
	if redisClient != nil {
		ring := auth.NewConsistentHashRing(cfg.Auth.Nodes, cfg.Auth.HashReplicas)
		cache = auth.NewTokenCache(redisClient, ring, time.Duration(cfg.Auth.TokenCacheTTLSeconds)*time.Second)
	}

	var notifier service.Notifier
	if mqConn != nil {
		notifier = service.NewMQNotifier(mqConn, cfg.RabbitMQ.NotificationQueue)
	}

	userRepo := mysql.NewUserRepository(db)
	groupRepo := mysql.NewGroupRepository(db)
	contactRepo := mysql.NewContactRepository(db)
	convRepo := mysql.NewConversationRepository(db)
	messageRepo := mysql.NewMessageRepository(db)

	hub := realtime.NewHub(monitor, cfg.Realtime.IdleTimeout)

	contactSvc := service.NewContactService(contactRepo, userRepo, notifier, hub)
	convSvc := service.NewConversationService(convRepo, contactRepo, userRepo, messageRepo)
	messageSvc := service.NewMessageService(messageRepo, convRepo, convSvc, userRepo, hub)
	presenceSvc := service.NewPresenceService(userRepo, contactRepo, hub)
	hub.SetPresence(presenceSvc)

	eventLimiter := middleware.NewKeyedLimiter(cfg.Realtime.EventsPerSecond, cfg.Realtime.EventBurst, 0)
	gateway := realtime.NewGateway(hub, messageSvc, convSvc, eventLimiter, monitor)

	return &App{
		Cfg:           cfg,
		Registry:      reg,
		Monitor:       monitor,
		Verifier:      auth.NewVerifier(&cfg.JWT, cache),
		Users:         userRepo,
		Groups:        groupRepo,
		Contacts:      contactSvc,
		Conversations: convSvc,
		Messages:      messageSvc,
		Presence:      presenceSvc,
		Notifications: service.NewNotificationService(mysql.NewNotificationRepository(db)),
		Hub:           hub,
		Gateway:       gateway,
		RESTLimiter:   middleware.NewKeyedLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, 0),
	}
}
