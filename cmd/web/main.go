package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/recover"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/config"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/infra/logger"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/server"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (yaml/json/toml)")
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

	a := server.NewApp(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Hub.Run(ctx)

	// 前台：REST + websocket
	app := iris.New()
	app.UseRouter(recover.New())
	server.RegisterRoutes(app, a)

	// 管理端：小组联系人回调、在线状态、metrics
	admin := iris.New()
	admin.UseRouter(recover.New())
	server.RegisterAdminRoutes(admin, a)

	iris.RegisterOnInterrupt(func() {
		cancel()
		// 逐个断开连接，让下线状态落库并通知联系人
		a.Hub.CloseAll()
		sctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = admin.Shutdown(sctx)
	})

	go func() {
		addr := cfg.AdminServer.Addr()
		log.Info("admin server listening", zap.String("addr", addr))
		if err := admin.Listen(addr); err != nil && !errors.Is(err, iris.ErrServerClosed) {
			log.Error("admin server stopped", zap.Error(err))
		}
	}()

	addr := cfg.Server.Addr()
	log.Info("web server listening", zap.String("addr", addr))
	if err := app.Listen(addr, iris.WithoutServerError(iris.ErrServerClosed)); err != nil {
		log.Fatal("failed to run web server", zap.Error(err))
	}

	// 兜底：非中断退出时同样清理在线连接
	a.Hub.CloseAll()
	log.Info("web server stopped")
}
