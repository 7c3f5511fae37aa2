package mysql

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/config"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/contact"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/conversation"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/group"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/message"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/notification"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/user"
)

var (
	db   *gorm.DB
	once sync.Once
)

// Init 初始化全局 GORM 实例并自动迁移表结构
func Init(cfg *config.MySQLConfig) *gorm.DB {
	once.Do(func() {
		var err error
		db, err = Open(cfg)
		if err != nil {
			zap.L().Fatal("failed to connect database", zap.String("driver", cfg.Driver), zap.Error(err))
		}
		if err = Migrate(db); err != nil {
			zap.L().Fatal("auto migrate failed", zap.Error(err))
		}
	})
	return db
}

// Open 按驱动打开数据库连接，不做迁移
func Open(cfg *config.MySQLConfig) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: newGormLogger()}
	switch strings.ToLower(cfg.Driver) {
	case "", "mysql":
		return gorm.Open(mysql.Open(cfg.DSN), gcfg)
	case "sqlite":
		conn, err := gorm.Open(sqlite.Open(cfg.DSN), gcfg)
		if err != nil {
			return nil, err
		}
		// sqlite 单写者，避免并发写入 SQLITE_BUSY
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return conn, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// zapWriter 把 GORM 日志转到全局 zap logger
type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	zap.L().Sugar().Warnf(format, args...)
}

// newGormLogger 只输出慢查询与错误；按主键/唯一键查不到记录属于正常分支，不打印
func newGormLogger() gormlogger.Interface {
	return gormlogger.New(zapWriter{}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Migrate 自动迁移本服务涉及的全部表
func Migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&user.User{},
		&user.Block{},
		&group.Member{},
		&contact.Contact{},
		&contact.Request{},
		&conversation.Conversation{},
		&message.Message{},
		&notification.Notification{},
	)
}

// likePattern 构造大小写不敏感的包含匹配模式，使用 ! 作为转义符以兼容 MySQL 与 SQLite
func likePattern(keyword string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(strings.ToLower(keyword)) + "%"
}
