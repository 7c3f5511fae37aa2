// Package testutil 测试辅助：临时 SQLite 数据库、用户构造、事件记录器
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/config"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/user"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/repository/mysql"
)

var userSeq atomic.Int64

// OpenDB 在 t.TempDir() 下创建迁移好的 SQLite 数据库，测试结束自动关闭
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	cfg := &config.MySQLConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "mentorship.db"),
	}
	db, err := mysql.Open(cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := mysql.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateUser 创建一个活跃用户，邮箱自动去重
func CreateUser(t testing.TB, db *gorm.DB, firstName, role string) *user.User {
	t.Helper()
	n := userSeq.Add(1)
	u := &user.User{
		Email:     fmt.Sprintf("%s%d@example.com", firstName, n),
		FirstName: firstName,
		LastName:  "Test",
		Role:      role,
		IsActive:  true,
	}
	if err := mysql.NewUserRepository(db).Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", firstName, err)
	}
	return u
}

// Emitted 一次房间推送
type Emitted struct {
	Room    string
	Event   string
	Payload interface{}
}

// Recorder 记录所有推送的 Broadcaster
type Recorder struct {
	mu     sync.Mutex
	events []Emitted
}

func (r *Recorder) EmitToRoom(room, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Emitted{Room: room, Event: event, Payload: payload})
}

// Events 返回推送到 room 的 event 事件，room 或 event 为空表示不过滤
func (r *Recorder) Events(room, event string) []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Emitted
	for _, e := range r.events {
		if (room == "" || e.Room == room) && (event == "" || e.Event == event) {
			out = append(out, e)
		}
	}
	return out
}

// Reset 清空记录
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
