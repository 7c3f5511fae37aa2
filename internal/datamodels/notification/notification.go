package notification

import (
	"context"
	"time"
)

// 通知类型
const (
	TypeContactRequest  = "CONTACT_REQUEST"
	TypeContactAccepted = "CONTACT_ACCEPTED"
)

// Notification 站内通知，由 notification-worker 从队列消费后落库
type Notification struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    int64     `gorm:"index;not null" json:"userId"`
	Type      string    `gorm:"size:32;index;not null" json:"type"`
	Title     string    `gorm:"size:128;not null" json:"title"`
	Message   string    `gorm:"size:512" json:"message"`
	Data      string    `gorm:"type:text" json:"data,omitempty"`
	IsRead    bool      `gorm:"not null;default:false" json:"isRead"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

// Repository 通知仓储接口
type Repository interface {
	// Save 按 ID 幂等写入，重复投递的消息不会产生重复通知
	Save(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]*Notification, error)
}
