package conversation

import (
	"context"
	"fmt"
	"time"
)

// Conversation 两个用户之间唯一的一对一会话
type Conversation struct {
	ID      int64  `gorm:"primaryKey" json:"id"`
	UserID1 int64  `gorm:"column:user_id1;index;not null" json:"userId1"`
	UserID2 int64  `gorm:"column:user_id2;index;not null" json:"userId2"`
	PairKey string `gorm:"uniqueIndex;size:64;not null" json:"-"`
	// UpdatedAt 每次有新消息时刷新，会话列表按它倒序
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `gorm:"index" json:"updatedAt"`
}

// PairKey 无序用户对的唯一键，(a,b) 与 (b,a) 结果相同
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// HasParticipant 判断用户是否是会话参与者
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.UserID1 == userID || c.UserID2 == userID
}

// Other 返回另一位参与者
func (c *Conversation) Other(userID int64) int64 {
	if c.UserID1 == userID {
		return c.UserID2
	}
	return c.UserID1
}

// Repository 会话仓储接口
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	// GetByUsers 按有序参与者查询
	GetByUsers(ctx context.Context, userID1, userID2 int64) (*Conversation, error)
	// CreateIfAbsent 按 PairKey 幂等创建，返回最终落库的会话
	CreateIfAbsent(ctx context.Context, c *Conversation) (*Conversation, error)
	ListByUser(ctx context.Context, userID int64) ([]*Conversation, error)
	Touch(ctx context.Context, id int64, at time.Time) error
}
