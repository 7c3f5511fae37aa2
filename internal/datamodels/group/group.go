package group

import (
	"context"
	"time"
)

// Member 辅导小组成员关系，由小组管理模块写入，这里只读
type Member struct {
	ID        int64     `gorm:"primaryKey"`
	GroupID   int64     `gorm:"uniqueIndex:idx_group_member;not null"`
	UserID    int64     `gorm:"uniqueIndex:idx_group_member;index;not null"`
	CreatedAt time.Time
}

func (Member) TableName() string {
	return "group_members"
}

// Repository 小组成员仓储接口
type Repository interface {
	ListGroupIDsByUser(ctx context.Context, userID int64) ([]int64, error)
}
