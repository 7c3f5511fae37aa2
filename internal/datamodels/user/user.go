package user

import (
	"context"
	"time"
)

// 用户角色
const (
	RoleAdmin  = "ADMIN"
	RoleMentor = "MENTOR"
	RoleMentee = "MENTEE"
)

// User 用户模型（账号由外部系统维护，这里只读取资料并维护在线状态）
type User struct {
	ID             int64      `gorm:"primaryKey" json:"id"`
	Email          string     `gorm:"uniqueIndex;size:191;not null" json:"email"`
	FirstName      string     `gorm:"size:64" json:"firstName"`
	LastName       string     `gorm:"size:64" json:"lastName"`
	Role           string     `gorm:"size:16;index;not null" json:"role"`
	IsActive       bool       `gorm:"index;not null;default:true" json:"isActive"`
	IsOnline       bool       `gorm:"not null;default:false" json:"isOnline"`
	LastSeenOnline *time.Time `json:"lastSeenOnline,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Summary 对外展示的用户摘要
type Summary struct {
	ID             int64      `json:"id"`
	Email          string     `json:"email"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Role           string     `json:"role"`
	IsOnline       bool       `json:"isOnline"`
	LastSeenOnline *time.Time `json:"lastSeenOnline,omitempty"`
}

func (u *User) Summary() Summary {
	return Summary{
		ID:             u.ID,
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Role:           u.Role,
		IsOnline:       u.IsOnline,
		LastSeenOnline: u.LastSeenOnline,
	}
}

// Block 用户拉黑关系，UserID 拉黑了 BlockedUserID
type Block struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	UserID        int64     `gorm:"uniqueIndex:idx_user_block_pair;not null" json:"userId"`
	BlockedUserID int64     `gorm:"uniqueIndex:idx_user_block_pair;index;not null" json:"blockedUserId"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (Block) TableName() string {
	return "user_blocks"
}

// Repository 用户仓储接口
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	ListAll(ctx context.Context) ([]*User, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*User, error)
	ListAdmins(ctx context.Context) ([]*User, error)
	// Search 活跃用户模糊搜索（名字/邮箱，大小写不敏感），排除 excludeID
	Search(ctx context.Context, excludeID int64, keyword string, limit int) ([]*User, error)
	SetPresence(ctx context.Context, id int64, online bool, at time.Time) error
	// ResetPresence 进程启动时把所有残留的在线标记清掉，返回受影响行数
	ResetPresence(ctx context.Context, at time.Time) (int64, error)

	// 拉黑关系，Block 在已存在时返回 false
	Block(ctx context.Context, userID, targetID int64) (bool, error)
	Unblock(ctx context.Context, userID, targetID int64) (bool, error)
	IsBlocked(ctx context.Context, userID, targetID int64) (bool, error)
	ListBlocked(ctx context.Context, userID int64) ([]*User, error)
}
