package message

import (
	"context"
	"time"
)

// 消息约束
const (
	MaxContentLength = 5000
	DeletedContent   = "[Message deleted]"
)

// Type 消息类型
type Type string

const (
	TypeText   Type = "TEXT"
	TypeImage  Type = "IMAGE"
	TypeFile   Type = "FILE"
	TypeSystem Type = "SYSTEM"
)

func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeFile, TypeSystem:
		return true
	}
	return false
}

// Message 私信消息
type Message struct {
	ID             int64      `gorm:"primaryKey" json:"id"`
	ConversationID int64      `gorm:"index:idx_dm_conv_created;not null" json:"conversationId"`
	SenderID       int64      `gorm:"index;not null" json:"senderId"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	Type           Type       `gorm:"size:16;not null;default:TEXT" json:"type"`
	ReplyToID      *int64     `gorm:"index" json:"replyToId,omitempty"`
	IsRead         bool       `gorm:"not null;default:false" json:"isRead"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	IsEdited       bool       `gorm:"not null;default:false" json:"isEdited"`
	// IsDeleted 为对所有人撤回后的墓碑标记，内容被替换为 DeletedContent
	IsDeleted bool `gorm:"not null;default:false" json:"isDeleted"`
	// HiddenForSender 发送者"仅对我删除"
	HiddenForSender bool      `gorm:"not null;default:false" json:"-"`
	CreatedAt       time.Time `gorm:"index:idx_dm_conv_created" json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (Message) TableName() string {
	return "direct_messages"
}

// Repository 私信仓储接口
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Message, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*Message, error)
	Create(ctx context.Context, m *Message) error
	// ListVisible 按创建时间升序分页，过滤掉 viewerID 自己删除的消息
	ListVisible(ctx context.Context, conversationID, viewerID int64, limit, offset int) ([]*Message, error)
	// MarkReadFrom 把会话中 senderID 发出的未读消息标记为已读，返回影响行数
	MarkReadFrom(ctx context.Context, conversationID, senderID int64, at time.Time) (int64, error)
	UpdateContent(ctx context.Context, id int64, content string, at time.Time) error
	HideForSender(ctx context.Context, id int64) error
	Tombstone(ctx context.Context, id int64, at time.Time) error
	// Search 内容模糊搜索，按时间倒序，排除墓碑与 viewerID 自己删除的消息
	Search(ctx context.Context, conversationID, viewerID int64, keyword string, limit int) ([]*Message, error)
	LastVisible(ctx context.Context, conversationID, viewerID int64) (*Message, error)
	CountUnread(ctx context.Context, conversationID, readerID int64) (int64, error)
}
