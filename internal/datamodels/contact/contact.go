package contact

import (
	"context"
	"time"
)

// Type 联系人边类型
type Type string

const (
	TypeMentor      Type = "MENTOR"
	TypeMentee      Type = "MENTEE"
	TypeGroupMember Type = "GROUP_MEMBER"
	TypeAdmin       Type = "ADMIN"
	TypeCustom      Type = "CUSTOM"
)

// Rank 类型强弱，upsert 只允许升级不允许降级
func (t Type) Rank() int {
	switch t {
	case TypeCustom:
		return 1
	case TypeGroupMember:
		return 2
	case TypeAdmin:
		return 3
	case TypeMentor, TypeMentee:
		return 4
	}
	return 0
}

// WeakerThan 返回所有比 t 弱的类型
func (t Type) WeakerThan() []Type {
	var out []Type
	for _, c := range []Type{TypeCustom, TypeGroupMember, TypeAdmin, TypeMentor, TypeMentee} {
		if c.Rank() < t.Rank() {
			out = append(out, c)
		}
	}
	return out
}

func (t Type) Valid() bool {
	return t.Rank() > 0
}

// Contact 有向联系人边：UserID 的通讯录里有 ContactUserID
type Contact struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	UserID        int64     `gorm:"uniqueIndex:idx_contact_pair;not null" json:"userId"`
	ContactUserID int64     `gorm:"uniqueIndex:idx_contact_pair;index;not null" json:"contactUserId"`
	ContactType   Type      `gorm:"size:16;index;not null" json:"contactType"`
	Notes         *string   `gorm:"size:512" json:"notes,omitempty"`
	AddedAt       time.Time `gorm:"autoCreateTime" json:"addedAt"`
}

// RequestStatus 好友申请状态
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestAccepted RequestStatus = "ACCEPTED"
	RequestRejected RequestStatus = "REJECTED"
)

// Request 联系人申请，同一有序用户对只有一条记录
type Request struct {
	ID          int64         `gorm:"primaryKey" json:"id"`
	SenderID    int64         `gorm:"uniqueIndex:idx_request_pair;not null" json:"senderId"`
	ReceiverID  int64         `gorm:"uniqueIndex:idx_request_pair;index;not null" json:"receiverId"`
	Status      RequestStatus `gorm:"size:16;index;not null" json:"status"`
	Message     *string       `gorm:"size:512" json:"message,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	RespondedAt *time.Time    `json:"respondedAt,omitempty"`
}

func (Request) TableName() string {
	return "contact_requests"
}

// Repository 联系人与申请仓储接口
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Contact, error)
	GetByPair(ctx context.Context, userID, contactUserID int64) (*Contact, error)
	ListByUser(ctx context.Context, userID int64) ([]*Contact, error)
	// ListContactUserIDs 返回 userID 通讯录中的全部用户 ID
	ListContactUserIDs(ctx context.Context, userID int64) ([]int64, error)
	// Create 创建新边，边已存在时返回 false
	Create(ctx context.Context, c *Contact) (bool, error)
	// Upsert 幂等创建，已存在时仅在新类型更强时升级类型
	Upsert(ctx context.Context, userID, contactUserID int64, t Type) error
	Delete(ctx context.Context, id int64) error

	GetRequest(ctx context.Context, id int64) (*Request, error)
	GetRequestByPair(ctx context.Context, senderID, receiverID int64) (*Request, error)
	// CreateRequest 创建 PENDING 申请，记录已存在时返回 false
	CreateRequest(ctx context.Context, r *Request) (bool, error)
	// ReopenRequest 仅当申请处于 REJECTED 时重新打开
	ReopenRequest(ctx context.Context, id int64, message *string) (bool, error)
	// RespondRequest 仅当申请处于 PENDING 时更新为 status
	RespondRequest(ctx context.Context, id int64, status RequestStatus, at time.Time) (bool, error)
	ListReceivedRequests(ctx context.Context, receiverID int64, status RequestStatus) ([]*Request, error)
	ListSentRequests(ctx context.Context, senderID int64) ([]*Request, error)
}
