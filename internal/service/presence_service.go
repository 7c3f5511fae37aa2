package service

import (
	"context"
	"time"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/contact"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/user"
)

// PresenceEvent 在线状态变化
type PresenceEvent struct {
	UserID         int64     `json:"userId"`
	IsOnline       bool      `json:"isOnline"`
	LastSeenOnline time.Time `json:"lastSeenOnline"`
}

// PresenceService 维护用户 isOnline/lastSeenOnline，并推送给该用户的联系人
type PresenceService struct {
	users       user.Repository
	contacts    contact.Repository
	broadcaster Broadcaster
	now         func() time.Time
}

// NewPresenceService 创建在线状态服务
func NewPresenceService(users user.Repository, contacts contact.Repository, broadcaster Broadcaster) *PresenceService {
	return &PresenceService{
		users:       users,
		contacts:    contacts,
		broadcaster: orNop(broadcaster),
		now:         time.Now,
	}
}

// SetOnline 标记上线并通知联系人
func (s *PresenceService) SetOnline(ctx context.Context, userID int64) error {
	return s.transition(ctx, userID, true)
}

// SetOffline 标记下线并通知联系人
func (s *PresenceService) SetOffline(ctx context.Context, userID int64) error {
	return s.transition(ctx, userID, false)
}

// transition 的扇出是 O(联系人数)，调用方需要放到独立 goroutine 中执行
func (s *PresenceService) transition(ctx context.Context, userID int64, online bool) error {
	now := s.now()
	if err := s.users.SetPresence(ctx, userID, online, now); err != nil {
		return err
	}
	ids, err := s.contacts.ListContactUserIDs(ctx, userID)
	if err != nil {
		return err
	}
	event := EventUserOffline
	if online {
		event = EventUserOnline
	}
	payload := PresenceEvent{UserID: userID, IsOnline: online, LastSeenOnline: now}
	for _, id := range ids {
		s.broadcaster.EmitToRoom(UserRoom(id), event, payload)
	}
	return nil
}

// Reset 清掉上次进程遗留的在线标记，在开始接受连接之前调用
func (s *PresenceService) Reset(ctx context.Context) (int64, error) {
	return s.users.ResetPresence(ctx, s.now())
}
