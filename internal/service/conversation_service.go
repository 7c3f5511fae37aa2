package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/contact"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/conversation"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/message"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/user"
)

// ConversationView 会话列表条目
type ConversationView struct {
	*conversation.Conversation
	OtherUser   *user.Summary    `json:"otherUser,omitempty"`
	LastMessage *message.Message `json:"lastMessage,omitempty"`
	UnreadCount int64            `json:"unreadCount"`
}

// ConversationService 定位/创建两人之间唯一的会话
type ConversationService struct {
	conversations conversation.Repository
	contacts      contact.Repository
	users         user.Repository
	messages      message.Repository
}

// NewConversationService 创建会话服务
func NewConversationService(conversations conversation.Repository, contacts contact.Repository, users user.Repository, messages message.Repository) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		contacts:      contacts,
		users:         users,
		messages:      messages,
	}
}

// GetOrCreate 返回 userA 与 userB 之间的会话，不存在时创建。
// 两种顺序都会先查一遍，最终由 pair_key 唯一约束兜底并发创建。
func (s *ConversationService) GetOrCreate(ctx context.Context, userA, userB int64) (*conversation.Conversation, error) {
	if userA == userB {
		return nil, SelfReference("cannot start a conversation with yourself")
	}
	if _, err := s.users.GetByID(ctx, userB); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("user %d not found", userB)
		}
		return nil, err
	}

	for _, pair := range [][2]int64{{userA, userB}, {userB, userA}} {
		c, err := s.conversations.GetByUsers(ctx, pair[0], pair[1])
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if err := s.ensureCanMessage(ctx, userA, userB); err != nil {
		return nil, err
	}
	return s.conversations.CreateIfAbsent(ctx, &conversation.Conversation{
		UserID1: userA,
		UserID2: userB,
		PairKey: conversation.PairKey(userA, userB),
	})
}

// GetByID 查询会话并校验请求者是参与者
func (s *ConversationService) GetByID(ctx context.Context, conversationID, requestingUserID int64) (*conversation.Conversation, error) {
	c, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("conversation not found")
		}
		return nil, err
	}
	if !c.HasParticipant(requestingUserID) {
		return nil, Forbidden("you are not a participant of this conversation")
	}
	return c, nil
}

// ListForUser 返回用户全部会话，按最近活跃倒序，带对方资料、最后一条消息与未读数
func (s *ConversationService) ListForUser(ctx context.Context, userID int64) ([]ConversationView, error) {
	list, err := s.conversations.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	others := make([]int64, 0, len(list))
	for _, c := range list {
		others = append(others, c.Other(userID))
	}
	users, err := s.users.ListByIDs(ctx, others)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*user.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]ConversationView, 0, len(list))
	for _, c := range list {
		v := ConversationView{Conversation: c}
		if u, ok := byID[c.Other(userID)]; ok {
			v.OtherUser = summaryPtr(u)
		}
		if v.LastMessage, err = s.messages.LastVisible(ctx, c.ID, userID); err != nil {
			return nil, err
		}
		if v.UnreadCount, err = s.messages.CountUnread(ctx, c.ID, userID); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ensureCanMessage 新建会话要求双方至少一个方向上存在联系人边，且互相没有拉黑
func (s *ConversationService) ensureCanMessage(ctx context.Context, a, b int64) error {
	if err := ensureNotBlocked(ctx, s.users, a, b); err != nil {
		return err
	}
	for _, pair := range [][2]int64{{a, b}, {b, a}} {
		_, err := s.contacts.GetByPair(ctx, pair[0], pair[1])
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	return Forbidden("you can only message users in your contacts")
}
