package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/conversation"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/message"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/user"
)

const replyPreviewLength = 100

// 删除范围
const (
	DeleteScopeMe       = "me"
	DeleteScopeEveryone = "everyone"
)

// ReplyPreview 被回复消息的摘要
type ReplyPreview struct {
	ID        int64  `json:"id"`
	SenderID  int64  `json:"senderId"`
	Content   string `json:"content"`
	IsDeleted bool   `json:"isDeleted"`
}

// MessageView 带发送者与回复摘要的消息
type MessageView struct {
	*message.Message
	Sender  *user.Summary `json:"sender,omitempty"`
	ReplyTo *ReplyPreview `json:"replyTo,omitempty"`
}

// ReadReceipt 已读回执
type ReadReceipt struct {
	ConversationID int64     `json:"conversationId"`
	ReaderID       int64     `json:"readerId"`
	Count          int64     `json:"count"`
	ReadAt         time.Time `json:"readAt"`
}

// DeletedEvent 删除通知
type DeletedEvent struct {
	MessageID      int64  `json:"messageId"`
	ConversationID int64  `json:"conversationId"`
	Scope          string `json:"scope"`
}

// SendInput 发送消息参数
type SendInput struct {
	ConversationID int64
	SenderID       int64
	Content        string
	Type           message.Type
	ReplyToID      *int64
}

// MessageService 会话内消息的增删改查与已读状态
type MessageService struct {
	messages      message.Repository
	conversations conversation.Repository
	convSvc       *ConversationService
	users         user.Repository
	broadcaster   Broadcaster
	now           func() time.Time
}

// NewMessageService 创建消息服务，参与者校验复用 ConversationService
func NewMessageService(messages message.Repository, conversations conversation.Repository, convSvc *ConversationService, users user.Repository, broadcaster Broadcaster) *MessageService {
	return &MessageService{
		messages:      messages,
		conversations: conversations,
		convSvc:       convSvc,
		users:         users,
		broadcaster:   orNop(broadcaster),
		now:           time.Now,
	}
}

// ValidateContent 内容不能为空白，且不超过 5000 个字符
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return Validation("content is required")
	}
	if utf8.RuneCountInString(content) > message.MaxContentLength {
		return Validation("content must be at most %d characters", message.MaxContentLength)
	}
	return nil
}

// Send 发送消息并推送 message:new 给对方
func (s *MessageService) Send(ctx context.Context, in SendInput) (*MessageView, error) {
	if err := ValidateContent(in.Content); err != nil {
		return nil, err
	}
	if in.Type == "" {
		in.Type = message.TypeText
	}
	if !in.Type.Valid() {
		return nil, Validation("unknown message type %q", in.Type)
	}
	conv, err := s.convSvc.GetByID(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, err
	}
	if in.ReplyToID != nil {
		target, err := s.messages.GetByID(ctx, *in.ReplyToID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, Validation("reply target not found")
			}
			return nil, err
		}
		if target.ConversationID != conv.ID {
			return nil, Validation("reply target belongs to another conversation")
		}
	}

	m := &message.Message{
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		Type:           in.Type,
		ReplyToID:      in.ReplyToID,
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, err
	}
	if err := s.conversations.Touch(ctx, conv.ID, m.CreatedAt); err != nil {
		return nil, err
	}

	views, err := s.hydrate(ctx, []*message.Message{m})
	if err != nil {
		return nil, err
	}
	view := views[0]
	s.broadcaster.EmitToRoom(UserRoom(conv.Other(in.SenderID)), EventMessageNew, view)
	return view, nil
}

// List 拉取历史消息（按时间升序）。拉取本身即确认：对方发来的未读消息会被标记为已读，
// 并向对方推送 message:read。
func (s *MessageService) List(ctx context.Context, conversationID, userID int64, limit, offset int) ([]*MessageView, error) {
	conv, err := s.convSvc.GetByID(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.markRead(ctx, conv, userID); err != nil {
		return nil, err
	}
	list, err := s.messages.ListVisible(ctx, conv.ID, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, list)
}

// MarkRead 只做已读标记，不拉取历史
func (s *MessageService) MarkRead(ctx context.Context, conversationID, userID int64) (*ReadReceipt, error) {
	conv, err := s.convSvc.GetByID(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	return s.markRead(ctx, conv, userID)
}

func (s *MessageService) markRead(ctx context.Context, conv *conversation.Conversation, readerID int64) (*ReadReceipt, error) {
	now := s.now()
	other := conv.Other(readerID)
	n, err := s.messages.MarkReadFrom(ctx, conv.ID, other, now)
	if err != nil {
		return nil, err
	}
	receipt := &ReadReceipt{
		ConversationID: conv.ID,
		ReaderID:       readerID,
		Count:          n,
		ReadAt:         now,
	}
	if n > 0 {
		s.broadcaster.EmitToRoom(UserRoom(other), EventMessageRead, receipt)
	}
	return receipt, nil
}

// Edit 修改消息内容，只有发送者可以修改，已撤回的消息不能修改
func (s *MessageService) Edit(ctx context.Context, messageID, userID int64, content string) (*MessageView, error) {
	if err := ValidateContent(content); err != nil {
		return nil, err
	}
	m, conv, err := s.ownedMessage(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted {
		return nil, InvalidOperation("deleted messages cannot be edited")
	}
	now := s.now()
	if err := s.messages.UpdateContent(ctx, m.ID, content, now); err != nil {
		return nil, err
	}
	m.Content = content
	m.IsEdited = true
	m.UpdatedAt = now

	views, err := s.hydrate(ctx, []*message.Message{m})
	if err != nil {
		return nil, err
	}
	s.broadcaster.EmitToRoom(UserRoom(conv.UserID1), EventMessageEdited, views[0])
	s.broadcaster.EmitToRoom(UserRoom(conv.UserID2), EventMessageEdited, views[0])
	return views[0], nil
}

// Delete "仅对我删除"：只隐藏发送者自己的视图，对方仍能看到原消息
func (s *MessageService) Delete(ctx context.Context, messageID, userID int64) (*DeletedEvent, error) {
	m, _, err := s.ownedMessage(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if !m.HiddenForSender {
		if err := s.messages.HideForSender(ctx, m.ID); err != nil {
			return nil, err
		}
	}
	ev := &DeletedEvent{MessageID: m.ID, ConversationID: m.ConversationID, Scope: DeleteScopeMe}
	s.broadcaster.EmitToRoom(UserRoom(userID), EventMessageDeleted, ev)
	return ev, nil
}

// DeleteForEveryone 对所有人撤回：行保留为墓碑，引用它的回复仍然有效
func (s *MessageService) DeleteForEveryone(ctx context.Context, messageID, userID int64) (*DeletedEvent, error) {
	m, conv, err := s.ownedMessage(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted {
		return nil, Conflict("message has already been deleted")
	}
	if err := s.messages.Tombstone(ctx, m.ID, s.now()); err != nil {
		return nil, err
	}
	ev := &DeletedEvent{MessageID: m.ID, ConversationID: m.ConversationID, Scope: DeleteScopeEveryone}
	s.broadcaster.EmitToRoom(UserRoom(conv.UserID1), EventMessageDeleted, ev)
	s.broadcaster.EmitToRoom(UserRoom(conv.UserID2), EventMessageDeleted, ev)
	return ev, nil
}

// Search 会话内按内容搜索（大小写不敏感），最新的在前
func (s *MessageService) Search(ctx context.Context, conversationID, userID int64, query string) ([]*MessageView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, Validation("query is required")
	}
	conv, err := s.convSvc.GetByID(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	list, err := s.messages.Search(ctx, conv.ID, userID, query, 50)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, list)
}

// ConversationOf 返回消息所在会话（校验参与者），实时层用于定位推送目标
func (s *MessageService) ConversationOf(ctx context.Context, messageID, userID int64) (*conversation.Conversation, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("message not found")
		}
		return nil, err
	}
	return s.convSvc.GetByID(ctx, m.ConversationID, userID)
}

func (s *MessageService) ownedMessage(ctx context.Context, messageID, userID int64) (*message.Message, *conversation.Conversation, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, NotFound("message not found")
		}
		return nil, nil, err
	}
	if m.SenderID != userID {
		return nil, nil, Forbidden("only the sender can modify this message")
	}
	conv, err := s.conversations.GetByID(ctx, m.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	return m, conv, nil
}

// hydrate 补充发送者摘要与回复摘要
func (s *MessageService) hydrate(ctx context.Context, list []*message.Message) ([]*MessageView, error) {
	out := make([]*MessageView, 0, len(list))
	if len(list) == 0 {
		return out, nil
	}

	senderSet := make(map[int64]struct{})
	var replyIDs []int64
	for _, m := range list {
		senderSet[m.SenderID] = struct{}{}
		if m.ReplyToID != nil {
			replyIDs = append(replyIDs, *m.ReplyToID)
		}
	}
	senderIDs := make([]int64, 0, len(senderSet))
	for id := range senderSet {
		senderIDs = append(senderIDs, id)
	}
	users, err := s.users.ListByIDs(ctx, senderIDs)
	if err != nil {
		return nil, err
	}
	senders := make(map[int64]*user.User, len(users))
	for _, u := range users {
		senders[u.ID] = u
	}
	replies := make(map[int64]*message.Message)
	if len(replyIDs) > 0 {
		targets, err := s.messages.GetByIDs(ctx, replyIDs)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			replies[t.ID] = t
		}
	}

	for _, m := range list {
		v := &MessageView{Message: m}
		if u, ok := senders[m.SenderID]; ok {
			v.Sender = summaryPtr(u)
		}
		if m.ReplyToID != nil {
			if t, ok := replies[*m.ReplyToID]; ok {
				v.ReplyTo = &ReplyPreview{
					ID:        t.ID,
					SenderID:  t.SenderID,
					Content:   truncate(t.Content, replyPreviewLength),
					IsDeleted: t.IsDeleted,
				}
			}
		}
		out = append(out, v)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
