package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/contact"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/notification"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/user"
)

const maxRequestMessageLength = 500

// ContactView 通讯录条目，带联系人资料与在线状态
type ContactView struct {
	ID          int64        `json:"id"`
	ContactType contact.Type `json:"contactType"`
	Notes       *string      `json:"notes,omitempty"`
	AddedAt     time.Time    `json:"addedAt"`
	User        user.Summary `json:"user"`
}

// RequestView 联系人申请，带对方资料
type RequestView struct {
	*contact.Request
	Sender   *user.Summary `json:"sender,omitempty"`
	Receiver *user.Summary `json:"receiver,omitempty"`
}

// ContactService 维护有向联系人边、拉黑列表与联系人申请状态机
type ContactService struct {
	contacts    contact.Repository
	users       user.Repository
	notifier    Notifier
	broadcaster Broadcaster
	now         func() time.Time
}

// NewContactService 创建联系人服务
func NewContactService(contacts contact.Repository, users user.Repository, notifier Notifier, broadcaster Broadcaster) *ContactService {
	return &ContactService{
		contacts:    contacts,
		users:       users,
		notifier:    notifier,
		broadcaster: orNop(broadcaster),
		now:         time.Now,
	}
}

// ListContacts 按类型分组返回通讯录，没有联系人时各分组为空数组
func (s *ContactService) ListContacts(ctx context.Context, userID int64) (map[contact.Type][]ContactView, error) {
	list, err := s.contacts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := map[contact.Type][]ContactView{
		contact.TypeMentor:      {},
		contact.TypeMentee:      {},
		contact.TypeGroupMember: {},
		contact.TypeAdmin:       {},
		contact.TypeCustom:      {},
	}
	if len(list) == 0 {
		return out, nil
	}

	ids := make([]int64, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ContactUserID)
	}
	users, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*user.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for _, c := range list {
		u, ok := byID[c.ContactUserID]
		if !ok {
			continue
		}
		out[c.ContactType] = append(out[c.ContactType], ContactView{
			ID:          c.ID,
			ContactType: c.ContactType,
			Notes:       c.Notes,
			AddedAt:     c.AddedAt,
			User:        u.Summary(),
		})
	}
	return out, nil
}

// BrowseUsers 浏览可添加的活跃用户（排除自己），search 为空时返回全部
func (s *ContactService) BrowseUsers(ctx context.Context, userID int64, search string) ([]user.Summary, error) {
	list, err := s.users.Search(ctx, userID, strings.TrimSpace(search), 50)
	if err != nil {
		return nil, err
	}
	out := make([]user.Summary, 0, len(list))
	for _, u := range list {
		out = append(out, u.Summary())
	}
	return out, nil
}

// AddCustomContact 按邮箱添加自定义联系人
func (s *ContactService) AddCustomContact(ctx context.Context, userID int64, email string, notes *string) (*ContactView, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, Validation("email is required")
	}
	target, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("no user with email %s", email)
		}
		return nil, err
	}
	if target.ID == userID {
		return nil, SelfReference("cannot add yourself as a contact")
	}
	if err := s.ensureNotBlocked(ctx, userID, target.ID); err != nil {
		return nil, err
	}

	c := &contact.Contact{
		UserID:        userID,
		ContactUserID: target.ID,
		ContactType:   contact.TypeCustom,
		Notes:         notes,
	}
	created, err := s.contacts.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, Conflict("user is already in contacts")
	}
	return &ContactView{
		ID:          c.ID,
		ContactType: c.ContactType,
		Notes:       c.Notes,
		AddedAt:     c.AddedAt,
		User:        target.Summary(),
	}, nil
}

// RemoveContact 删除联系人，只有 CUSTOM 边可以由用户删除
func (s *ContactService) RemoveContact(ctx context.Context, userID, contactID int64) error {
	c, err := s.contacts.GetByID(ctx, contactID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFound("contact not found")
		}
		return err
	}
	if c.UserID != userID {
		return Forbidden("contact does not belong to you")
	}
	if c.ContactType != contact.TypeCustom {
		return InvalidOperation("%s contacts are managed by the system and cannot be removed", c.ContactType)
	}
	return s.contacts.Delete(ctx, contactID)
}

// BlockUser 拉黑用户
func (s *ContactService) BlockUser(ctx context.Context, userID, targetID int64) error {
	if userID == targetID {
		return InvalidOperation("cannot block yourself")
	}
	if _, err := s.getUser(ctx, targetID); err != nil {
		return err
	}
	ok, err := s.users.Block(ctx, userID, targetID)
	if err != nil {
		return err
	}
	if !ok {
		return Conflict("user is already blocked")
	}
	return nil
}

// UnblockUser 取消拉黑
func (s *ContactService) UnblockUser(ctx context.Context, userID, targetID int64) error {
	if userID == targetID {
		return InvalidOperation("cannot unblock yourself")
	}
	ok, err := s.users.Unblock(ctx, userID, targetID)
	if err != nil {
		return err
	}
	if !ok {
		return Conflict("user is not blocked")
	}
	return nil
}

// ListBlocked 返回拉黑列表
func (s *ContactService) ListBlocked(ctx context.Context, userID int64) ([]user.Summary, error) {
	list, err := s.users.ListBlocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]user.Summary, 0, len(list))
	for _, u := range list {
		out = append(out, u.Summary())
	}
	return out, nil
}

// SendContactRequest 发送联系人申请：
//   - 已是联系人 -> Conflict
//   - 已有 PENDING/ACCEPTED 申请 -> Conflict
//   - 已有 REJECTED 申请 -> 重新打开为 PENDING
//   - 否则新建 PENDING
func (s *ContactService) SendContactRequest(ctx context.Context, senderID, receiverID int64, message *string) (*contact.Request, error) {
	if senderID == receiverID {
		return nil, SelfReference("cannot send a contact request to yourself")
	}
	if message != nil {
		trimmed := strings.TrimSpace(*message)
		if len([]rune(trimmed)) > maxRequestMessageLength {
			return nil, Validation("message must be at most %d characters", maxRequestMessageLength)
		}
		if trimmed == "" {
			message = nil
		} else {
			message = &trimmed
		}
	}
	sender, err := s.getUser(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.getUser(ctx, receiverID); err != nil {
		return nil, err
	}
	if err := s.ensureNotBlocked(ctx, senderID, receiverID); err != nil {
		return nil, err
	}

	if _, err := s.contacts.GetByPair(ctx, senderID, receiverID); err == nil {
		return nil, Conflict("user is already in contacts")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	existing, err := s.contacts.GetRequestByPair(ctx, senderID, receiverID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var req *contact.Request
	switch {
	case existing == nil:
		req = &contact.Request{
			SenderID:   senderID,
			ReceiverID: receiverID,
			Status:     contact.RequestPending,
			Message:    message,
		}
		created, err := s.contacts.CreateRequest(ctx, req)
		if err != nil {
			return nil, err
		}
		if !created {
			return nil, Conflict("contact request already sent")
		}
	case existing.Status == contact.RequestRejected:
		ok, err := s.contacts.ReopenRequest(ctx, existing.ID, message)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, Conflict("contact request already sent")
		}
		if req, err = s.contacts.GetRequest(ctx, existing.ID); err != nil {
			return nil, err
		}
	default:
		return nil, Conflict("contact request already %s", strings.ToLower(string(existing.Status)))
	}

	s.broadcaster.EmitToRoom(UserRoom(receiverID), EventContactRequest, RequestView{Request: req, Sender: summaryPtr(sender)})
	notify(ctx, s.notifier, &notification.Notification{
		UserID:  receiverID,
		Type:    notification.TypeContactRequest,
		Title:   "New contact request",
		Message: fmt.Sprintf("%s wants to add you as a contact", displayName(sender)),
		Data:    mustJSON(map[string]interface{}{"requestId": req.ID, "senderId": senderID}),
	})
	return req, nil
}

// AcceptContactRequest 接受申请并建立双向 CUSTOM 边
func (s *ContactService) AcceptContactRequest(ctx context.Context, requestID, actingUserID int64) (*contact.Request, error) {
	req, err := s.pendingRequestFor(ctx, requestID, actingUserID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ok, err := s.contacts.RespondRequest(ctx, req.ID, contact.RequestAccepted, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, Conflict("contact request has already been processed")
	}
	req.Status = contact.RequestAccepted
	req.RespondedAt = &now

	if err := s.contacts.Upsert(ctx, req.SenderID, req.ReceiverID, contact.TypeCustom); err != nil {
		return nil, err
	}
	if err := s.contacts.Upsert(ctx, req.ReceiverID, req.SenderID, contact.TypeCustom); err != nil {
		return nil, err
	}

	var receiver *user.Summary
	if u, err := s.users.GetByID(ctx, req.ReceiverID); err == nil {
		receiver = summaryPtr(u)
	}
	s.broadcaster.EmitToRoom(UserRoom(req.SenderID), EventContactAccepted, RequestView{Request: req, Receiver: receiver})
	name := "Your contact"
	if receiver != nil {
		name = strings.TrimSpace(receiver.FirstName + " " + receiver.LastName)
	}
	notify(ctx, s.notifier, &notification.Notification{
		UserID:  req.SenderID,
		Type:    notification.TypeContactAccepted,
		Title:   "Contact request accepted",
		Message: fmt.Sprintf("%s accepted your contact request", name),
		Data:    mustJSON(map[string]interface{}{"requestId": req.ID, "receiverId": req.ReceiverID}),
	})
	return req, nil
}

// RejectContactRequest 拒绝申请，不建立联系人边
func (s *ContactService) RejectContactRequest(ctx context.Context, requestID, actingUserID int64) (*contact.Request, error) {
	req, err := s.pendingRequestFor(ctx, requestID, actingUserID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ok, err := s.contacts.RespondRequest(ctx, req.ID, contact.RequestRejected, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, Conflict("contact request has already been processed")
	}
	req.Status = contact.RequestRejected
	req.RespondedAt = &now
	return req, nil
}

// ListPendingRequests 收到的待处理申请
func (s *ContactService) ListPendingRequests(ctx context.Context, userID int64) ([]RequestView, error) {
	list, err := s.contacts.ListReceivedRequests(ctx, userID, contact.RequestPending)
	if err != nil {
		return nil, err
	}
	return s.requestViews(ctx, list, func(r *contact.Request) int64 { return r.SenderID }, true)
}

// ListSentRequests 自己发出的申请（全部状态）
func (s *ContactService) ListSentRequests(ctx context.Context, userID int64) ([]RequestView, error) {
	list, err := s.contacts.ListSentRequests(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.requestViews(ctx, list, func(r *contact.Request) int64 { return r.ReceiverID }, false)
}

// AutoPopulateGroupContacts 创建辅导小组时批量建立系统联系人边。
//
// 复杂度 O(n²)（n 为学员数，学员两两互加），只适用于小规模小组，不能用于大名单。
// 每条边独立 upsert：单条失败记录日志并汇总返回，之前建好的边不回滚。
// 相同成员重复调用不会产生重复边。
func (s *ContactService) AutoPopulateGroupContacts(ctx context.Context, mentorID int64, menteeIDs []int64) error {
	mentees := dedupe(menteeIDs, mentorID)
	admins, err := s.users.ListAdmins(ctx)
	if err != nil {
		return err
	}

	var errs []error
	upsert := func(from, to int64, t contact.Type) {
		if from == to {
			return
		}
		if err := s.contacts.Upsert(ctx, from, to, t); err != nil {
			zap.L().Error("upsert group contact failed",
				zap.Int64("user_id", from),
				zap.Int64("contact_user_id", to),
				zap.String("contact_type", string(t)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("contact %d->%d: %w", from, to, err))
		}
	}

	// 学员 <-> 导师
	for _, m := range mentees {
		upsert(m, mentorID, contact.TypeMentor)
		upsert(mentorID, m, contact.TypeMentee)
	}

	// 学员两两互加：按下标枚举无序对 (i, j)，i < j
	for i := 0; i < len(mentees); i++ {
		for j := i + 1; j < len(mentees); j++ {
			upsert(mentees[i], mentees[j], contact.TypeGroupMember)
			upsert(mentees[j], mentees[i], contact.TypeGroupMember)
		}
	}

	// 全体成员 <-> 管理员
	members := append([]int64{mentorID}, mentees...)
	for _, a := range admins {
		for _, m := range members {
			upsert(m, a.ID, contact.TypeAdmin)
			upsert(a.ID, m, contact.TypeGroupMember)
		}
	}

	return errors.Join(errs...)
}

func (s *ContactService) pendingRequestFor(ctx context.Context, requestID, actingUserID int64) (*contact.Request, error) {
	req, err := s.contacts.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("contact request not found")
		}
		return nil, err
	}
	if req.ReceiverID != actingUserID {
		return nil, Forbidden("only the receiver can respond to this request")
	}
	if req.Status != contact.RequestPending {
		return nil, Conflict("contact request has already been %s", strings.ToLower(string(req.Status)))
	}
	return req, nil
}

func (s *ContactService) requestViews(ctx context.Context, list []*contact.Request, other func(*contact.Request) int64, asSender bool) ([]RequestView, error) {
	ids := make([]int64, 0, len(list))
	for _, r := range list {
		ids = append(ids, other(r))
	}
	users, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*user.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	out := make([]RequestView, 0, len(list))
	for _, r := range list {
		v := RequestView{Request: r}
		if u, ok := byID[other(r)]; ok {
			if asSender {
				v.Sender = summaryPtr(u)
			} else {
				v.Receiver = summaryPtr(u)
			}
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *ContactService) getUser(ctx context.Context, id int64) (*user.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("user %d not found", id)
		}
		return nil, err
	}
	return u, nil
}

func (s *ContactService) ensureNotBlocked(ctx context.Context, a, b int64) error {
	return ensureNotBlocked(ctx, s.users, a, b)
}

// ensureNotBlocked 任意一方拉黑了另一方都视为无权限
func ensureNotBlocked(ctx context.Context, users user.Repository, a, b int64) error {
	blocked, err := users.IsBlocked(ctx, a, b)
	if err != nil {
		return err
	}
	if blocked {
		return Forbidden("you have blocked this user")
	}
	blocked, err = users.IsBlocked(ctx, b, a)
	if err != nil {
		return err
	}
	if blocked {
		return Forbidden("this user is not accepting contact from you")
	}
	return nil
}

func dedupe(ids []int64, exclude int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == exclude || id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func summaryPtr(u *user.User) *user.Summary {
	if u == nil {
		return nil
	}
	sum := u.Summary()
	return &sum
}

func displayName(u *user.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

func mustJSON(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
