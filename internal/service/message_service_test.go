package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/message"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/user"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/service"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/testutil"
)

type chat struct {
	f      *fixture
	a, b   *user.User
	convID int64
}

func newChat(t *testing.T) *chat {
	t.Helper()
	f := newFixture(t)
	a := testutil.CreateUser(t, f.db, "alice", user.RoleMentee)
	b := testutil.CreateUser(t, f.db, "bob", user.RoleMentor)
	f.connect(t, a.ID, b.ID)
	conv, err := f.convs.GetOrCreate(context.Background(), a.ID, b.ID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	return &chat{f: f, a: a, b: b, convID: conv.ID}
}

func (c *chat) send(t *testing.T, from *user.User, content string) *service.MessageView {
	t.Helper()
	v, err := c.f.messages.Send(context.Background(), service.SendInput{
		ConversationID: c.convID,
		SenderID:       from.ID,
		Content:        content,
	})
	if err != nil {
		t.Fatalf("send %q: %v", content, err)
	}
	return v
}

func TestSend_LengthBoundary(t *testing.T) {
	c := newChat(t)
	ctx := context.Background()

	exact := strings.Repeat("a", message.MaxContentLength)
	if _, err := c.f.messages.Send(ctx, service.SendInput{ConversationID: c.convID, SenderID: c.a.ID, Content: exact}); err != nil {
		t.Fatalf("expected %d characters to be accepted: %v", message.MaxContentLength, err)
	}
	_, err := c.f.messages.Send(ctx, service.SendInput{ConversationID: c.convID, SenderID: c.a.ID, Content: exact + "a"})
	expectKind(t, err, service.KindValidation)

	// 按字符而不是字节计数
	wide := strings.Repeat("好", message.MaxContentLength)
	if _, err := c.f.messages.Send(ctx, service.SendInput{ConversationID: c.convID, SenderID: c.a.ID, Content: wide}); err != nil {
		t.Fatalf("expected %d multibyte characters to be accepted: %v", message.MaxContentLength, err)
	}

	_, err = c.f.messages.Send(ctx, service.SendInput{ConversationID: c.convID, SenderID: c.a.ID, Content: "   "})
	expectKind(t, err, service.KindValidation)
}

func TestSend_DeliversAndValidatesReply(t *testing.T) {
	c := newChat(t)
	ctx := context.Background()

	first := c.send(t, c.a, "hello")
	if first.Sender == nil || first.Sender.ID != c.a.ID {
		t.Fatalf("expected hydrated sender, got %+v", first.Sender)
	}
	got := c.f.rec.Events(service.UserRoom(c.b.ID), service.EventMessageNew)
	if len(got) != 1 {
		t.Fatalf("expected message:new to recipient, got %d", len(got))
	}
	if v := got[0].Payload.(*service.MessageView); v.Content != "hello" {
		t.Fatalf("unexpected payload %+v", v)
	}
	if len(c.f.rec.Events(service.UserRoom(c.a.ID), service.EventMessageNew)) != 0 {
		t.Fatal("sender must not receive its own message:new")
	}

	reply, err := c.f.messages.Send(ctx, service.SendInput{
		ConversationID: c.convID,
		SenderID:       c.b.ID,
		Content:        "hi back",
		ReplyToID:      &first.ID,
	})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.ReplyTo == nil || reply.ReplyTo.ID != first.ID || reply.ReplyTo.Content != "hello" {
		t.Fatalf("expected reply preview, got %+v", reply.ReplyTo)
	}

	// 另一个会话里的消息不能作为回复目标
	other := testutil.CreateUser(t, c.f.db, "carol", user.RoleMentee)
	c.f.connect(t, c.a.ID, other.ID)
	conv2, err := c.f.convs.GetOrCreate(ctx, c.a.ID, other.ID)
	if err != nil {
		t.Fatalf("second conversation: %v", err)
	}
	_, err = c.f.messages.Send(ctx, service.SendInput{
		ConversationID: conv2.ID,
		SenderID:       c.a.ID,
		Content:        "cross",
		ReplyToID:      &first.ID,
	})
	expectKind(t, err, service.KindValidation)

	// 非参与者
	_, err = c.f.messages.Send(ctx, service.SendInput{ConversationID: c.convID, SenderID: other.ID, Content: "intruder"})
	expectKind(t, err, service.KindForbidden)
}

func TestList_MarksOnlyOtherParticipantsMessagesRead(t *testing.T) {
	c := newChat(t)
	ctx := context.Background()

	fromA := c.send(t, c.a, "from a")
	fromB := c.send(t, c.b, "from b")
	c.f.rec.Reset()

	list, err := c.f.messages.List(ctx, c.convID, c.b.ID, 50, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != fromA.ID || list[1].ID != fromB.ID {
		t.Fatalf("expected ascending history, got %+v", list)
	}
	if !list[0].IsRead {
		t.Fatal("expected the other participant's message to be read")
	}
	if list[1].IsRead {
		t.Fatal("requester's own message must stay unread")
	}

	receipts := c.f.rec.Events(service.UserRoom(c.a.ID), service.EventMessageRead)
	if len(receipts) != 1 {
		t.Fatalf("expected one read receipt to the sender, got %d", len(receipts))
	}
	if r := receipts[0].Payload.(*service.ReadReceipt); r.Count != 1 || r.ReaderID != c.b.ID {
		t.Fatalf("unexpected receipt %+v", r)
	}

	// 没有新消息时不再推送回执
	c.f.rec.Reset()
	if _, err := c.f.messages.List(ctx, c.convID, c.b.ID, 50, 0); err != nil {
		t.Fatalf("second list: %v", err)
	}
	if n := len(c.f.rec.Events("", service.EventMessageRead)); n != 0 {
		t.Fatalf("expected no receipt for nothing new, got %d", n)
	}

	receipt, err := c.f.messages.MarkRead(ctx, c.convID, c.a.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if receipt.Count != 1 {
		t.Fatalf("expected a to mark b's message read, got %d", receipt.Count)
	}
}

func TestEdit(t *testing.T) {
	c := newChat(t)
	ctx := context.Background()
	m := c.send(t, c.a, "draft")

	_, err := c.f.messages.Edit(ctx, m.ID, c.b.ID, "hijack")
	expectKind(t, err, service.KindForbidden)
	_, err = c.f.messages.Edit(ctx, m.ID, c.a.ID, strings.Repeat("x", message.MaxContentLength+1))
	expectKind(t, err, service.KindValidation)

	edited, err := c.f.messages.Edit(ctx, m.ID, c.a.ID, "final")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Content != "final" || !edited.IsEdited {
		t.Fatalf("unexpected edited message %+v", edited.Message)
	}
	for _, u := range []*user.User{c.a, c.b} {
		if n := len(c.f.rec.Events(service.UserRoom(u.ID), service.EventMessageEdited)); n != 1 {
			t.Fatalf("expected message:edited to user %d, got %d", u.ID, n)
		}
	}

	if _, err := c.f.messages.DeleteForEveryone(ctx, m.ID, c.a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = c.f.messages.Edit(ctx, m.ID, c.a.ID, "again")
	expectKind(t, err, service.KindInvalidOperation)
}

func TestDelete_ForMeHidesOnlySendersView(t *testing.T) {
	c := newChat(t)
	ctx := context.Background()
	m := c.send(t, c.a, "oops")
	c.f.rec.Reset()

	ev, err := c.f.messages.Delete(ctx, m.ID, c.a.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ev.Scope != service.DeleteScopeMe {
		t.Fatalf("unexpected scope %q", ev.Scope)
	}
	if n := len(c.f.rec.Events(service.UserRoom(c.b.ID), service.EventMessageDeleted)); n != 0 {
		t.Fatalf("recipient must not be told about delete-for-me, got %d events", n)
	}
	if n := len(c.f.rec.Events(service.UserRoom(c.a.ID), service.EventMessageDeleted)); n != 1 {
		t.Fatalf("expected message:deleted to sender, got %d", n)
	}

	mine, err := c.f.messages.List(ctx, c.convID, c.a.ID, 50, 0)
	if err != nil {
		t.Fatalf("list a: %v", err)
	}
	if len(mine) != 0 {
		t.Fatalf("expected sender's view to be empty, got %d", len(mine))
	}
	theirs, err := c.f.messages.List(ctx, c.convID, c.b.ID, 50, 0)
	if err != nil {
		t.Fatalf("list b: %v", err)
	}
	if len(theirs) != 1 || theirs[0].Content != "oops" {
		t.Fatalf("expected recipient to still see the message, got %+v", theirs)
	}

	_, err = c.f.messages.Delete(ctx, m.ID, c.b.ID)
	expectKind(t, err, service.KindForbidden)
}

func TestDeleteForEveryone_TombstoneKeepsReplies(t *testing.T) {
	c := newChat(t)
	ctx := context.Background()
	orig := c.send(t, c.a, "secret")
	reply, err := c.f.messages.Send(ctx, service.SendInput{
		ConversationID: c.convID,
		SenderID:       c.b.ID,
		Content:        "what?",
		ReplyToID:      &orig.ID,
	})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	c.f.rec.Reset()

	if _, err := c.f.messages.DeleteForEveryone(ctx, orig.ID, c.a.ID); err != nil {
		t.Fatalf("delete for everyone: %v", err)
	}
	for _, u := range []*user.User{c.a, c.b} {
		got := c.f.rec.Events(service.UserRoom(u.ID), service.EventMessageDeleted)
		if len(got) != 1 || got[0].Payload.(*service.DeletedEvent).Scope != service.DeleteScopeEveryone {
			t.Fatalf("expected scope=everyone message:deleted to user %d, got %+v", u.ID, got)
		}
	}
	_, err = c.f.messages.DeleteForEveryone(ctx, orig.ID, c.a.ID)
	expectKind(t, err, service.KindConflict)

	list, err := c.f.messages.List(ctx, c.convID, c.b.ID, 50, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected tombstone to stay in history, got %d messages", len(list))
	}
	if !list[0].IsDeleted || list[0].Content != message.DeletedContent {
		t.Fatalf("expected tombstone, got %+v", list[0].Message)
	}
	if list[1].ID != reply.ID || list[1].ReplyTo == nil || !list[1].ReplyTo.IsDeleted {
		t.Fatalf("expected reply to keep a preview of the tombstone, got %+v", list[1].ReplyTo)
	}
}

func TestSearch(t *testing.T) {
	c := newChat(t)
	ctx := context.Background()
	c.send(t, c.a, "Project kickoff")
	c.send(t, c.b, "unrelated")
	late := c.send(t, c.b, "the PROJECT plan")
	gone := c.send(t, c.a, "project secret")
	if _, err := c.f.messages.DeleteForEveryone(ctx, gone.ID, c.a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err := c.f.messages.Search(ctx, c.convID, c.a.ID, "  ")
	expectKind(t, err, service.KindValidation)

	found, err := c.f.messages.Search(ctx, c.convID, c.a.ID, "project")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(found))
	}
	if found[0].ID != late.ID {
		t.Fatalf("expected newest first, got %d", found[0].ID)
	}
}
