package controllers

import (
	"github.com/kataras/iris/v12"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/middleware"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/service"
)

// ContactController 通讯录、屏蔽与好友请求接口
type ContactController struct {
	contacts *service.ContactService
}

// NewContactController 创建控制器
func NewContactController(contacts *service.ContactService) *ContactController {
	return &ContactController{contacts: contacts}
}

// List GET /contacts，按联系人类型分组
func (c *ContactController) List(ctx iris.Context) {
	groups, err := c.contacts.ListContacts(ctx.Request().Context(), middleware.CurrentUserID(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, groups)
}

// Browse GET /contacts/browse?search=
func (c *ContactController) Browse(ctx iris.Context) {
	list, err := c.contacts.BrowseUsers(ctx.Request().Context(), middleware.CurrentUserID(ctx), ctx.URLParam("search"))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, list)
}

// Add POST /contacts，按邮箱添加自定义联系人
func (c *ContactController) Add(ctx iris.Context) {
	var req struct {
		Email string  `json:"email"`
		Notes *string `json:"notes"`
	}
	if !readJSON(ctx, &req) {
		return
	}
	view, err := c.contacts.AddCustomContact(ctx.Request().Context(), middleware.CurrentUserID(ctx), req.Email, req.Notes)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	created(ctx, view)
}

// Remove DELETE /contacts/{contactId}
func (c *ContactController) Remove(ctx iris.Context) {
	id, valid := pathID(ctx, "contactId")
	if !valid {
		return
	}
	if err := c.contacts.RemoveContact(ctx.Request().Context(), middleware.CurrentUserID(ctx), id); err != nil {
		WriteError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"code": 0, "msg": "contact removed"})
}

type targetUserRequest struct {
	UserID int64 `json:"userId"`
}

// Block POST /contacts/block
func (c *ContactController) Block(ctx iris.Context) {
	var req targetUserRequest
	if !readJSON(ctx, &req) {
		return
	}
	if err := c.contacts.BlockUser(ctx.Request().Context(), middleware.CurrentUserID(ctx), req.UserID); err != nil {
		WriteError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"code": 0, "msg": "user blocked"})
}

// Unblock POST /contacts/unblock
func (c *ContactController) Unblock(ctx iris.Context) {
	var req targetUserRequest
	if !readJSON(ctx, &req) {
		return
	}
	if err := c.contacts.UnblockUser(ctx.Request().Context(), middleware.CurrentUserID(ctx), req.UserID); err != nil {
		WriteError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"code": 0, "msg": "user unblocked"})
}

// Blocked GET /contacts/blocked
func (c *ContactController) Blocked(ctx iris.Context) {
	list, err := c.contacts.ListBlocked(ctx.Request().Context(), middleware.CurrentUserID(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, list)
}

// SendRequest POST /contacts/request/send
func (c *ContactController) SendRequest(ctx iris.Context) {
	var req struct {
		ReceiverID int64   `json:"receiverId"`
		Message    *string `json:"message"`
	}
	if !readJSON(ctx, &req) {
		return
	}
	r, err := c.contacts.SendContactRequest(ctx.Request().Context(), middleware.CurrentUserID(ctx), req.ReceiverID, req.Message)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	created(ctx, r)
}

// Pending GET /contacts/request/pending
func (c *ContactController) Pending(ctx iris.Context) {
	list, err := c.contacts.ListPendingRequests(ctx.Request().Context(), middleware.CurrentUserID(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, list)
}

// Sent GET /contacts/request/sent
func (c *ContactController) Sent(ctx iris.Context) {
	list, err := c.contacts.ListSentRequests(ctx.Request().Context(), middleware.CurrentUserID(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, list)
}

// Accept PATCH /contacts/request/{id}/accept
func (c *ContactController) Accept(ctx iris.Context) {
	id, valid := pathID(ctx, "id")
	if !valid {
		return
	}
	r, err := c.contacts.AcceptContactRequest(ctx.Request().Context(), id, middleware.CurrentUserID(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, r)
}

// Reject PATCH /contacts/request/{id}/reject
func (c *ContactController) Reject(ctx iris.Context) {
	id, valid := pathID(ctx, "id")
	if !valid {
		return
	}
	r, err := c.contacts.RejectContactRequest(ctx.Request().Context(), id, middleware.CurrentUserID(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, r)
}
