package controllers

import (
	"github.com/kataras/iris/v12"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/message"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/middleware"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// MessageController 私聊消息接口
type MessageController struct {
	messages *service.MessageService
}

func NewMessageController(messages *service.MessageService) *MessageController {
	return &MessageController{messages: messages}
}

// Send POST /direct-messages/{conversationId}
func (c *MessageController) Send(ctx iris.Context) {
	convID, valid := pathID(ctx, "conversationId")
	if !valid {
		return
	}
	var req struct {
		Content   string       `json:"content"`
		Type      message.Type `json:"type"`
		ReplyToID *int64       `json:"replyToId"`
	}
	if !readJSON(ctx, &req) {
		return
	}
	view, err := c.messages.Send(ctx.Request().Context(), service.SendInput{
		ConversationID: convID,
		SenderID:       middleware.CurrentUserID(ctx),
		Content:        req.Content,
		Type:           req.Type,
		ReplyToID:      req.ReplyToID,
	})
	if err != nil {
		WriteError(ctx, err)
		return
	}
	created(ctx, view)
}

// List GET /direct-messages/{conversationId}?limit&offset
func (c *MessageController) List(ctx iris.Context) {
	convID, valid := pathID(ctx, "conversationId")
	if !valid {
		return
	}
	limit := ctx.URLParamIntDefault("limit", defaultPageSize)
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := ctx.URLParamIntDefault("offset", 0)
	if offset < 0 {
		offset = 0
	}
	list, err := c.messages.List(ctx.Request().Context(), convID, middleware.CurrentUserID(ctx), limit, offset)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, list)
}

// MarkRead POST /direct-messages/{conversationId}/read
func (c *MessageController) MarkRead(ctx iris.Context) {
	convID, valid := pathID(ctx, "conversationId")
	if !valid {
		return
	}
	receipt, err := c.messages.MarkRead(ctx.Request().Context(), convID, middleware.CurrentUserID(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, receipt)
}

// Edit PUT /direct-messages/{messageId}
func (c *MessageController) Edit(ctx iris.Context) {
	id, valid := pathID(ctx, "messageId")
	if !valid {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if !readJSON(ctx, &req) {
		return
	}
	view, err := c.messages.Edit(ctx.Request().Context(), id, middleware.CurrentUserID(ctx), req.Content)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, view)
}

// Delete DELETE /direct-messages/{messageId}，仅对自己隐藏
func (c *MessageController) Delete(ctx iris.Context) {
	id, valid := pathID(ctx, "messageId")
	if !valid {
		return
	}
	ev, err := c.messages.Delete(ctx.Request().Context(), id, middleware.CurrentUserID(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, ev)
}

// DeleteForEveryone DELETE /direct-messages/{messageId}/delete-everyone
func (c *MessageController) DeleteForEveryone(ctx iris.Context) {
	id, valid := pathID(ctx, "messageId")
	if !valid {
		return
	}
	ev, err := c.messages.DeleteForEveryone(ctx.Request().Context(), id, middleware.CurrentUserID(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, ev)
}

// Search GET /direct-messages/{conversationId}/search?query=
func (c *MessageController) Search(ctx iris.Context) {
	convID, valid := pathID(ctx, "conversationId")
	if !valid {
		return
	}
	list, err := c.messages.Search(ctx.Request().Context(), convID, middleware.CurrentUserID(ctx), ctx.URLParam("query"))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, list)
}
