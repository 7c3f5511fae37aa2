package controllers

import (
	"github.com/kataras/iris/v12"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/middleware"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/service"
)

// ConversationController 私聊会话接口
type ConversationController struct {
	conversations *service.ConversationService
}

func NewConversationController(conversations *service.ConversationService) *ConversationController {
	return &ConversationController{conversations: conversations}
}

// List GET /conversations
func (c *ConversationController) List(ctx iris.Context) {
	list, err := c.conversations.ListForUser(ctx.Request().Context(), middleware.CurrentUserID(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, list)
}

// Create POST /conversations，已存在时返回原会话
func (c *ConversationController) Create(ctx iris.Context) {
	var req struct {
		OtherUserID int64 `json:"otherUserId"`
	}
	if !readJSON(ctx, &req) {
		return
	}
	if req.OtherUserID <= 0 {
		badRequest(ctx, "otherUserId is required")
		return
	}
	conv, err := c.conversations.GetOrCreate(ctx.Request().Context(), middleware.CurrentUserID(ctx), req.OtherUserID)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, conv)
}

// Get GET /conversations/{id}
func (c *ConversationController) Get(ctx iris.Context) {
	id, valid := pathID(ctx, "id")
	if !valid {
		return
	}
	conv, err := c.conversations.GetByID(ctx.Request().Context(), id, middleware.CurrentUserID(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	ok(ctx, conv)
}
