package server

import (
	"strconv"

	"github.com/kataras/iris/v12"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/middleware"
	webcontrollers "github.com/King-Eliah/mentorship-platform-sub002/web/controllers"
)

// RegisterRoutes 注册前台 REST 接口与 websocket 入口
func RegisterRoutes(app *iris.Application, a *App) {
	api := app.Party("/api")
	api.Use(countErrors(a))

	// 健康检查
	api.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{
			"code": 0,
			"msg":  "ok",
		})
	})

	// 需要登录的接口
	authAPI := api.Party("/",
		middleware.Auth(a.Verifier),
		middleware.RateLimitMiddleware(a.RESTLimiter, nil),
	)

	contactCtrl := webcontrollers.NewContactController(a.Contacts)
	contacts := authAPI.Party("/contacts")
	contacts.Get("/", contactCtrl.List)
	contacts.Get("/browse", contactCtrl.Browse)
	contacts.Post("/", contactCtrl.Add)
	contacts.Delete("/{contactId:int64}", contactCtrl.Remove)
	contacts.Post("/block", contactCtrl.Block)
	contacts.Post("/unblock", contactCtrl.Unblock)
	contacts.Get("/blocked", contactCtrl.Blocked)
	contacts.Post("/request/send", contactCtrl.SendRequest)
	contacts.Get("/request/pending", contactCtrl.Pending)
	contacts.Get("/request/sent", contactCtrl.Sent)
	contacts.Patch("/request/{id:int64}/accept", contactCtrl.Accept)
	contacts.Patch("/request/{id:int64}/reject", contactCtrl.Reject)

	convCtrl := webcontrollers.NewConversationController(a.Conversations)
	conversations := authAPI.Party("/conversations")
	conversations.Get("/", convCtrl.List)
	conversations.Post("/", convCtrl.Create)
	conversations.Get("/{id:int64}", convCtrl.Get)

	msgCtrl := webcontrollers.NewMessageController(a.Messages)
	messages := authAPI.Party("/direct-messages")
	messages.Post("/{conversationId:int64}", msgCtrl.Send)
	messages.Get("/{conversationId:int64}", msgCtrl.List)
	messages.Post("/{conversationId:int64}/read", msgCtrl.MarkRead)
	messages.Get("/{conversationId:int64}/search", msgCtrl.Search)
	messages.Put("/{messageId:int64}", msgCtrl.Edit)
	messages.Delete("/{messageId:int64}", msgCtrl.Delete)
	messages.Delete("/{messageId:int64}/delete-everyone", msgCtrl.DeleteForEveryone)

	// 实时通道，握手时校验令牌
	app.Get("/ws", NewWebsocketHandler(a))
}

// countErrors 统计 4xx/5xx 响应
func countErrors(a *App) iris.Handler {
	return func(ctx iris.Context) {
		ctx.Next()
		if code := ctx.GetStatusCode(); code >= 400 {
			a.Monitor.HTTPErrors.WithLabelValues(strconv.Itoa(code)).Inc()
		}
	}
}
