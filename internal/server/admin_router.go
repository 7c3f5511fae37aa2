package server

import (
	"errors"

	"github.com/kataras/iris/v12"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/auth"
	webcontrollers "github.com/King-Eliah/mentorship-platform-sub002/web/controllers"
)

// RegisterAdminRoutes 注册管理端路由，端口与前台分离，只在内网开放
func RegisterAdminRoutes(app *iris.Application, a *App) {
	app.Get("/metrics", iris.FromStd(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	api := app.Party("/api")

	api.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "msg": "ok"})
	})

	// 小组创建后由小组模块回调，批量建立组内联系人
	api.Post("/groups/contacts", func(ctx iris.Context) {
		var req struct {
			MentorID  int64   `json:"mentorId"`
			MenteeIDs []int64 `json:"menteeIds"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if req.MentorID <= 0 {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "mentorId is required"})
			return
		}
		if err := a.Contacts.AutoPopulateGroupContacts(ctx.Request().Context(), req.MentorID, req.MenteeIDs); err != nil {
			webcontrollers.WriteError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "group contacts populated"})
	})

	// 用户角色变更或被封禁后清掉令牌缓存，下一次请求重新验签
	api.Post("/auth/token-cache/evict", func(ctx iris.Context) {
		var req struct {
			Token string `json:"token"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if err := a.Verifier.Evict(ctx.Request().Context(), req.Token); err != nil {
			if errors.Is(err, auth.ErrMissingToken) {
				ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "token is required"})
				return
			}
			webcontrollers.WriteError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "token cache evicted"})
	})

	// 用户列表
	api.Get("/users", func(ctx iris.Context) {
		list, err := a.Users.ListAll(ctx.Request().Context())
		if err != nil {
			webcontrollers.WriteError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	// 在线状态：库中的 isOnline 与本进程内的连接、房间
	api.Get("/presence/{userId:int64}", func(ctx iris.Context) {
		id, _ := ctx.Params().GetInt64("userId")
		u, err := a.Users.GetByID(ctx.Request().Context(), id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				ctx.StopWithJSON(404, iris.Map{"code": 404, "msg": "user not found"})
				return
			}
			webcontrollers.WriteError(ctx, err)
			return
		}
		snap := a.Hub.Snapshot(id)
		ctx.JSON(iris.Map{"code": 0, "data": iris.Map{
			"userId":         u.ID,
			"isOnline":       u.IsOnline,
			"lastSeenOnline": u.LastSeenOnline,
			"connections":    snap.Connections,
			"rooms":          snap.Rooms,
		}})
	})

	// 用户通知（由 notification-worker 落库）
	api.Get("/users/{id:int64}/notifications", func(ctx iris.Context) {
		id, _ := ctx.Params().GetInt64("id")
		list, err := a.Notifications.List(ctx.Request().Context(), id, ctx.URLParamIntDefault("limit", 50))
		if err != nil {
			webcontrollers.WriteError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})
}
