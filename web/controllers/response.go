package controllers

import (
	"github.com/kataras/iris/v12"
	"go.uber.org/zap"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/service"
)

// StatusForKind 业务错误分类到 HTTP 状态码
func StatusForKind(k service.Kind) int {
	switch k {
	case service.KindValidation, service.KindSelfReference, service.KindInvalidOperation:
		return iris.StatusBadRequest
	case service.KindNotFound:
		return iris.StatusNotFound
	case service.KindForbidden:
		return iris.StatusForbidden
	case service.KindConflict:
		return iris.StatusConflict
	case service.KindUnauthorized:
		return iris.StatusUnauthorized
	}
	return iris.StatusInternalServerError
}

// WriteError 按错误分类写回统一的错误结构，未分类错误只返回通用信息
func WriteError(ctx iris.Context, err error) {
	status := StatusForKind(service.KindOf(err))
	msg := err.Error()
	if status == iris.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("method", ctx.Method()),
			zap.String("path", ctx.Path()),
			zap.Error(err))
		msg = "internal server error"
	}
	ctx.StopWithJSON(status, iris.Map{"code": status, "msg": msg})
}

func ok(ctx iris.Context, data interface{}) {
	ctx.JSON(iris.Map{"code": 0, "data": data})
}

func created(ctx iris.Context, data interface{}) {
	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"code": 0, "data": data})
}

func badRequest(ctx iris.Context, msg string) {
	ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{"code": iris.StatusBadRequest, "msg": msg})
}

// readJSON 解析请求体，失败时直接写回 400
func readJSON(ctx iris.Context, v interface{}) bool {
	if err := ctx.ReadJSON(v); err != nil {
		badRequest(ctx, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// pathID 读取路由中的 int64 参数
func pathID(ctx iris.Context, name string) (int64, bool) {
	id, err := ctx.Params().GetInt64(name)
	if err != nil || id <= 0 {
		badRequest(ctx, "invalid "+name)
		return 0, false
	}
	return id, true
}
