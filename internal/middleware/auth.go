package middleware

import (
	"github.com/kataras/iris/v12"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/auth"
)

// 请求上下文中的身份字段
const (
	ValueUserID = "user_id"
	ValueRole   = "role"
	ValueEmail  = "email"
)

// Auth 校验 Authorization 头中的 Bearer 令牌，通过后把用户身份写入 ctx.Values
func Auth(v *auth.Verifier) iris.Handler {
	return func(ctx iris.Context) {
		header := ctx.GetHeader("Authorization")
		if header == "" {
			ctx.StopWithJSON(iris.StatusUnauthorized, iris.Map{"code": iris.StatusUnauthorized, "msg": "missing token"})
			return
		}
		claims, err := v.Verify(ctx.Request().Context(), header)
		if err != nil {
			ctx.StopWithJSON(iris.StatusUnauthorized, iris.Map{"code": iris.StatusUnauthorized, "msg": "invalid token"})
			return
		}
		ctx.Values().Set(ValueUserID, claims.UserID)
		ctx.Values().Set(ValueRole, claims.Role)
		ctx.Values().Set(ValueEmail, claims.Email)
		ctx.Next()
	}
}

// CurrentUserID 取出当前登录用户 ID，未登录返回 0
func CurrentUserID(ctx iris.Context) int64 {
	return ctx.Values().GetInt64Default(ValueUserID, 0)
}
