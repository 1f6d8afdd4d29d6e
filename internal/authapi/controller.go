package authapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/scarecrow/internal/audit"
	"github.com/scarecrow/internal/token"
	"github.com/scarecrow/pkg/errors"
	"github.com/scarecrow/pkg/middleware"
	"github.com/scarecrow/pkg/response"
	"github.com/scarecrow/pkg/router"
)

// Controller 认证接口
type Controller struct {
	tokens   *token.Service
	recorder *audit.Recorder
}

// NewController 创建认证接口
func NewController(tokens *token.Service, recorder *audit.Recorder) *Controller {
	return &Controller{tokens: tokens, recorder: recorder}
}

// Prefix 路由前缀
func (c *Controller) Prefix() string {
	return "/api"
}

// Routes 路由配置
// 静态路径先于通用数据接口注册,避免被:table吞掉
func (c *Controller) Routes(middlewares map[string]fiber.Handler) []router.Route {
	var loginMws *[]fiber.Handler
	if limiter, ok := middlewares["ratelimit"]; ok {
		loginMws = &[]fiber.Handler{limiter}
	}
	return []router.Route{
		{Method: fiber.MethodPost, Path: "login", Handler: c.Login, Middlewares: loginMws},
		{Method: fiber.MethodGet, Path: "logout", Handler: c.Logout},
		{Method: fiber.MethodPost, Path: "password_reset", Handler: c.PasswordReset},
	}
}

// Login 登录签发令牌
func (c *Controller) Login(ctx *fiber.Ctx) error {
	var creds token.Credentials
	if err := ctx.BodyParser(&creds); err != nil {
		return response.BadRequest(ctx, errors.ErrMalformedRequest.Message)
	}

	grant, err := c.tokens.Issue(ctx.UserContext(), creds, middleware.ClientIP(ctx))
	if err != nil {
		if errors.Is(err, errors.ErrInvalidCredential) {
			return response.Success(ctx, fiber.Map{
				"login":  creds.Login,
				"status": false,
			})
		}
		return response.ServerError(ctx, errors.GetMessage(err))
	}

	return response.Success(ctx, fiber.Map{
		"login":    creds.Login,
		"status":   true,
		"token":    grant.Token,
		"username": grant.Username,
		"nickname": grant.Nickname,
	})
}

// Logout 登出
func (c *Controller) Logout(ctx *fiber.Ctx) error {
	tokenStr := middleware.Token(ctx)
	addr := middleware.ClientIP(ctx)

	ok := c.tokens.Revoke(ctx.UserContext(), tokenStr, addr)
	if ok {
		c.record(ctx, tokenStr, "logout")
	}
	return response.Success(ctx, fiber.Map{"logout_status": ok})
}

// PasswordReset 重置密码
// 成功后旧令牌随登录地址哨兵化而失效
func (c *Controller) PasswordReset(ctx *fiber.Ctx) error {
	var body struct {
		Password string `json:"password"`
	}
	if err := ctx.BodyParser(&body); err != nil {
		return response.BadRequest(ctx, errors.ErrMalformedRequest.Message)
	}

	tokenStr := middleware.Token(ctx)
	addr := middleware.ClientIP(ctx)

	// 留痕要在哨兵化之前取主体,之后令牌已不可复核
	claims := c.tokens.Validate(tokenStr)

	ok := c.tokens.ResetPassword(ctx.UserContext(), tokenStr, addr, body.Password)
	if ok && claims != nil {
		c.recorder.Record(ctx.UserContext(),
			claims.UserCode, claims.RoleCode,
			"password_reset", addr,
			"", "", ctx.Path(),
		)
	}
	return response.Success(ctx, fiber.Map{"password_reset": ok})
}

// record 认证动作留痕
func (c *Controller) record(ctx *fiber.Ctx, tokenStr, op string) {
	claims := c.tokens.Validate(tokenStr)
	if claims == nil {
		return
	}
	c.recorder.Record(ctx.UserContext(),
		claims.UserCode, claims.RoleCode,
		op, middleware.ClientIP(ctx),
		"", "", ctx.Path(),
	)
}
