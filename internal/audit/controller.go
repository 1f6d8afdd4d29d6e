package audit

import (
	"github.com/gofiber/fiber/v2"

	"github.com/scarecrow/internal/access"
	"github.com/scarecrow/pkg/dal"
	"github.com/scarecrow/pkg/errors"
	"github.com/scarecrow/pkg/middleware"
	"github.com/scarecrow/pkg/response"
	"github.com/scarecrow/pkg/router"
)

// Controller 审计日志接口
// 走Collection查询器,filter用ssql过滤串
type Controller struct {
	recorder  *Recorder
	evaluator *access.Evaluator
}

// NewController 创建审计日志接口
func NewController(rec *Recorder, ev *access.Evaluator) *Controller {
	return &Controller{recorder: rec, evaluator: ev}
}

// Prefix 路由前缀
func (c *Controller) Prefix() string {
	return "/api"
}

// Routes 路由配置
func (c *Controller) Routes(middlewares map[string]fiber.Handler) []router.Route {
	return []router.Route{
		{Method: fiber.MethodGet, Path: "logs", Handler: c.List},
	}
}

// List 审计日志列表
func (c *Controller) List(ctx *fiber.Ctx) error {
	decision := c.evaluator.Evaluate(ctx.UserContext(), middleware.Token(ctx),
		access.OpGet, middleware.ClientIP(ctx), ctx.Path(), "operation_logs")
	if !decision.Allowed {
		return response.MethodNotAllowed(ctx)
	}

	params, err := dal.BindQuery(ctx)
	if err != nil {
		return response.BadRequest(ctx, errors.ErrMalformedRequest.Message)
	}

	result, err := c.recorder.List(ctx.UserContext(), params, decision.Limits)
	if err != nil {
		return response.ServerError(ctx, errors.ErrStoreFailure.Message)
	}

	objects := make([]interface{}, len(result.Items))
	for i, item := range result.Items {
		objects[i] = item
	}
	return response.SuccessPage(ctx, objects, result.TotalItems, result.Page, result.PerPage)
}
