package crud

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/scarecrow/internal/access"
	"github.com/scarecrow/internal/audit"
	"github.com/scarecrow/internal/resolver"
	"github.com/scarecrow/internal/schema"
	"github.com/scarecrow/pkg/auth"
	"github.com/scarecrow/pkg/config"
	"github.com/scarecrow/pkg/errors"
	"github.com/scarecrow/pkg/middleware"
	"github.com/scarecrow/pkg/response"
	"github.com/scarecrow/pkg/router"
	"github.com/scarecrow/pkg/ssql"
)

// Controller 通用数据接口
// 任何已注册表经由统一的鉴权、过滤、审计通道读写
type Controller struct {
	store     *schema.Store
	resolver  *resolver.Resolver
	evaluator *access.Evaluator
	recorder  *audit.Recorder
	cfg       *config.CRUDConfig
}

// NewController 创建通用数据接口
func NewController(store *schema.Store, rv *resolver.Resolver, ev *access.Evaluator, rec *audit.Recorder, cfg *config.CRUDConfig) *Controller {
	return &Controller{
		store:     store,
		resolver:  rv,
		evaluator: ev,
		recorder:  rec,
		cfg:       cfg,
	}
}

// Prefix 路由前缀
func (c *Controller) Prefix() string {
	return "/api"
}

// Routes 路由配置
func (c *Controller) Routes(middlewares map[string]fiber.Handler) []router.Route {
	return []router.Route{
		{Method: fiber.MethodGet, Path: ":table", Handler: c.Get},
		{Method: fiber.MethodGet, Path: ":table/*", Handler: c.Get},
		{Method: fiber.MethodPost, Path: ":table", Handler: c.Create},
		{Method: fiber.MethodPut, Path: ":table", Handler: c.Update},
		{Method: fiber.MethodPut, Path: ":table/*", Handler: c.Update},
		{Method: fiber.MethodDelete, Path: ":table", Handler: c.Delete},
		{Method: fiber.MethodDelete, Path: ":table/*", Handler: c.Delete},
	}
}

// gate 鉴权闸口
// table为查询目标表,行级约束按它装配;拒绝一律以同一形态回应
func (c *Controller) gate(ctx *fiber.Ctx, table string) (access.Decision, bool) {
	op := middleware.Operation(ctx.Method())
	addr := middleware.ClientIP(ctx)

	decision := c.evaluator.Evaluate(ctx.UserContext(), middleware.Token(ctx), op, addr, ctx.Path(), table)
	return decision, decision.Allowed
}

// params 列表查询参数
type params struct {
	Page      int
	PerPage   int
	Offset    int
	Limit     int
	OrderBy   string
	Direction string
	Single    bool
	Distinct  bool
	Filters   []ssql.Predicate
}

// parseParams 解析查询参数
func (c *Controller) parseParams(ctx *fiber.Ctx) (*params, error) {
	p := &params{
		Page:      ctx.QueryInt("page", 1),
		PerPage:   ctx.QueryInt("results_per_page", c.cfg.ResultsPerPage),
		Offset:    ctx.QueryInt("offset", 0),
		Limit:     ctx.QueryInt("limit", 0),
		OrderBy:   ctx.Query("order_by"),
		Direction: ctx.Query("direction"),
		Single:    ctx.QueryBool("single"),
		Distinct:  ctx.QueryBool("distinct"),
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 || p.PerPage > c.cfg.MaxResultsPerPage {
		p.PerPage = c.cfg.ResultsPerPage
	}
	if p.Offset < 0 || p.Limit < 0 {
		return nil, errors.ErrMalformedRequest
	}
	if p.Direction != "asc" && p.Direction != "desc" {
		p.Direction = ""
	}

	if raw := ctx.Query("filters"); raw != "" {
		preds, err := ssql.ParsePredicates(raw)
		if err != nil {
			return nil, errors.ErrMalformedRequest
		}
		p.Filters = preds
	}
	return p, nil
}

// buildExpr 合并过滤条件与行级约束
func buildExpr(filters []ssql.Predicate, limits ssql.Expression) (ssql.Expression, error) {
	expr, err := ssql.PredicatesToExpression(filters)
	if err != nil {
		return nil, errors.ErrMalformedRequest
	}
	switch {
	case expr == nil:
		return limits, nil
	case limits == nil:
		return expr, nil
	default:
		return &ssql.LogicExpression{
			Logic:       ssql.LogicAnd,
			Expressions: []ssql.Expression{expr, limits},
		}, nil
	}
}

// Get 查询
// 简单路径查本表,链路路径交给跨表解析
func (c *Controller) Get(ctx *fiber.Ctx) error {
	cp, err := resolver.ParsePath(ctx.Params("table"), ctx.Params("*"))
	if err != nil {
		return response.BadRequest(ctx, errors.GetMessage(err))
	}

	decision, ok := c.gate(ctx, cp.Keyword())
	if !ok {
		return response.MethodNotAllowed(ctx)
	}

	p, err := c.parseParams(ctx)
	if err != nil {
		return response.BadRequest(ctx, errors.GetMessage(err))
	}

	if cp.IsCompound() {
		return c.compoundGet(ctx, cp, p, decision)
	}
	return c.simpleGet(ctx, cp, p, decision)
}

// simpleGet 单表查询
func (c *Controller) simpleGet(ctx *fiber.Ctx, cp *resolver.CompoundPath, p *params, decision access.Decision) error {
	table := cp.Keyword()
	if !c.store.Registry().Has(table) {
		return response.NotFound(ctx, "")
	}

	expr, err := buildExpr(p.Filters, decision.Limits)
	if err != nil {
		return response.BadRequest(ctx, errors.GetMessage(err))
	}

	q := schema.Query{
		Expr:      expr,
		IDs:       cp.KeywordIDs(),
		OrderBy:   p.OrderBy,
		Direction: p.Direction,
		Distinct:  p.Distinct,
	}

	// 按主键取具体实例时附带外键引用
	if len(q.IDs) > 0 || p.Single {
		records, err := c.store.FetchWithReferences(ctx.UserContext(), table, q)
		if err != nil {
			return c.storeError(ctx, err)
		}
		if p.Single || len(q.IDs) == 1 {
			if len(records) == 0 {
				return response.NotFound(ctx, "")
			}
			return response.Success(ctx, records[0])
		}
		return response.Success(ctx, records)
	}

	total, err := c.store.Count(ctx.UserContext(), table, q)
	if err != nil {
		return c.storeError(ctx, err)
	}

	// offset叠加在页码换算之上,limit覆盖单页容量
	q.Offset = p.Offset + (p.Page-1)*p.PerPage
	q.Limit = p.PerPage
	if p.Limit > 0 {
		q.Limit = p.Limit
	}
	records, err := c.store.All(ctx.UserContext(), table, q)
	if err != nil {
		return c.storeError(ctx, err)
	}

	objects := make([]interface{}, len(records))
	for i, r := range records {
		objects[i] = r
	}
	return response.SuccessPage(ctx, objects, total, p.Page, p.PerPage)
}

// compoundGet 跨表查询
func (c *Controller) compoundGet(ctx *fiber.Ctx, cp *resolver.CompoundPath, p *params, decision access.Decision) error {
	result, err := c.resolver.Query(ctx.UserContext(), cp, resolver.Options{
		Distinct:  p.Distinct,
		Page:      p.Page,
		PerPage:   p.PerPage,
		Limit:     p.Limit,
		OrderBy:   p.OrderBy,
		Direction: p.Direction,
		Limits:    decision.Limits,
	})
	if err != nil {
		return c.storeError(ctx, err)
	}

	objects := make([]interface{}, len(result.Objects))
	for i, r := range result.Objects {
		objects[i] = r
	}
	return response.SuccessPage(ctx, objects, result.Total, result.Page, result.PerPage)
}

// Create 新增
func (c *Controller) Create(ctx *fiber.Ctx) error {
	table := ctx.Params("table")
	decision, ok := c.gate(ctx, table)
	if !ok {
		return response.MethodNotAllowed(ctx)
	}

	if !c.store.Registry().Has(table) {
		return response.NotFound(ctx, "")
	}

	var body map[string]interface{}
	if err := json.Unmarshal(ctx.Body(), &body); err != nil {
		return response.BadRequest(ctx, errors.ErrMalformedRequest.Message)
	}

	// 用户表的口令落库前散列
	if table == "users" {
		if pw, ok := body["password"].(string); ok && pw != "" {
			hash, err := auth.HashPassword(pw)
			if err != nil {
				return response.ServerError(ctx, "")
			}
			body["password"] = hash
		}
	}

	record, err := c.store.Insert(ctx.UserContext(), table, schema.Record(body))
	if err != nil {
		return c.storeError(ctx, err)
	}

	c.audit(ctx, decision, access.OpCreate)
	return response.Success(ctx, record)
}

// Update 更新
func (c *Controller) Update(ctx *fiber.Ctx) error {
	cp, err := resolver.ParsePath(ctx.Params("table"), ctx.Params("*"))
	if err != nil || cp.IsCompound() {
		return response.BadRequest(ctx, errors.ErrMalformedRequest.Message)
	}
	table := cp.Keyword()

	decision, ok := c.gate(ctx, table)
	if !ok {
		return response.MethodNotAllowed(ctx)
	}
	if !c.store.Registry().Has(table) {
		return response.NotFound(ctx, "")
	}

	p, err := c.parseParams(ctx)
	if err != nil {
		return response.BadRequest(ctx, errors.GetMessage(err))
	}

	var body map[string]interface{}
	if err := json.Unmarshal(ctx.Body(), &body); err != nil {
		return response.BadRequest(ctx, errors.ErrMalformedRequest.Message)
	}
	if table == "users" {
		if pw, ok := body["password"].(string); ok && pw != "" {
			hash, err := auth.HashPassword(pw)
			if err != nil {
				return response.ServerError(ctx, "")
			}
			body["password"] = hash
		}
	}

	expr, err := buildExpr(p.Filters, decision.Limits)
	if err != nil {
		return response.BadRequest(ctx, errors.GetMessage(err))
	}

	affected, err := c.store.Update(ctx.UserContext(), table, schema.Query{
		Expr: expr,
		IDs:  cp.KeywordIDs(),
	}, schema.Record(body))
	if err != nil {
		return c.storeError(ctx, err)
	}

	c.audit(ctx, decision, access.OpUpdate)
	return response.Success(ctx, fiber.Map{"num_modified": affected})
}

// Delete 删除
func (c *Controller) Delete(ctx *fiber.Ctx) error {
	cp, err := resolver.ParsePath(ctx.Params("table"), ctx.Params("*"))
	if err != nil || cp.IsCompound() {
		return response.BadRequest(ctx, errors.ErrMalformedRequest.Message)
	}
	table := cp.Keyword()

	decision, ok := c.gate(ctx, table)
	if !ok {
		return response.MethodNotAllowed(ctx)
	}
	if !c.store.Registry().Has(table) {
		return response.NotFound(ctx, "")
	}

	p, err := c.parseParams(ctx)
	if err != nil {
		return response.BadRequest(ctx, errors.GetMessage(err))
	}

	expr, err := buildExpr(p.Filters, decision.Limits)
	if err != nil {
		return response.BadRequest(ctx, errors.GetMessage(err))
	}

	// 没有任何限定的删除是全表清空,拒绝
	if expr == nil && len(cp.KeywordIDs()) == 0 {
		return response.BadRequest(ctx, errors.ErrMalformedRequest.Message)
	}

	affected, err := c.store.Delete(ctx.UserContext(), table, schema.Query{
		Expr: expr,
		IDs:  cp.KeywordIDs(),
	})
	if err != nil {
		return c.storeError(ctx, err)
	}

	c.audit(ctx, decision, access.OpDelete)
	return response.Success(ctx, fiber.Map{"num_deleted": affected})
}

// audit 变更留痕
func (c *Controller) audit(ctx *fiber.Ctx, decision access.Decision, op string) {
	if decision.User == nil || decision.Role == nil {
		return
	}
	args, _ := json.Marshal(queryArgs(ctx))
	c.recorder.Record(ctx.UserContext(),
		decision.User.Code, decision.Role.Code,
		op, middleware.ClientIP(ctx),
		string(args), string(ctx.Body()), ctx.Path(),
	)
}

// queryArgs 收集查询参数
func queryArgs(ctx *fiber.Ctx) map[string]string {
	args := make(map[string]string)
	ctx.Context().QueryArgs().VisitAll(func(key, value []byte) {
		args[string(key)] = string(value)
	})
	return args
}

// storeError 数据层错误回应
func (c *Controller) storeError(ctx *fiber.Ctx, err error) error {
	if errors.GetCode(err) == 404 {
		return response.NotFound(ctx, "")
	}
	return response.ServerError(ctx, errors.ErrStoreFailure.Message)
}
