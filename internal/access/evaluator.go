package access

import (
	"context"

	"gorm.io/gorm"

	"github.com/scarecrow/internal/model"
	"github.com/scarecrow/internal/registry"
	"github.com/scarecrow/internal/token"
	"github.com/scarecrow/pkg/auth"
	"github.com/scarecrow/pkg/dal"
	"github.com/scarecrow/pkg/logger"
	"github.com/scarecrow/pkg/ssql"
)

// 规范操作名
const (
	OpGet    = "get"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Decision 鉴权结论
// 要么放行(可带行级约束),要么拒绝(带内部原因)
type Decision struct {
	Allowed bool
	// Reason 拒绝原因,仅用于日志,不回传客户端
	Reason string
	// Limits 放行时需合并进数据查询的约束表达式,nil表示无约束
	Limits ssql.Expression
	// User / Role 命中的主体,放行时非nil
	User *model.User
	Role *model.Role
}

// Deny 拒绝结论
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Allow 放行结论
func Allow(user *model.User, role *model.Role, limits ssql.Expression) Decision {
	return Decision{Allowed: true, Limits: limits, User: user, Role: role}
}

// Evaluator 权限评估器
type Evaluator struct {
	tokens    *token.Service
	resources *registry.Registry
	users     dal.Repository[model.User]
	roles     dal.Repository[model.Role]
	scepters  dal.Repository[model.Scepter]
	restricts dal.Repository[model.Restrict]
}

// NewEvaluator 创建权限评估器
func NewEvaluator(db *gorm.DB, tokens *token.Service, resources *registry.Registry) *Evaluator {
	return &Evaluator{
		tokens:    tokens,
		resources: resources,
		users:     dal.NewBaseRepositoryWithDB[model.User](db),
		roles:     dal.NewBaseRepositoryWithDB[model.Role](db),
		scepters:  dal.NewBaseRepositoryWithDB[model.Scepter](db),
		restricts: dal.NewBaseRepositoryWithDB[model.Restrict](db),
	}
}

// Evaluate 评估一次请求
// 依次检查令牌有效性、登录地址、操作禁令、行级约束
func (e *Evaluator) Evaluate(ctx context.Context, tokenStr, op, loginAddress, requestPath, targetTable string) Decision {
	claims := e.tokens.Validate(tokenStr)
	if claims == nil {
		return Deny("invalid token")
	}
	if claims.LoginAddress != loginAddress {
		return Deny("address mismatch")
	}

	user, role, ok := e.principal(ctx, claims, loginAddress)
	if !ok {
		return Deny("principal not unique or inactive")
	}

	resourceCode := e.resources.Resolve(requestPath)
	if resourceCode == "" {
		// 未注册的路径视为不受控资源,照常放行且无约束
		logger.Warn("request path matches no registered resource",
			logger.String("path", requestPath),
		)
		return Allow(user, role, nil)
	}

	denied, err := e.scepters.Exists(ctx, map[string]interface{}{
		"resource_code": resourceCode,
		"role_code":     claims.RoleCode,
		"operation":     op,
	})
	if err != nil {
		logger.Error("scepter lookup failed", logger.Err(err))
		return Deny("scepter lookup failed")
	}
	if denied {
		return Deny("operation denied by scepter")
	}

	limits, err := e.limits(ctx, claims, resourceCode, targetTable)
	if err != nil {
		logger.Error("restrict lookup failed", logger.Err(err))
		return Deny("restrict lookup failed")
	}
	return Allow(user, role, limits)
}

// principal 核对令牌主体
// 必须恰好命中一个启用且登录地址一致的用户
func (e *Evaluator) principal(ctx context.Context, claims *auth.Claims, loginAddress string) (*model.User, *model.Role, bool) {
	users, err := e.users.FindAll(ctx, map[string]interface{}{
		"code":          claims.UserCode,
		"role_code":     claims.RoleCode,
		"login_address": loginAddress,
		"status":        1,
	})
	if err != nil || len(users) != 1 {
		return nil, nil, false
	}

	role, err := e.roles.FindOne(ctx, map[string]interface{}{"code": claims.RoleCode, "status": 1})
	if err != nil || role == nil {
		return nil, nil, false
	}
	return &users[0], role, true
}

// limits 装配行级约束
// 命中的约束整体取反:约束描述的是要排除的行
func (e *Evaluator) limits(ctx context.Context, claims *auth.Claims, resourceCode, targetTable string) (ssql.Expression, error) {
	if targetTable == "" {
		return nil, nil
	}

	restrict, err := e.restricts.FindOne(ctx, map[string]interface{}{
		"resource_code": resourceCode,
		"role_code":     claims.RoleCode,
		"user_code":     claims.UserCode,
		"table_name":    targetTable,
	})
	if err != nil {
		return nil, err
	}
	if restrict == nil || restrict.Constraints == "" {
		return nil, nil
	}

	preds, err := ssql.ParsePredicates(restrict.Constraints)
	if err != nil {
		return nil, err
	}
	expr, err := ssql.PredicatesToExpression(preds)
	if err != nil {
		return nil, err
	}
	if expr == nil {
		return nil, nil
	}
	return ssql.Not(expr), nil
}
