package ssql

import (
	"encoding/json"
	"fmt"
)

// NotExpression 取反表达式
type NotExpression struct {
	Inner Expression
}

// Not 对表达式取反
func Not(inner Expression) *NotExpression {
	return &NotExpression{Inner: inner}
}

// ToSQL 转换为SQL
func (e *NotExpression) ToSQL(dialect Dialect) (string, []interface{}) {
	if e.Inner == nil {
		return "", nil
	}
	sql, args := e.Inner.ToSQL(dialect)
	if sql == "" {
		return "", nil
	}
	return "NOT (" + sql + ")", args
}

// Validate 验证表达式
func (e *NotExpression) Validate() error {
	if e.Inner == nil {
		return fmt.Errorf("not expression inner is nil")
	}
	return e.Inner.Validate()
}

// String 转换为字符串表示
func (e *NotExpression) String() string {
	if e.Inner == nil {
		return ""
	}
	return "!(" + e.Inner.String() + ")"
}

// Predicate 单个字段约束
// 以JSON形式持久化: [{"name":"city","op":"==","value":"SH"}]
type Predicate struct {
	Name  string      `json:"name"`
	Op    string      `json:"op"`
	Value interface{} `json:"value,omitempty"`
}

// predicateOps 约束操作符到DSL操作符的映射
var predicateOps = map[string]Operator{
	"==":          OpEq,
	"eq":          OpEq,
	"equals":      OpEq,
	"!=":          OpNeq,
	"neq":         OpNeq,
	"ne":          OpNeq,
	">":           OpGt,
	"gt":          OpGt,
	">=":          OpGte,
	"gte":         OpGte,
	"<":           OpLt,
	"lt":          OpLt,
	"<=":          OpLte,
	"lte":         OpLte,
	"like":        OpLike,
	"ilike":       OpLike,
	"not_like":    OpNotLike,
	"in":          OpIn,
	"not_in":      OpNotIn,
	"is_null":     OpIsNull,
	"is_not_null": OpNotNull,
}

// ToExpression 将约束转换为字段表达式
func (p Predicate) ToExpression() (Expression, error) {
	op, ok := predicateOps[p.Op]
	if !ok {
		return nil, fmt.Errorf("unknown predicate operator %q", p.Op)
	}
	return &FieldExpression{
		Field:    p.Name,
		Operator: op,
		Value:    p.Value,
	}, nil
}

// ParsePredicates 解析JSON约束列表
func ParsePredicates(raw string) ([]Predicate, error) {
	if raw == "" {
		return nil, nil
	}
	var preds []Predicate
	if err := json.Unmarshal([]byte(raw), &preds); err != nil {
		return nil, fmt.Errorf("invalid predicate list: %w", err)
	}
	return preds, nil
}

// PredicatesToExpression 将约束列表合并为AND表达式
func PredicatesToExpression(preds []Predicate) (Expression, error) {
	if len(preds) == 0 {
		return nil, nil
	}
	b := Where()
	for _, p := range preds {
		expr, err := p.ToExpression()
		if err != nil {
			return nil, err
		}
		b.Expr(expr)
	}
	return b.Build(), nil
}

// EncodePredicates 序列化约束列表
func EncodePredicates(preds []Predicate) (string, error) {
	data, err := json.Marshal(preds)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
