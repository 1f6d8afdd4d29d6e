package schema

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/scarecrow/pkg/errors"
	"github.com/scarecrow/pkg/logger"
	"github.com/scarecrow/pkg/ssql"
	"github.com/scarecrow/pkg/utils"
)

// Record 动态表行
type Record map[string]interface{}

// Query 动态表查询参数
type Query struct {
	// Expr 过滤表达式,含已合并的行级约束
	Expr ssql.Expression
	// Eq 等值条件
	Eq map[string]interface{}
	// IDs 主键列表
	IDs []string
	// OrderBy 排序列,空则按主键
	OrderBy   string
	Direction string // asc / desc
	Offset    int
	Limit     int
	Distinct  bool
}

// Store 动态表存取器
// 所有受管表经由模式注册表校验后再落到SQL
type Store struct {
	db       *gorm.DB
	registry *Registry
	dialect  ssql.Dialect
}

// NewStore 创建动态表存取器
func NewStore(db *gorm.DB, registry *Registry) *Store {
	return &Store{
		db:       db,
		registry: registry,
		dialect:  ssql.NewGormDialect(db.Dialector.Name()),
	}
}

// Registry 获取模式注册表
func (s *Store) Registry() *Registry {
	return s.registry
}

// DB 获取底层数据库
func (s *Store) DB() *gorm.DB {
	return s.db
}

// table 校验表名
func (s *Store) table(name string) (*Table, error) {
	t, ok := s.registry.Get(name)
	if !ok {
		return nil, errors.Wrap(fmt.Errorf("table %s not registered", name), 404, "资源不存在")
	}
	return t, nil
}

// apply 应用查询条件
func (s *Store) apply(tx *gorm.DB, t *Table, q Query) *gorm.DB {
	if q.Expr != nil {
		if sql, args := q.Expr.ToSQL(s.dialect); sql != "" {
			tx = tx.Where(sql, args...)
		}
	}
	for col, val := range q.Eq {
		tx = tx.Where(s.dialect.Quote(col)+" = ?", val)
	}
	if len(q.IDs) > 0 && t.PrimaryKey != "" {
		tx = tx.Where(s.dialect.Quote(t.PrimaryKey)+" IN ?", q.IDs)
	}
	return tx
}

// order 应用排序
func (s *Store) order(tx *gorm.DB, t *Table, q Query) *gorm.DB {
	col := q.OrderBy
	if col == "" || !t.HasColumn(col) {
		col = t.PrimaryKey
	}
	if col == "" {
		return tx
	}
	dir := "ASC"
	if q.Direction == "desc" {
		dir = "DESC"
	}
	return tx.Order(s.dialect.Quote(col) + " " + dir)
}

// All 查询多行
func (s *Store) All(ctx context.Context, table string, q Query) ([]Record, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	tx := s.db.WithContext(ctx).Table(t.Name)
	tx = s.apply(tx, t, q)
	tx = s.order(tx, t, q)
	if q.Distinct {
		tx = tx.Distinct()
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []map[string]interface{}
	if err := tx.Find(&rows).Error; err != nil {
		logger.Error("dynamic query failed", logger.String("table", table), logger.Err(err))
		return nil, errors.Wrap(err, 500, "数据存取失败")
	}

	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = Record(row)
	}
	return records, nil
}

// One 查询单行,未命中返回nil
func (s *Store) One(ctx context.Context, table string, q Query) (Record, error) {
	q.Limit = 1
	records, err := s.All(ctx, table, q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// Count 统计行数
func (s *Store) Count(ctx context.Context, table string, q Query) (int64, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}

	tx := s.db.WithContext(ctx).Table(t.Name)
	tx = s.apply(tx, t, q)
	if q.Distinct {
		tx = tx.Distinct()
	}

	var count int64
	if err := tx.Count(&count).Error; err != nil {
		logger.Error("dynamic count failed", logger.String("table", table), logger.Err(err))
		return 0, errors.Wrap(err, 500, "数据存取失败")
	}
	return count, nil
}

// Insert 插入一行
// code列按来源列确定性派生,无来源列时随机派发
func (s *Store) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	values := s.sanitize(t, rec)
	if t.HasColumn("code") {
		if code, ok := values["code"].(string); !ok || code == "" {
			values["code"] = s.assignCode(t, values)
		}
	}
	now := time.Now()
	if t.HasColumn("created_timestamp") {
		values["created_timestamp"] = now
	}
	if t.HasColumn("updated_timestamp") {
		values["updated_timestamp"] = now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table(t.Name).Create(map[string]interface{}(values)).Error
	})
	if err != nil {
		logger.Error("dynamic insert failed", logger.String("table", table), logger.Err(err))
		return nil, errors.Wrap(err, 500, "数据存取失败")
	}
	return values, nil
}

// Update 按条件更新,返回受影响行数
func (s *Store) Update(ctx context.Context, table string, q Query, values Record) (int64, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}

	fields := s.sanitize(t, values)
	delete(fields, t.PrimaryKey)
	delete(fields, "created_timestamp")
	if t.HasColumn("updated_timestamp") {
		fields["updated_timestamp"] = time.Now()
	}
	if len(fields) == 0 {
		return 0, nil
	}

	var affected int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := s.apply(tx.Table(t.Name), t, q).Updates(map[string]interface{}(fields))
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		logger.Error("dynamic update failed", logger.String("table", table), logger.Err(err))
		return 0, errors.Wrap(err, 500, "数据存取失败")
	}
	return affected, nil
}

// Delete 按条件删除,返回受影响行数
func (s *Store) Delete(ctx context.Context, table string, q Query) (int64, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}

	var affected int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := s.apply(tx.Table(t.Name), t, q).Delete(nil)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		logger.Error("dynamic delete failed", logger.String("table", table), logger.Err(err))
		return 0, errors.Wrap(err, 500, "数据存取失败")
	}
	return affected, nil
}

// sanitize 丢弃未注册列
func (s *Store) sanitize(t *Table, rec Record) Record {
	clean := make(Record, len(rec))
	for col, val := range rec {
		if t.HasColumn(col) {
			clean[col] = val
		}
	}
	return clean
}

// assignCode 派发行编码
func (s *Store) assignCode(t *Table, values Record) string {
	if t.CodeSource != "" {
		if src, ok := values[t.CodeSource].(string); ok && src != "" {
			return utils.NameUUID(src)
		}
	}
	return utils.UUID()
}
