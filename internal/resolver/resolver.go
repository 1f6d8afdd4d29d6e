package resolver

import (
	"context"

	"gorm.io/gorm"

	"github.com/scarecrow/internal/schema"
	"github.com/scarecrow/pkg/logger"
	"github.com/scarecrow/pkg/ssql"
)

// Options 跨表查询选项
type Options struct {
	Distinct bool
	Page     int
	PerPage  int
	// Limit 单次返回上限,覆盖PerPage
	Limit int
	// OrderBy 目标表排序列,空则按目标主键
	OrderBy string
	// Direction asc按升序,其余按降序
	Direction string
	// Limits 行级约束,作用于目标表
	Limits ssql.Expression
}

// Result 跨表查询结果
type Result struct {
	Objects []schema.Record
	Total   int64
	Page    int
	PerPage int
}

// Resolver 跨表查询解析器
// 通过连接表把路径上的多张表织成一次查询
type Resolver struct {
	db         *gorm.DB
	store      *schema.Store
	processors []PostProcessor
}

// New 创建解析器
func New(store *schema.Store) *Resolver {
	return &Resolver{
		db:    store.DB(),
		store: store,
	}
}

// Use 挂载结果后处理器
func (r *Resolver) Use(p PostProcessor) {
	r.processors = append(r.processors, p)
}

// elect 选举驱动表
// 按注册顺序找第一张外键引用集覆盖路径表集的连接表,
// 非distinct要求恰好相等,distinct允许真超集;
// 没有连接表而目标表自身引用全部前置表时,由目标表直连驱动
func (r *Resolver) elect(cp *CompoundPath, kt *schema.Table, distinct bool) (*schema.Table, bool) {
	want := make(map[string]struct{}, len(cp.Tables))
	for _, t := range cp.Tables {
		want[t] = struct{}{}
	}

	for _, name := range r.store.Registry().Names() {
		t, ok := r.store.Registry().Get(name)
		if !ok {
			continue
		}
		refs := t.ReferredTables()
		if len(refs) < len(want) {
			continue
		}
		covered := true
		for w := range want {
			if _, ok := refs[w]; !ok {
				covered = false
				break
			}
		}
		if !covered {
			continue
		}
		if len(refs) == len(want) || distinct {
			return t, true
		}
	}

	refs := kt.ReferredTables()
	prev := cp.Tables[:len(cp.Tables)-1]
	for _, tbl := range prev {
		if _, ok := refs[tbl]; !ok {
			return nil, false
		}
	}
	if len(refs) == len(prev) || distinct {
		return kt, true
	}
	return nil, false
}

// qualifiedDialect 给字段加表前缀的方言
// 连接查询里目标表与连接表可能同名列,约束必须落在目标表上
type qualifiedDialect struct {
	inner ssql.Dialect
	table string
}

func (d *qualifiedDialect) Quote(field string) string {
	return d.inner.Quote(d.table) + "." + d.inner.Quote(field)
}

func (d *qualifiedDialect) Placeholder(index int) string {
	return d.inner.Placeholder(index)
}

func (d *qualifiedDialect) OperatorSQL(op ssql.Operator) string {
	return d.inner.OperatorSQL(op)
}

// Query 执行跨表查询
func (r *Resolver) Query(ctx context.Context, cp *CompoundPath, opts Options) (*Result, error) {
	keyword := cp.Keyword()
	kt, ok := r.store.Registry().Get(keyword)
	if !ok {
		return r.empty(opts), nil
	}

	link, ok := r.elect(cp, kt, opts.Distinct)
	if !ok {
		// 没有表能织起这条路径,返回空集而不是报错
		logger.Warn("no table drives compound path",
			logger.Field("tables", cp.Tables),
		)
		return r.empty(opts), nil
	}

	// 目标表自身驱动时不需要连接,外键条件直接落在目标表上
	direct := link.Name == keyword
	var lk schema.ForeignKey
	if !direct {
		lk, ok = link.ForeignKeyTo(keyword)
		if !ok {
			return r.empty(opts), nil
		}
	}

	dialect := ssql.NewGormDialect(r.db.Dialector.Name())
	quote := func(table, col string) string {
		return dialect.Quote(table) + "." + dialect.Quote(col)
	}

	// 条件在统计与取数两趟查询中各装配一次
	build := func() (*gorm.DB, bool) {
		tx := r.db.WithContext(ctx).Table(keyword)
		if !direct {
			tx = tx.Joins("JOIN " + dialect.Quote(link.Name) + " ON " +
				quote(link.Name, lk.Column) + " = " + quote(keyword, lk.RefColumn))
		}

		// 路径ID按位置绑定到对应前置表的外键列
		pathIDs := cp.PathIDs()
		for i, tbl := range cp.Tables[:len(cp.Tables)-1] {
			fk, ok := link.ForeignKeyTo(tbl)
			if !ok {
				return nil, false
			}
			if i < len(pathIDs) {
				tx = tx.Where(quote(link.Name, fk.Column)+" = ?", pathIDs[i])
			}
		}

		if ids := cp.KeywordIDs(); len(ids) > 0 && kt.PrimaryKey != "" {
			tx = tx.Where(quote(keyword, kt.PrimaryKey)+" IN ?", ids)
		}

		if opts.Limits != nil {
			qd := &qualifiedDialect{inner: dialect, table: keyword}
			if sql, args := opts.Limits.ToSQL(qd); sql != "" {
				tx = tx.Where(sql, args...)
			}
		}

		// 目标表名可能撞上SQL关键字,select列前缀也要加引号
		if opts.Distinct {
			tx = tx.Distinct(dialect.Quote(keyword) + ".*")
		} else {
			tx = tx.Select(dialect.Quote(keyword) + ".*")
		}
		return tx, true
	}

	countQuery, ok := build()
	if !ok {
		return r.empty(opts), nil
	}
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, err
	}

	findQuery, _ := build()

	// 驱动表带sequence列时按编排顺序输出,否则按目标表排序列;
	// 方向跟随direction参数,缺省降序
	dir := "DESC"
	if opts.Direction == "asc" {
		dir = "ASC"
	}
	if link.HasSequence && !opts.Distinct {
		findQuery = findQuery.Order(quote(link.Name, "sequence") + " " + dir)
	} else {
		orderBy := opts.OrderBy
		if orderBy == "" || !kt.HasColumn(orderBy) {
			orderBy = kt.PrimaryKey
		}
		if orderBy != "" {
			findQuery = findQuery.Order(quote(keyword, orderBy) + " " + dir)
		}
	}

	limit := opts.PerPage
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	if limit > 0 {
		page := opts.Page
		if page < 1 {
			page = 1
		}
		findQuery = findQuery.Offset((page - 1) * opts.PerPage).Limit(limit)
	}

	var rows []map[string]interface{}
	if err := findQuery.Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]schema.Record, len(rows))
	for i, row := range rows {
		records[i] = schema.Record(row)
	}

	for _, p := range r.processors {
		if err := p.Process(ctx, keyword, records); err != nil {
			return nil, err
		}
	}

	return &Result{
		Objects: records,
		Total:   total,
		Page:    maxInt(opts.Page, 1),
		PerPage: opts.PerPage,
	}, nil
}

func (r *Resolver) empty(opts Options) *Result {
	return &Result{
		Objects: []schema.Record{},
		Page:    maxInt(opts.Page, 1),
		PerPage: opts.PerPage,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
