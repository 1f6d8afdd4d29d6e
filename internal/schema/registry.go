package schema

import (
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/scarecrow/pkg/logger"
)

// ForeignKey 外键描述
type ForeignKey struct {
	Column    string // 本表列
	RefTable  string // 被引用表
	RefColumn string // 被引用列
}

// Table 表描述
type Table struct {
	Name        string
	Columns     []string
	PrimaryKey  string
	ForeignKeys []ForeignKey
	// HasSequence 表内存在sequence排序列
	HasSequence bool
	// CodeSource 派生code列取值的来源列,空表示随机编码
	CodeSource string
}

// HasColumn 是否存在指定列
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ReferredTables 外键引用到的表集合
func (t *Table) ReferredTables() map[string]struct{} {
	refs := make(map[string]struct{}, len(t.ForeignKeys))
	for _, fk := range t.ForeignKeys {
		refs[fk.RefTable] = struct{}{}
	}
	return refs
}

// ForeignKeyTo 查找指向指定表的外键
func (t *Table) ForeignKeyTo(table string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.RefTable == table {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// Registry 模式注册表
// 按注册顺序维护所有受管表的结构,启动时装载一次
type Registry struct {
	mu     sync.RWMutex
	order  []string
	tables map[string]*Table
}

// NewRegistry 创建模式注册表
func NewRegistry() *Registry {
	return &Registry{
		tables: make(map[string]*Table),
	}
}

// Register 注册表描述
func (r *Registry) Register(t *Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[t.Name]; !ok {
		r.order = append(r.order, t.Name)
	}
	r.tables[t.Name] = t
}

// Get 获取表描述
func (r *Registry) Get(name string) (*Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	return t, ok
}

// Has 是否注册过指定表
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names 按注册顺序返回所有表名
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// LoadTable 通过数据库自省装载表结构
// 外键按列名约定识别: <表名>_code -> 表.code, <表名>_id -> 表.id
func (r *Registry) LoadTable(db *gorm.DB, name string) error {
	columnTypes, err := db.Migrator().ColumnTypes(name)
	if err != nil {
		return fmt.Errorf("introspect table %s: %w", name, err)
	}
	if len(columnTypes) == 0 {
		return fmt.Errorf("table %s has no columns", name)
	}

	t := &Table{Name: name}
	for _, ct := range columnTypes {
		col := ct.Name()
		t.Columns = append(t.Columns, col)
		if pk, _ := ct.PrimaryKey(); pk {
			t.PrimaryKey = col
		}
		if col == "sequence" {
			t.HasSequence = true
		}
	}
	if t.PrimaryKey == "" && t.HasColumn("id") {
		t.PrimaryKey = "id"
	}

	t.ForeignKeys = r.conventionForeignKeys(t)
	r.Register(t)
	return nil
}

// conventionForeignKeys 按命名约定推导外键
func (r *Registry) conventionForeignKeys(t *Table) []ForeignKey {
	var fks []ForeignKey
	for _, col := range t.Columns {
		var suffix, refCol string
		switch {
		case strings.HasSuffix(col, "_code"):
			suffix, refCol = "_code", "code"
		case strings.HasSuffix(col, "_id"):
			suffix, refCol = "_id", "id"
		default:
			continue
		}
		base := strings.TrimSuffix(col, suffix)
		for _, candidate := range []string{base, base + "s"} {
			if candidate == t.Name {
				continue
			}
			if ref, ok := r.Get(candidate); ok && ref.HasColumn(refCol) {
				fks = append(fks, ForeignKey{Column: col, RefTable: candidate, RefColumn: refCol})
				break
			}
		}
	}
	return fks
}

// SetCodeSource 指定code列的取值来源列
func (r *Registry) SetCodeSource(table, column string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tables[table]; ok {
		t.CodeSource = column
	}
}

// LoadTables 装载一批表,逐个失败不中断
// 全部装载后重算一遍外键,补上指向后装载表的引用
func (r *Registry) LoadTables(db *gorm.DB, names []string) {
	for _, name := range names {
		if err := r.LoadTable(db, name); err != nil {
			logger.Warn("skip unloadable table", logger.String("table", name), logger.Err(err))
		}
	}
	r.refreshForeignKeys()
}

// refreshForeignKeys 重算所有已注册表的约定外键
func (r *Registry) refreshForeignKeys() {
	for _, name := range r.Names() {
		if t, ok := r.Get(name); ok {
			fks := r.conventionForeignKeys(t)
			r.mu.Lock()
			t.ForeignKeys = fks
			r.mu.Unlock()
		}
	}
}
