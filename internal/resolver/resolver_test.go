package resolver

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scarecrow/internal/schema"
	"github.com/scarecrow/pkg/ssql"
)

func newTestStore(t *testing.T) *schema.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	ddl := []string{
		`CREATE TABLE customer (id INTEGER PRIMARY KEY, code TEXT, name TEXT, region TEXT)`,
		`CREATE TABLE product (id INTEGER PRIMARY KEY, code TEXT, name TEXT)`,
		`CREATE TABLE customer_product (id INTEGER PRIMARY KEY, customer_code TEXT, product_code TEXT, sequence INTEGER)`,
	}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}

	reg := schema.NewRegistry()
	reg.LoadTables(db, []string{"customer", "product", "customer_product"})
	return schema.NewStore(db, reg)
}

func seedCatalog(t *testing.T, store *schema.Store) {
	t.Helper()
	db := store.DB()
	require.NoError(t, db.Exec(`INSERT INTO customer (id, code, name, region) VALUES (1, 'c1', 'alice', 'east')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO customer (id, code, name, region) VALUES (2, 'c2', 'bob', 'west')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO product (id, code, name) VALUES (10, 'p1', 'first')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO product (id, code, name) VALUES (11, 'p2', 'second')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO customer_product (customer_code, product_code, sequence) VALUES ('c1', 'p1', 2)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO customer_product (customer_code, product_code, sequence) VALUES ('c1', 'p2', 1)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO customer_product (customer_code, product_code, sequence) VALUES ('c2', 'p1', 1)`).Error)
}

func TestQueryThroughLinkTable(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	rv := New(store)

	cp, err := ParsePath("customer", "c1/product")
	require.NoError(t, err)

	result, err := rv.Query(context.Background(), cp, Options{Page: 1, PerPage: 10, Direction: "asc"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)
	require.Len(t, result.Objects, 2)

	// 连接表带sequence列,按编排顺序输出
	assert.Equal(t, "second", result.Objects[0]["name"])
	assert.Equal(t, "first", result.Objects[1]["name"])
}

func TestQueryDefaultDirectionDescending(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	rv := New(store)

	cp, err := ParsePath("customer", "c1/product")
	require.NoError(t, err)

	// 未指定direction时按降序
	result, err := rv.Query(context.Background(), cp, Options{Page: 1, PerPage: 10})
	require.NoError(t, err)
	require.Len(t, result.Objects, 2)
	assert.Equal(t, "first", result.Objects[0]["name"])
	assert.Equal(t, "second", result.Objects[1]["name"])
}

func TestQueryOrderByTargetColumn(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	rv := New(store)

	cp, err := ParsePath("customer", "c1/product")
	require.NoError(t, err)

	// distinct绕开sequence排序,order_by落在目标表列上
	result, err := rv.Query(context.Background(), cp, Options{
		Distinct: true, Page: 1, PerPage: 10, OrderBy: "name", Direction: "asc",
	})
	require.NoError(t, err)
	require.Len(t, result.Objects, 2)
	assert.Equal(t, "first", result.Objects[0]["name"])
	assert.Equal(t, "second", result.Objects[1]["name"])
}

func TestQueryLimitOverridesPerPage(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	rv := New(store)

	cp, err := ParsePath("customer", "c1/product")
	require.NoError(t, err)

	result, err := rv.Query(context.Background(), cp, Options{Page: 1, PerPage: 10, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)
	assert.Len(t, result.Objects, 1)
}

func TestQueryDirectForeignKey(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	// 只有customer与order两张表,order直接外键引用customer
	require.NoError(t, db.Exec(`CREATE TABLE customer (id INTEGER PRIMARY KEY, code TEXT, name TEXT)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE "order" (id INTEGER PRIMARY KEY, customer_code TEXT, item TEXT)`).Error)

	require.NoError(t, db.Exec(`INSERT INTO customer (id, code, name) VALUES (1, 'c1', 'acme')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO customer (id, code, name) VALUES (2, 'c2', 'globex')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO "order" (id, customer_code, item) VALUES (1, 'c1', 'bolts')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO "order" (id, customer_code, item) VALUES (2, 'c1', 'nuts')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO "order" (id, customer_code, item) VALUES (3, 'c2', 'gears')`).Error)

	reg := schema.NewRegistry()
	reg.LoadTables(db, []string{"customer", "order"})
	rv := New(schema.NewStore(db, reg))

	cp, err := ParsePath("customer", "c1/order")
	require.NoError(t, err)

	// 没有连接表,目标表自身的外键驱动查询
	result, err := rv.Query(context.Background(), cp, Options{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)
	require.Len(t, result.Objects, 2)
	assert.Equal(t, "nuts", result.Objects[0]["item"])
	assert.Equal(t, "bolts", result.Objects[1]["item"])

	// 具体实例路径同样可达
	cp, err = ParsePath("customer", "c1/order/1")
	require.NoError(t, err)
	result, err = rv.Query(context.Background(), cp, Options{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)
	require.Len(t, result.Objects, 1)
	assert.Equal(t, "bolts", result.Objects[0]["item"])
}

func TestQueryKeywordInstance(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	rv := New(store)

	cp, err := ParsePath("customer", "c1/product/10")
	require.NoError(t, err)

	result, err := rv.Query(context.Background(), cp, Options{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)
	require.Len(t, result.Objects, 1)
	assert.Equal(t, "first", result.Objects[0]["name"])
}

func TestQueryWithLimits(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	rv := New(store)

	cp, err := ParsePath("customer", "c1/product")
	require.NoError(t, err)

	limits, err := ssql.Parse(`name = "second"`)
	require.NoError(t, err)

	result, err := rv.Query(context.Background(), cp, Options{Page: 1, PerPage: 10, Limits: limits})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)
	require.Len(t, result.Objects, 1)
	assert.Equal(t, "p2", result.Objects[0]["code"])
}

func TestQueryNoLinkTable(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	rv := New(store)

	// product与customer_product之间没有表能覆盖这条路径
	cp, err := ParsePath("product", "p1/customer_product")
	require.NoError(t, err)

	result, err := rv.Query(context.Background(), cp, Options{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Empty(t, result.Objects)
	assert.Zero(t, result.Total)
}

func TestQueryUnknownKeyword(t *testing.T) {
	store := newTestStore(t)
	rv := New(store)

	cp, err := ParsePath("customer", "c1/nothing")
	require.NoError(t, err)

	result, err := rv.Query(context.Background(), cp, Options{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Empty(t, result.Objects)
}

func TestQueryPagination(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	rv := New(store)

	cp, err := ParsePath("customer", "c1/product")
	require.NoError(t, err)

	result, err := rv.Query(context.Background(), cp, Options{Page: 2, PerPage: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)
	require.Len(t, result.Objects, 1)
	assert.Equal(t, 2, result.Page)
}

func TestElectRequiresExactCoverWithoutDistinct(t *testing.T) {
	store := newTestStore(t)
	db := store.DB()

	// 超集连接表:额外引用region表
	require.NoError(t, db.Exec(`CREATE TABLE region (id INTEGER PRIMARY KEY, code TEXT)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE wide_link (id INTEGER PRIMARY KEY, customer_code TEXT, product_code TEXT, region_code TEXT)`).Error)

	reg := schema.NewRegistry()
	reg.LoadTables(db, []string{"customer", "product", "customer_product", "region", "wide_link"})
	wide := schema.NewStore(db, reg)
	seedCatalog(t, wide)
	require.NoError(t, db.Exec(`INSERT INTO wide_link (customer_code, product_code, region_code) VALUES ('c2', 'p2', 'r1')`).Error)

	rv := New(wide)
	cp, err := ParsePath("customer", "c2/product")
	require.NoError(t, err)

	// 非distinct时wide_link是真超集,不参与选举,仍走customer_product
	result, err := rv.Query(context.Background(), cp, Options{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)
	assert.Equal(t, "p1", result.Objects[0]["code"])
}

func TestElectAllowsSupersetWithDistinct(t *testing.T) {
	store := newTestStore(t)
	db := store.DB()

	require.NoError(t, db.Exec(`CREATE TABLE region (id INTEGER PRIMARY KEY, code TEXT)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE region_link (id INTEGER PRIMARY KEY, customer_code TEXT, region_code TEXT)`).Error)

	reg := schema.NewRegistry()
	reg.LoadTables(db, []string{"customer", "region", "region_link"})
	wide := schema.NewStore(db, reg)

	require.NoError(t, db.Exec(`INSERT INTO customer (id, code, name, region) VALUES (1, 'c1', 'alice', 'east')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO region (id, code) VALUES (1, 'r1')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO region_link (customer_code, region_code) VALUES ('c1', 'r1')`).Error)

	rv := New(wide)
	cp, err := ParsePath("region", "r1/customer")
	require.NoError(t, err)

	// region_link引用集{customer,region}恰好等于路径集,distinct与否都可选举
	result, err := rv.Query(context.Background(), cp, Options{Distinct: true, Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)
	assert.Equal(t, "alice", result.Objects[0]["name"])
}
