package access

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scarecrow/internal/model"
	"github.com/scarecrow/internal/registry"
	"github.com/scarecrow/internal/token"
	"github.com/scarecrow/pkg/auth"
	"github.com/scarecrow/pkg/config"
	"github.com/scarecrow/pkg/ssql"
	"github.com/scarecrow/pkg/utils"
)

type fixture struct {
	db        *gorm.DB
	tokens    *token.Service
	evaluator *Evaluator
	resources *registry.Registry
	user      *model.User
	role      *model.Role
	token     string
}

const testAddr = "1.2.3.4"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.Role{}, &model.User{}, &model.Resource{},
		&model.Scepter{}, &model.Restrict{},
	))

	role := &model.Role{RoleName: "staff", Code: utils.NameUUID("staff"), Status: 1}
	require.NoError(t, db.Create(role).Error)

	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)
	user := &model.User{
		Username: "alice",
		Password: hash,
		Code:     utils.NameUUID("alice"),
		Status:   1,
		Email:    "alice@example.com",
		RoleCode: role.Code,
	}
	require.NoError(t, db.Create(user).Error)

	tokens := token.NewService(&config.TokenConfig{Secret: "s", Issuer: "t", Expire: 3600}, db)
	grant, err := tokens.Issue(context.Background(), token.Credentials{Login: "alice", Password: "secret"}, testAddr)
	require.NoError(t, err)

	resources := registry.New(db, "test")
	require.NoError(t, resources.Register("^/api/customer(/.*)?$", "customer"))

	return &fixture{
		db:        db,
		tokens:    tokens,
		evaluator: NewEvaluator(db, tokens, resources),
		resources: resources,
		user:      user,
		role:      role,
		token:     grant.Token,
	}
}

func (f *fixture) customerResource() string {
	return f.resources.Code("^/api/customer(/.*)?$")
}

func TestEvaluateInvalidToken(t *testing.T) {
	f := newFixture(t)
	d := f.evaluator.Evaluate(context.Background(), "garbage", OpGet, testAddr, "/api/customer", "customer")
	assert.False(t, d.Allowed)
}

func TestEvaluateAddressMismatch(t *testing.T) {
	f := newFixture(t)
	d := f.evaluator.Evaluate(context.Background(), f.token, OpGet, "9.9.9.9", "/api/customer", "customer")
	assert.False(t, d.Allowed)
}

func TestEvaluateAllowed(t *testing.T) {
	f := newFixture(t)
	d := f.evaluator.Evaluate(context.Background(), f.token, OpGet, testAddr, "/api/customer", "customer")
	require.True(t, d.Allowed)
	assert.Nil(t, d.Limits)
	require.NotNil(t, d.User)
	assert.Equal(t, f.user.Code, d.User.Code)
	assert.Equal(t, f.role.Code, d.Role.Code)
}

func TestEvaluateUnregisteredPathAllowed(t *testing.T) {
	f := newFixture(t)
	d := f.evaluator.Evaluate(context.Background(), f.token, OpGet, testAddr, "/api/unmanaged", "unmanaged")
	assert.True(t, d.Allowed)
	assert.Nil(t, d.Limits)
}

func TestEvaluateScepterDeny(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&model.Scepter{
		ResourceCode: f.customerResource(),
		RoleCode:     f.role.Code,
		Operation:    OpDelete,
	}).Error)

	d := f.evaluator.Evaluate(context.Background(), f.token, OpDelete, testAddr, "/api/customer/5", "customer")
	assert.False(t, d.Allowed)

	// 禁令只作用于被点名的操作
	d = f.evaluator.Evaluate(context.Background(), f.token, OpGet, testAddr, "/api/customer/5", "customer")
	assert.True(t, d.Allowed)
}

func TestEvaluateRestrictLimits(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&model.Restrict{
		ResourceCode: f.customerResource(),
		RoleCode:     f.role.Code,
		UserCode:     f.user.Code,
		TargetTable:  "customer",
		Constraints:  `[{"name":"region","op":"==","value":"east"}]`,
	}).Error)

	d := f.evaluator.Evaluate(context.Background(), f.token, OpGet, testAddr, "/api/customer", "customer")
	require.True(t, d.Allowed)
	require.NotNil(t, d.Limits)

	sql, args := d.Limits.ToSQL(ssql.NewSQLiteDialect())
	assert.Equal(t, `NOT ("region" = ?)`, sql)
	assert.Equal(t, []interface{}{"east"}, args)
}

func TestEvaluateRestrictOtherTableIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&model.Restrict{
		ResourceCode: f.customerResource(),
		RoleCode:     f.role.Code,
		UserCode:     f.user.Code,
		TargetTable:  "order",
		Constraints:  `[{"name":"region","op":"==","value":"east"}]`,
	}).Error)

	d := f.evaluator.Evaluate(context.Background(), f.token, OpGet, testAddr, "/api/customer", "customer")
	require.True(t, d.Allowed)
	assert.Nil(t, d.Limits)
}

func TestEvaluateInactiveUserDenied(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(f.user).Update("status", 0).Error)

	d := f.evaluator.Evaluate(context.Background(), f.token, OpGet, testAddr, "/api/customer", "customer")
	assert.False(t, d.Allowed)
}

func TestEvaluateAfterLogoutDenied(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.tokens.Revoke(context.Background(), f.token, testAddr))

	// 登出后login_address哨兵化,旧令牌对不上
	d := f.evaluator.Evaluate(context.Background(), f.token, OpGet, testAddr, "/api/customer", "customer")
	assert.False(t, d.Allowed)
}

func TestEvaluateReloginInvalidatesOldToken(t *testing.T) {
	f := newFixture(t)

	// 换个地址重新登录,旧令牌的地址绑定随之失效
	_, err := f.tokens.Issue(context.Background(), token.Credentials{Login: "alice", Password: "secret"}, "5.6.7.8")
	require.NoError(t, err)

	d := f.evaluator.Evaluate(context.Background(), f.token, OpGet, testAddr, "/api/customer", "customer")
	assert.False(t, d.Allowed)
}
