package registry

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scarecrow/internal/model"
	"github.com/scarecrow/pkg/auth"
	"github.com/scarecrow/pkg/utils"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Role{}, &model.User{}, &model.Resource{}))
	return db
}

func TestCodeDeterministic(t *testing.T) {
	db := newTestDB(t)
	reg := New(db, "test")

	assert.Equal(t, reg.Code("/api/customer"), reg.Code("/api/customer"))
	assert.Equal(t, utils.NameUUID("/api/customer"+"test"), reg.Code("/api/customer"))

	// 不同命名空间派生不同编码
	other := New(db, "other")
	assert.NotEqual(t, reg.Code("/api/customer"), other.Code("/api/customer"))
}

func TestResolveFirstMatchWins(t *testing.T) {
	db := newTestDB(t)
	reg := New(db, "test")
	require.NoError(t, reg.Register("^/api/customer/vip(/.*)?$", "vip"))
	require.NoError(t, reg.Register("^/api/customer(/.*)?$", "customer"))

	assert.Equal(t, reg.Code("^/api/customer/vip(/.*)?$"), reg.Resolve("/api/customer/vip/5"))
	assert.Equal(t, reg.Code("^/api/customer(/.*)?$"), reg.Resolve("/api/customer/5"))
	assert.Empty(t, reg.Resolve("/api/order"))
}

func TestRegisterInvalidPattern(t *testing.T) {
	db := newTestDB(t)
	reg := New(db, "test")
	assert.Error(t, reg.Register("^/api/(", "broken"))
}

func TestRebuildIdempotent(t *testing.T) {
	db := newTestDB(t)
	reg := New(db, "test")
	require.NoError(t, reg.Register("^/api/customer(/.*)?$", "customer"))
	require.NoError(t, reg.Register("^/api/order(/.*)?$", "order"))

	ctx := context.Background()
	require.NoError(t, reg.Rebuild(ctx))
	require.NoError(t, reg.Rebuild(ctx))

	var resources int64
	require.NoError(t, db.Model(&model.Resource{}).Count(&resources).Error)
	assert.Equal(t, int64(2), resources)
}

func TestRebuildSeedsAdmin(t *testing.T) {
	db := newTestDB(t)
	reg := New(db, "test")
	require.NoError(t, reg.Rebuild(context.Background()))

	var role model.Role
	require.NoError(t, db.Where("code = ?", utils.NameUUID("root")).First(&role).Error)
	assert.Equal(t, "root", role.RoleName)
	assert.EqualValues(t, 1, role.Status)

	var admin model.User
	require.NoError(t, db.Where("code = ?", utils.NameUUID("admin")).First(&admin).Error)
	assert.Equal(t, "admin", admin.Username)
	assert.Equal(t, role.Code, admin.RoleCode)
	assert.True(t, auth.CheckPassword(admin.Password, "admin"))

	// 再次重建不产生第二个管理员
	require.NoError(t, reg.Rebuild(context.Background()))
	var users int64
	require.NoError(t, db.Model(&model.User{}).Count(&users).Error)
	assert.Equal(t, int64(1), users)
}
