package token

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scarecrow/internal/model"
	"github.com/scarecrow/pkg/auth"
	"github.com/scarecrow/pkg/config"
	"github.com/scarecrow/pkg/errors"
	"github.com/scarecrow/pkg/utils"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Role{}, &model.User{}))
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	return NewService(&config.TokenConfig{
		Secret: "test-secret",
		Issuer: "scarecrow-test",
		Expire: 3600,
	}, db)
}

func seedUser(t *testing.T, db *gorm.DB, username, password string) *model.User {
	t.Helper()
	role := &model.Role{
		RoleName: "role-" + username,
		Code:     utils.NameUUID("role-" + username),
		Status:   1,
	}
	require.NoError(t, db.Create(role).Error)

	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	user := &model.User{
		Username: username,
		Password: hash,
		Nickname: username + "-nick",
		Code:     utils.NameUUID(username),
		Status:   1,
		Email:    username + "@example.com",
		RoleCode: role.Code,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestIssueAndValidate(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	user := seedUser(t, db, "alice", "secret")

	grant, err := svc.Issue(context.Background(), Credentials{Login: "alice", Password: "secret"}, "1.2.3.4")
	require.NoError(t, err)
	assert.NotEmpty(t, grant.Token)
	assert.Equal(t, "alice", grant.Username)
	assert.Equal(t, int64(3600), grant.ExpiresIn)

	claims := svc.Validate(grant.Token)
	require.NotNil(t, claims)
	assert.Equal(t, user.Code, claims.UserCode)
	assert.Equal(t, user.RoleCode, claims.RoleCode)
	assert.Equal(t, "1.2.3.4", claims.LoginAddress)

	var stored model.User
	require.NoError(t, db.Where("code = ?", user.Code).First(&stored).Error)
	assert.Equal(t, "1.2.3.4", stored.LoginAddress)
	assert.NotNil(t, stored.RecentAccessTime)
}

func TestIssueByEmail(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	seedUser(t, db, "alice", "secret")

	grant, err := svc.Issue(context.Background(), Credentials{Login: "alice@example.com", Password: "secret"}, "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "alice", grant.Username)
}

func TestIssueWrongPassword(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	seedUser(t, db, "alice", "secret")

	_, err := svc.Issue(context.Background(), Credentials{Login: "alice", Password: "wrong"}, "1.2.3.4")
	assert.True(t, errors.Is(err, errors.ErrInvalidCredential))
}

func TestIssueUnknownLogin(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.Issue(context.Background(), Credentials{Login: "nobody", Password: "x"}, "1.2.3.4")
	assert.True(t, errors.Is(err, errors.ErrInvalidCredential))
}

func TestIssueAmbiguousIdentity(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	seedUser(t, db, "alice", "secret")

	// 另一个用户的昵称撞上alice的用户名
	other := seedUser(t, db, "mallory", "secret")
	require.NoError(t, db.Model(other).Update("nickname", "alice").Error)

	_, err := svc.Issue(context.Background(), Credentials{Login: "alice", Password: "secret"}, "1.2.3.4")
	assert.True(t, errors.Is(err, errors.ErrInvalidCredential))
}

func TestIssueInactiveUser(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	user := seedUser(t, db, "alice", "secret")
	require.NoError(t, db.Model(user).Update("status", 0).Error)

	_, err := svc.Issue(context.Background(), Credentials{Login: "alice", Password: "secret"}, "1.2.3.4")
	assert.True(t, errors.Is(err, errors.ErrInvalidCredential))
}

func TestValidateGarbage(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	assert.Nil(t, svc.Validate("not-a-token"))
	assert.Nil(t, svc.Validate(""))
}

func TestValidateExpired(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "alice", "secret")
	svc := NewService(&config.TokenConfig{Secret: "test-secret", Issuer: "t", Expire: -1}, db)

	grant, err := svc.Issue(context.Background(), Credentials{Login: "alice", Password: "secret"}, "1.2.3.4")
	require.NoError(t, err)
	assert.Nil(t, svc.Validate(grant.Token))
}

func TestRevoke(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	user := seedUser(t, db, "alice", "secret")

	grant, err := svc.Issue(context.Background(), Credentials{Login: "alice", Password: "secret"}, "1.2.3.4")
	require.NoError(t, err)

	// 地址不符的登出请求不生效
	assert.False(t, svc.Revoke(context.Background(), grant.Token, "5.6.7.8"))

	assert.True(t, svc.Revoke(context.Background(), grant.Token, "1.2.3.4"))

	var stored model.User
	require.NoError(t, db.Where("code = ?", user.Code).First(&stored).Error)
	assert.Equal(t, LogoutAddress, stored.LoginAddress)
	assert.Equal(t, "1.2.3.4", stored.LastAddress)
}

func TestResetPassword(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	user := seedUser(t, db, "alice", "secret")

	grant, err := svc.Issue(context.Background(), Credentials{Login: "alice", Password: "secret"}, "1.2.3.4")
	require.NoError(t, err)

	assert.False(t, svc.ResetPassword(context.Background(), grant.Token, "1.2.3.4", ""))
	assert.True(t, svc.ResetPassword(context.Background(), grant.Token, "1.2.3.4", "renewed"))

	var stored model.User
	require.NoError(t, db.Where("code = ?", user.Code).First(&stored).Error)
	assert.Equal(t, LogoutAddress, stored.LoginAddress)
	assert.True(t, auth.CheckPassword(stored.Password, "renewed"))
	assert.False(t, auth.CheckPassword(stored.Password, "secret"))

	// 改密后旧口令不能再登录
	_, err = svc.Issue(context.Background(), Credentials{Login: "alice", Password: "secret"}, "1.2.3.4")
	assert.Error(t, err)

	_, err = svc.Issue(context.Background(), Credentials{Login: "alice", Password: "renewed"}, "1.2.3.4")
	assert.NoError(t, err)
}
