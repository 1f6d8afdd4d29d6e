package crud

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scarecrow/internal/access"
	"github.com/scarecrow/internal/audit"
	"github.com/scarecrow/internal/authapi"
	"github.com/scarecrow/internal/model"
	"github.com/scarecrow/internal/registry"
	"github.com/scarecrow/internal/resolver"
	"github.com/scarecrow/internal/schema"
	"github.com/scarecrow/internal/token"
	"github.com/scarecrow/pkg/auth"
	"github.com/scarecrow/pkg/config"
	"github.com/scarecrow/pkg/router"
	"github.com/scarecrow/pkg/utils"
)

const testAddr = "9.9.9.9"

type gateway struct {
	app       *fiber.App
	db        *gorm.DB
	resources *registry.Registry
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Role{}, &model.User{}, &model.Resource{},
		&model.Scepter{}, &model.Restrict{}, &model.OperationLog{},
	))
	require.NoError(t, db.Exec(
		`CREATE TABLE customer (id INTEGER PRIMARY KEY, code TEXT, name TEXT, region TEXT, created_timestamp DATETIME, updated_timestamp DATETIME)`,
	).Error)

	schemaReg := schema.NewRegistry()
	schemaReg.LoadTables(db, []string{"roles", "users", "resource", "scepter", "restrict", "operation_logs", "customer"})
	schemaReg.SetCodeSource("roles", "role_name")
	schemaReg.SetCodeSource("users", "username")
	store := schema.NewStore(db, schemaReg)

	resources := registry.New(db, "test")
	require.NoError(t, resources.Register("^/api/login$", "login"))
	require.NoError(t, resources.Register("^/api/logout$", "logout"))
	require.NoError(t, resources.Register("^/api/password_reset$", "password_reset"))
	require.NoError(t, resources.Register("^/api/logs$", "logs"))
	for _, table := range schemaReg.Names() {
		require.NoError(t, resources.Register("^/api/"+table+"(/.*)?$", table))
	}
	require.NoError(t, resources.Rebuild(context.Background()))

	tokens := token.NewService(&config.TokenConfig{Secret: "s", Issuer: "t", Expire: 3600}, db)
	evaluator := access.NewEvaluator(db, tokens, resources)
	recorder := audit.NewRecorder(db, &config.AuditConfig{RetentionDays: 30})
	rv := resolver.New(store)

	app := fiber.New()
	authCtrl := authapi.NewController(tokens, recorder)
	logsCtrl := audit.NewController(recorder, evaluator)
	crudCtrl := NewController(store, rv, evaluator, recorder, &config.CRUDConfig{
		ResultsPerPage:    10,
		MaxResultsPerPage: 100,
	})
	router.Register(app, map[string]fiber.Handler{}, authCtrl, logsCtrl, crudCtrl)

	return &gateway{app: app, db: db, resources: resources}
}

func (g *gateway) request(t *testing.T, method, path, tokenStr string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Real-Ip", testAddr)
	req.Header.Set("Content-Type", "application/json")
	if tokenStr != "" {
		req.Header.Set("token", tokenStr)
	}
	resp, err := g.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func (g *gateway) login(t *testing.T) string {
	t.Helper()
	resp := g.request(t, http.MethodPost, "/api/login", "", fiber.Map{
		"username": "admin",
		"password": "admin",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Status bool   `json:"status"`
			Token  string `json:"token"`
		} `json:"data"`
	}
	decode(t, resp, &body)
	require.True(t, body.Data.Status)
	require.NotEmpty(t, body.Data.Token)
	return body.Data.Token
}

type page struct {
	NumResults int64                    `json:"num_results"`
	TotalPages int64                    `json:"total_pages"`
	Page       int                      `json:"page"`
	Objects    []map[string]interface{} `json:"objects"`
}

func TestRequestWithoutTokenDenied(t *testing.T) {
	g := newGateway(t)
	resp := g.request(t, http.MethodGet, "/api/customer", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	g := newGateway(t)
	resp := g.request(t, http.MethodPost, "/api/login", "", fiber.Map{
		"username": "admin",
		"password": "nope",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Status bool `json:"status"`
		} `json:"data"`
	}
	decode(t, resp, &body)
	assert.False(t, body.Data.Status)
}

func TestCRUDFlow(t *testing.T) {
	g := newGateway(t)
	tok := g.login(t)

	// 空列表
	resp := g.request(t, http.MethodGet, "/api/customer", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var empty page
	decode(t, resp, &empty)
	assert.Zero(t, empty.NumResults)
	assert.NotNil(t, empty.Objects)

	// 新增
	resp = g.request(t, http.MethodPost, "/api/customer", tok, fiber.Map{
		"name": "alice", "region": "east",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = g.request(t, http.MethodGet, "/api/customer", tok, nil)
	var listed page
	decode(t, resp, &listed)
	require.Equal(t, int64(1), listed.NumResults)
	assert.Equal(t, "alice", listed.Objects[0]["name"])

	// 更新
	resp = g.request(t, http.MethodPut, "/api/customer/1", tok, fiber.Map{"region": "west"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated struct {
		Data struct {
			NumModified int64 `json:"num_modified"`
		} `json:"data"`
	}
	decode(t, resp, &updated)
	assert.Equal(t, int64(1), updated.Data.NumModified)

	// 实例读取
	resp = g.request(t, http.MethodGet, "/api/customer/1", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var one struct {
		Data map[string]interface{} `json:"data"`
	}
	decode(t, resp, &one)
	assert.Equal(t, "west", one.Data["region"])

	// 删除
	resp = g.request(t, http.MethodDelete, "/api/customer/1", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var deleted struct {
		Data struct {
			NumDeleted int64 `json:"num_deleted"`
		} `json:"data"`
	}
	decode(t, resp, &deleted)
	assert.Equal(t, int64(1), deleted.Data.NumDeleted)

	// 变更操作全部留痕
	var logs int64
	require.NoError(t, g.db.Model(&model.OperationLog{}).Count(&logs).Error)
	assert.Equal(t, int64(3), logs)
}

func TestFilteredList(t *testing.T) {
	g := newGateway(t)
	tok := g.login(t)

	for _, m := range []fiber.Map{
		{"name": "alice", "region": "east"},
		{"name": "bob", "region": "west"},
	} {
		resp := g.request(t, http.MethodPost, "/api/customer", tok, m)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := g.request(t, http.MethodGet,
		`/api/customer?filters=[{"name":"region","op":"==","value":"east"}]`, tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed page
	decode(t, resp, &listed)
	require.Equal(t, int64(1), listed.NumResults)
	assert.Equal(t, "alice", listed.Objects[0]["name"])
}

func TestOffsetAndLimitOverHTTP(t *testing.T) {
	g := newGateway(t)
	tok := g.login(t)

	for _, m := range []fiber.Map{
		{"name": "alice", "region": "east"},
		{"name": "bob", "region": "west"},
		{"name": "carol", "region": "north"},
	} {
		resp := g.request(t, http.MethodPost, "/api/customer", tok, m)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// offset跳过首条,limit只取一条,总数不受影响
	resp := g.request(t, http.MethodGet, "/api/customer?offset=1&limit=1&order_by=id&direction=asc", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed page
	decode(t, resp, &listed)
	assert.Equal(t, int64(3), listed.NumResults)
	require.Len(t, listed.Objects, 1)
	assert.Equal(t, "bob", listed.Objects[0]["name"])

	resp = g.request(t, http.MethodGet, "/api/customer?offset=-1", tok, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOperationLogListingOverHTTP(t *testing.T) {
	g := newGateway(t)
	tok := g.login(t)

	resp := g.request(t, http.MethodPost, "/api/customer", tok, fiber.Map{"name": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = g.request(t, http.MethodPut, "/api/customer/1", tok, fiber.Map{"region": "east"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = g.request(t, http.MethodGet, "/api/logs", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed page
	decode(t, resp, &listed)
	assert.Equal(t, int64(2), listed.NumResults)

	// filter走ssql过滤串
	resp = g.request(t, http.MethodGet,
		"/api/logs?filter=operation%20%3D%20%22update%22", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &listed)
	require.Equal(t, int64(1), listed.NumResults)
	assert.Equal(t, "update", listed.Objects[0]["operation"])

	// 无令牌一律拒绝
	resp = g.request(t, http.MethodGet, "/api/logs", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestScepterDenyOverHTTP(t *testing.T) {
	g := newGateway(t)
	tok := g.login(t)

	require.NoError(t, g.db.Create(&model.Scepter{
		ResourceCode: g.resources.Code("^/api/customer(/.*)?$"),
		RoleCode:     utils.NameUUID("root"),
		Operation:    access.OpDelete,
	}).Error)

	resp := g.request(t, http.MethodDelete, "/api/customer/1", tok, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	// 其余操作不受禁令影响
	resp = g.request(t, http.MethodGet, "/api/customer", tok, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRestrictNarrowsListOverHTTP(t *testing.T) {
	g := newGateway(t)
	tok := g.login(t)

	for _, m := range []fiber.Map{
		{"name": "alice", "region": "east"},
		{"name": "bob", "region": "west"},
	} {
		resp := g.request(t, http.MethodPost, "/api/customer", tok, m)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// 约束描述要排除的行:east被挡在结果之外
	require.NoError(t, g.db.Create(&model.Restrict{
		ResourceCode: g.resources.Code("^/api/customer(/.*)?$"),
		RoleCode:     utils.NameUUID("root"),
		UserCode:     utils.NameUUID("admin"),
		TargetTable:  "customer",
		Constraints:  `[{"name":"region","op":"==","value":"east"}]`,
	}).Error)

	resp := g.request(t, http.MethodGet, "/api/customer", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed page
	decode(t, resp, &listed)
	require.Equal(t, int64(1), listed.NumResults)
	assert.Equal(t, "bob", listed.Objects[0]["name"])
}

func TestMalformedPathRejected(t *testing.T) {
	g := newGateway(t)
	tok := g.login(t)

	resp := g.request(t, http.MethodGet, "/api/customer/1,2/other", tok, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteWithoutScopeRejected(t *testing.T) {
	g := newGateway(t)
	tok := g.login(t)

	resp := g.request(t, http.MethodDelete, "/api/customer", tok, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateUserHashesPassword(t *testing.T) {
	g := newGateway(t)
	tok := g.login(t)

	resp := g.request(t, http.MethodPost, "/api/users", tok, fiber.Map{
		"username":  "bob",
		"password":  "plaintext",
		"email":     "bob@example.com",
		"role_code": utils.NameUUID("root"),
		"status":    1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stored model.User
	require.NoError(t, g.db.Where("username = ?", "bob").First(&stored).Error)
	assert.NotEqual(t, "plaintext", stored.Password)
	assert.True(t, auth.CheckPassword(stored.Password, "plaintext"))
	assert.Equal(t, utils.NameUUID("bob"), stored.Code)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	g := newGateway(t)
	tok := g.login(t)

	resp := g.request(t, http.MethodGet, "/api/logout", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Data struct {
			LogoutStatus bool `json:"logout_status"`
		} `json:"data"`
	}
	decode(t, resp, &body)
	assert.True(t, body.Data.LogoutStatus)

	resp = g.request(t, http.MethodGet, "/api/customer", tok, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	g := newGateway(t)
	tok := g.login(t)

	resp := g.request(t, http.MethodPost, "/api/password_reset", tok, fiber.Map{"password": "renewed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Data struct {
			PasswordReset bool `json:"password_reset"`
		} `json:"data"`
	}
	decode(t, resp, &body)
	require.True(t, body.Data.PasswordReset)

	// 旧令牌随改密失效,新口令可重新登录
	resp = g.request(t, http.MethodGet, "/api/customer", tok, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = g.request(t, http.MethodPost, "/api/login", "", fiber.Map{
		"username": "admin",
		"password": "renewed",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var relogin struct {
		Data struct {
			Status bool `json:"status"`
		} `json:"data"`
	}
	decode(t, resp, &relogin)
	assert.True(t, relogin.Data.Status)
}
