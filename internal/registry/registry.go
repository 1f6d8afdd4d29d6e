package registry

import (
	"context"
	"regexp"
	"sync"

	"gorm.io/gorm"

	"github.com/scarecrow/internal/model"
	"github.com/scarecrow/pkg/auth"
	"github.com/scarecrow/pkg/dal"
	"github.com/scarecrow/pkg/logger"
	"github.com/scarecrow/pkg/utils"
)

// entry 已注册的受控资源
type entry struct {
	pattern *regexp.Regexp
	uri     string
	name    string
	code    string
}

// Registry 资源注册表
// 注册顺序即匹配顺序,先注册的模式优先命中
type Registry struct {
	mu        sync.RWMutex
	attribute string
	entries   []entry

	resources dal.Repository[model.Resource]
	roles     dal.Repository[model.Role]
	users     dal.Repository[model.User]
}

// New 创建资源注册表
func New(db *gorm.DB, attribute string) *Registry {
	return &Registry{
		attribute: attribute,
		resources: dal.NewBaseRepositoryWithDB[model.Resource](db),
		roles:     dal.NewBaseRepositoryWithDB[model.Role](db),
		users:     dal.NewBaseRepositoryWithDB[model.User](db),
	}
}

// Code 派生资源编码
// uri+attribute确定性散列,重复注册恒得同一编码
func (r *Registry) Code(uri string) string {
	return utils.NameUUID(uri + r.attribute)
}

// Register 注册受控资源模式
func (r *Registry) Register(uriPattern, name string) error {
	re, err := regexp.Compile(uriPattern)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{
		pattern: re,
		uri:     uriPattern,
		name:    name,
		code:    r.Code(uriPattern),
	})
	return nil
}

// Resolve 将请求路径解析为资源编码
// 无匹配返回空串,调用方按未受控资源处理
func (r *Registry) Resolve(requestPath string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.pattern.MatchString(requestPath) {
			return e.code
		}
	}
	return ""
}

// Rebuild 将注册的资源模式落库并完成初始授权数据
// 幂等:已存在的行不重复创建
func (r *Registry) Rebuild(ctx context.Context) error {
	if err := r.seed(ctx); err != nil {
		return err
	}

	r.mu.RLock()
	entries := make([]entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	for _, e := range entries {
		exists, err := r.resources.Exists(ctx, map[string]interface{}{
			"attribute":    r.attribute,
			"resource_uri": e.uri,
		})
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		res := &model.Resource{
			Attribute:    r.attribute,
			Code:         e.code,
			ResourceName: e.name,
			ResourceURI:  e.uri,
		}
		if err := r.resources.Create(ctx, res); err != nil {
			return err
		}
		logger.Info("resource registered",
			logger.String("uri", e.uri),
			logger.String("code", e.code),
		)
	}
	return nil
}

// seed 初始角色与管理员
func (r *Registry) seed(ctx context.Context) error {
	rootCode := utils.NameUUID("root")
	exists, err := r.roles.Exists(ctx, map[string]interface{}{"code": rootCode})
	if err != nil {
		return err
	}
	if !exists {
		role := &model.Role{
			RoleName:   "root",
			Code:       rootCode,
			ShortTitle: "root",
			Status:     1,
			UsageNote:  "内置超级角色",
		}
		if err := r.roles.Create(ctx, role); err != nil {
			return err
		}
	}

	adminCode := utils.NameUUID("admin")
	exists, err = r.users.Exists(ctx, map[string]interface{}{"code": adminCode})
	if err != nil {
		return err
	}
	if !exists {
		hash, err := auth.HashPassword("admin")
		if err != nil {
			return err
		}
		user := &model.User{
			Username: "admin",
			Password: hash,
			Nickname: "admin",
			Code:     adminCode,
			Status:   1,
			Note:     "内置管理员,部署后应立即改密",
			Email:    "admin@localhost",
			RoleCode: rootCode,
		}
		if err := r.users.Create(ctx, user); err != nil {
			return err
		}
	}
	return nil
}
