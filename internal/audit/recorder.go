package audit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/scarecrow/internal/model"
	"github.com/scarecrow/pkg/config"
	"github.com/scarecrow/pkg/dal"
	"github.com/scarecrow/pkg/logger"
	"github.com/scarecrow/pkg/ssql"
)

// Recorder 操作审计记录器
// 只记录变更类操作,并按主体维度维持相对保留窗口
type Recorder struct {
	db        *gorm.DB
	logs      dal.Repository[model.OperationLog]
	users     dal.Repository[model.User]
	roles     dal.Repository[model.Role]
	retention time.Duration
	sweeper   *cron.Cron
}

// NewRecorder 创建审计记录器
func NewRecorder(db *gorm.DB, cfg *config.AuditConfig) *Recorder {
	return &Recorder{
		db:        db,
		logs:      dal.NewBaseRepositoryWithDB[model.OperationLog](db),
		users:     dal.NewBaseRepositoryWithDB[model.User](db),
		roles:     dal.NewBaseRepositoryWithDB[model.Role](db),
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}
}

// recorded 需要留痕的操作
var recorded = map[string]bool{
	"create":         true,
	"update":         true,
	"delete":         true,
	"logout":         true,
	"password_reset": true,
}

// Record 记录一次变更操作
// 读操作不留痕;主体无法唯一定位时静默放弃
func (r *Recorder) Record(ctx context.Context, userCode, roleCode, op, address, args, body, path string) {
	if !recorded[op] {
		return
	}

	users, err := r.users.FindAll(ctx, map[string]interface{}{"code": userCode})
	if err != nil || len(users) != 1 {
		return
	}
	roles, err := r.roles.FindAll(ctx, map[string]interface{}{"code": roleCode})
	if err != nil || len(roles) != 1 {
		return
	}

	entry := &model.OperationLog{
		Username:         users[0].Username,
		RoleName:         roles[0].RoleName,
		Operation:        op,
		UserCode:         userCode,
		RoleCode:         roleCode,
		OptAddress:       address,
		RequestArguments: args,
		RequestBody:      body,
		RequestPath:      path,
	}
	if err := r.logs.Create(ctx, entry); err != nil {
		logger.Error("audit insert failed", logger.Err(err))
		return
	}

	r.prune(ctx, userCode, roleCode)
}

// prune 收缩单个主体的日志窗口
// 以该主体最新一条日志为基准,删除早于基准减保留期的行
func (r *Recorder) prune(ctx context.Context, userCode, roleCode string) {
	var latest model.OperationLog
	err := r.db.WithContext(ctx).
		Where("user_code = ? AND role_code = ?", userCode, roleCode).
		Order("created_timestamp DESC").
		Limit(1).
		Find(&latest).Error
	if err != nil || latest.ID == 0 {
		return
	}

	cutoff := latest.CreatedTimestamp.Add(-r.retention)
	err = r.db.WithContext(ctx).
		Where("user_code = ? AND role_code = ? AND created_timestamp < ?", userCode, roleCode, cutoff).
		Delete(&model.OperationLog{}).Error
	if err != nil {
		logger.Error("audit prune failed", logger.Err(err))
	}
}

// Sweep 对所有主体执行一轮窗口收缩
// 即使主体不再产生新日志,保留窗口也能按时收紧
func (r *Recorder) Sweep(ctx context.Context) {
	type pair struct {
		UserCode string
		RoleCode string
	}
	var pairs []pair
	err := r.db.WithContext(ctx).
		Model(&model.OperationLog{}).
		Distinct("user_code", "role_code").
		Find(&pairs).Error
	if err != nil {
		logger.Error("audit sweep scan failed", logger.Err(err))
		return
	}

	for _, p := range pairs {
		r.prune(ctx, p.UserCode, p.RoleCode)
	}
	logger.Info("audit sweep done", logger.Int("principals", len(pairs)))
}

// StartSweeper 启动定期清理任务
func (r *Recorder) StartSweeper(spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		r.Sweep(context.Background())
	})
	if err != nil {
		return err
	}
	c.Start()
	r.sweeper = c
	return nil
}

// StopSweeper 停止定期清理任务
func (r *Recorder) StopSweeper() {
	if r.sweeper != nil {
		r.sweeper.Stop()
	}
}

// List 审计日志查询
// limits为鉴权给出的行级约束,叠加在请求过滤之上
func (r *Recorder) List(ctx context.Context, params *dal.ListParams, limits ssql.Expression) (*dal.ListResult[model.OperationLog], error) {
	db := r.db
	if limits != nil {
		dialect := ssql.NewGormDialect(r.db.Dialector.Name())
		if sql, args := limits.ToSQL(dialect); sql != "" {
			// 新会话使约束可在统计与取数两趟查询中复用
			db = db.Where(sql, args...).Session(&gorm.Session{})
		}
	}
	return dal.NewCollection[model.OperationLog](db).
		WithDefaultSort("-created_timestamp").
		GetList(ctx, params)
}
