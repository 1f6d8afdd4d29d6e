package dal

import (
	"time"

	"gorm.io/gorm"
)

// Model 基础模型
// 所有受管表都带创建/更新时间戳,审计清理依赖created_timestamp
type Model struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedTimestamp time.Time `gorm:"column:created_timestamp;autoCreateTime" json:"created_timestamp"`
	UpdatedTimestamp time.Time `gorm:"column:updated_timestamp;autoUpdateTime" json:"updated_timestamp"`
}

// QueryOption 查询选项
type QueryOption func(*gorm.DB) *gorm.DB

func WithPreload(query string, args ...any) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Preload(query, args...) }
}

func WithOrder(order string) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Order(order) }
}

func WithSelect(fields ...string) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Select(fields) }
}
