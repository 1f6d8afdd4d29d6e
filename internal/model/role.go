package model

import (
	"github.com/scarecrow/pkg/dal"
)

// Role 角色模型
type Role struct {
	dal.Model
	RoleName   string `gorm:"size:64;uniqueIndex;not null" json:"role_name"`
	Code       string `gorm:"size:64;uniqueIndex;not null" json:"code"`
	ShortTitle string `gorm:"size:64" json:"short_title"`
	Status     int8   `gorm:"default:1" json:"status"`
	UsageNote  string `gorm:"size:255" json:"usage_note"`
}

// TableName 表名
func (Role) TableName() string {
	return "roles"
}
