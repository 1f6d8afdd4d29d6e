package model

import (
	"github.com/scarecrow/pkg/dal"
)

// Scepter 操作禁令模型
// 存在一行即表示:该角色在该资源上禁止执行该操作
type Scepter struct {
	dal.Model
	ResourceCode string    `gorm:"size:64;uniqueIndex:idx_scepter_rule;not null" json:"resource_code"`
	RoleCode     string    `gorm:"size:64;uniqueIndex:idx_scepter_rule;not null" json:"role_code"`
	Operation    string    `gorm:"size:16;uniqueIndex:idx_scepter_rule;not null" json:"operation"`
	Resource     *Resource `gorm:"foreignKey:ResourceCode;references:Code;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Role         *Role     `gorm:"foreignKey:RoleCode;references:Code;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// TableName 表名
func (Scepter) TableName() string {
	return "scepter"
}
