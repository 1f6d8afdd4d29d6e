package model

import (
	"github.com/scarecrow/pkg/dal"
)

// Restrict 行级约束模型
// constraints为JSON约束列表,命中的行会被取反排除
type Restrict struct {
	dal.Model
	ResourceCode string    `gorm:"size:64;uniqueIndex:idx_restrict_rule;not null" json:"resource_code"`
	RoleCode     string    `gorm:"size:64;uniqueIndex:idx_restrict_rule;not null" json:"role_code"`
	UserCode     string    `gorm:"size:64;uniqueIndex:idx_restrict_rule;not null" json:"user_code"`
	TargetTable  string    `gorm:"column:table_name;size:64;uniqueIndex:idx_restrict_rule;not null" json:"table_name"`
	Constraints  string    `gorm:"type:text" json:"constraints"`
	Resource     *Resource `gorm:"foreignKey:ResourceCode;references:Code;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Role         *Role     `gorm:"foreignKey:RoleCode;references:Code;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	User         *User     `gorm:"foreignKey:UserCode;references:Code;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// TableName 表名
func (Restrict) TableName() string {
	return "restrict"
}
