package model

import (
	"github.com/scarecrow/pkg/dal"
)

// OperationLog 操作审计模型
type OperationLog struct {
	dal.Model
	Username         string `gorm:"size:64" json:"username"`
	RoleName         string `gorm:"size:64" json:"role_name"`
	Operation        string `gorm:"size:16;not null" json:"operation"`
	UserCode         string `gorm:"size:64;index:idx_log_principal;not null" json:"user_code"`
	RoleCode         string `gorm:"size:64;index:idx_log_principal;not null" json:"role_code"`
	OptAddress       string `gorm:"size:64" json:"opt_address"`
	RequestArguments string `gorm:"type:text" json:"request_arguments"`
	RequestBody      string `gorm:"type:text" json:"request_body"`
	RequestPath      string `gorm:"size:255" json:"request_path"`
	User             *User  `gorm:"foreignKey:UserCode;references:Code;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Role             *Role  `gorm:"foreignKey:RoleCode;references:Code;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// TableName 表名
func (OperationLog) TableName() string {
	return "operation_logs"
}
