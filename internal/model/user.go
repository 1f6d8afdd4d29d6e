package model

import (
	"time"

	"github.com/scarecrow/pkg/dal"
)

// User 用户模型
// login_address为0.0.0.0表示已登出
type User struct {
	dal.Model
	Username         string     `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Password         string     `gorm:"size:128;not null" json:"-"`
	Nickname         string     `gorm:"size:64" json:"nickname"`
	Code             string     `gorm:"size:64;uniqueIndex;not null" json:"code"`
	Status           int8       `gorm:"default:1" json:"status"`
	Note             string     `gorm:"size:255" json:"note"`
	Email            string     `gorm:"size:128;uniqueIndex" json:"email"`
	RoleCode         string     `gorm:"size:64;index;not null" json:"role_code"`
	Role             *Role      `gorm:"foreignKey:RoleCode;references:Code;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"role,omitempty"`
	LoginAddress     string     `gorm:"size:64;default:0.0.0.0" json:"login_address"`
	LastAddress      string     `gorm:"size:64" json:"last_address"`
	RecentAccessTime *time.Time `json:"recent_access_time,omitempty"`
}

// TableName 表名
func (User) TableName() string {
	return "users"
}
