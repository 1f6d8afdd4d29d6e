package model

import (
	"github.com/scarecrow/pkg/dal"
)

// Resource 受控资源模型
// code由uri+attribute确定性派生,同一资源重复注册得到同一行
type Resource struct {
	dal.Model
	Attribute    string `gorm:"size:64;uniqueIndex:idx_resource_attr_uri;not null" json:"attribute"`
	Code         string `gorm:"size:64;uniqueIndex;not null" json:"code"`
	ResourceName string `gorm:"size:128" json:"resource_name"`
	ResourceURI  string `gorm:"size:255;uniqueIndex:idx_resource_attr_uri;not null" json:"resource_uri"`
	Note         string `gorm:"size:255" json:"note"`
}

// TableName 表名
func (Resource) TableName() string {
	return "resource"
}
