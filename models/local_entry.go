package models

import "time"

// LocalEntry 本地持久化键值，对应浏览器 localStorage 的一项
type LocalEntry struct {
	Key       string    `gorm:"column:storage_key;primaryKey;size:191"`
	Value     string    `gorm:"column:storage_value;type:text"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName 设置表名
func (LocalEntry) TableName() string {
	return "local_storage"
}
