package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"financify/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 基于 gorm 的持久化实现，表 local_storage
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建 gorm 存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(key string) (string, bool, error) {
	var entry models.LocalEntry
	err := s.db.Where("storage_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("查询 %s 失败: %w", key, err)
	}
	return entry.Value, true, nil
}

func (s *GormStore) Set(key, value string) error {
	entry := models.LocalEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"storage_value", "updated_at"}),
	}).Create(&entry).Error
}

func (s *GormStore) Remove(key string) error {
	return s.db.Where("storage_key = ?", key).Delete(&models.LocalEntry{}).Error
}

func (s *GormStore) Keys(prefix string) ([]string, error) {
	var keys []string
	// LIKE 中 _ 为通配符，先粗筛再精确比对前缀
	if err := s.db.Model(&models.LocalEntry{}).
		Where("storage_key LIKE ?", prefix+"%").
		Order("storage_key ASC").
		Pluck("storage_key", &keys).Error; err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}
