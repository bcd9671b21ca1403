// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"photokeeper-go/internal/model"

	"gorm.io/gorm"
)

// PreferenceRepository 接口定义了选择偏好（路径前缀优先级）的数据持久化操作。
type PreferenceRepository interface {
	FindAllOrdered() ([]model.SelectionPreference, error)
	ReplaceAll(prefs []model.SelectionPreference) error
	DeleteAll() error
}

// preferenceRepository 是 PreferenceRepository 接口的 GORM 实现。
type preferenceRepository struct {
	db *gorm.DB
}

// NewPreferenceRepository 创建一个新的 PreferenceRepository 实例。
func NewPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

// FindAllOrdered 按显式排序列返回全部偏好规则。
func (r *preferenceRepository) FindAllOrdered() ([]model.SelectionPreference, error) {
	var prefs []model.SelectionPreference
	err := r.db.Order("sort_order asc, id asc").Find(&prefs).Error
	return prefs, err
}

// ReplaceAll 在一个事务内用给定列表整体替换现有偏好规则。
func (r *preferenceRepository) ReplaceAll(prefs []model.SelectionPreference) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.SelectionPreference{}).Error; err != nil {
			return err
		}
		for i := range prefs {
			prefs[i].ID = 0
			prefs[i].SortOrder = i
			prefs[i].Priority = model.ClampPriority(prefs[i].Priority)
			if err := tx.Create(&prefs[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteAll 清空全部偏好规则（重置为默认）。
func (r *preferenceRepository) DeleteAll() error {
	return r.db.Where("1 = 1").Delete(&model.SelectionPreference{}).Error
}
