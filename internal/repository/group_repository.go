// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"photokeeper-go/internal/model"

	"gorm.io/gorm"
)

// GroupRepository 接口定义了重复组相关的数据持久化操作。
type GroupRepository interface {
	Create(group *model.DuplicateGroup) error
	Save(group *model.DuplicateGroup) error
	Delete(id uint) error
	FindByID(id uint) (*model.DuplicateGroup, error)
	FindByHash(contentHash string) (*model.DuplicateGroup, error)
	FindByStatus(statuses []string, limit, offset int) ([]model.DuplicateGroup, error)
	FindByIDs(ids []uint) ([]model.DuplicateGroup, error)
	FindNextReviewable(afterID uint) (*model.DuplicateGroup, error)
	CountByStatus(status string) (int64, error)
}

// groupRepository 是 GroupRepository 接口的 GORM 实现。
type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository 创建一个新的 GroupRepository 实例。
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

// Create 在数据库中创建一个新的重复组。
func (r *groupRepository) Create(group *model.DuplicateGroup) error {
	return r.db.Create(group).Error
}

// Save 保存对重复组的全部修改。
func (r *groupRepository) Save(group *model.DuplicateGroup) error {
	return r.db.Save(group).Error
}

// Delete 删除一个重复组（成员数跌破 2 时组被解散）。
func (r *groupRepository) Delete(id uint) error {
	return r.db.Delete(&model.DuplicateGroup{}, id).Error
}

// FindByID 根据主键检索一个重复组。
func (r *groupRepository) FindByID(id uint) (*model.DuplicateGroup, error) {
	var group model.DuplicateGroup
	if err := r.db.First(&group, id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// FindByHash 根据内容哈希检索重复组，content_hash 上有唯一约束。
func (r *groupRepository) FindByHash(contentHash string) (*model.DuplicateGroup, error) {
	var group model.DuplicateGroup
	if err := r.db.Where("content_hash = ?", contentHash).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// FindByStatus 按状态分页检索重复组，statuses 为空时返回全部。
func (r *groupRepository) FindByStatus(statuses []string, limit, offset int) ([]model.DuplicateGroup, error) {
	var groups []model.DuplicateGroup
	q := r.db.Order("id asc")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	err := q.Find(&groups).Error
	return groups, err
}

// FindByIDs 批量检索重复组。
func (r *groupRepository) FindByIDs(ids []uint) ([]model.DuplicateGroup, error) {
	var groups []model.DuplicateGroup
	if len(ids) == 0 {
		return groups, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&groups).Error
	return groups, err
}

// FindNextReviewable 检索 id 大于 afterID 的下一个待审核组
// （pending 或 auto_selected），没有更多时返回 gorm.ErrRecordNotFound。
func (r *groupRepository) FindNextReviewable(afterID uint) (*model.DuplicateGroup, error) {
	var group model.DuplicateGroup
	err := r.db.Where("id > ? AND status IN ?", afterID,
		[]string{model.GroupStatusPending, model.GroupStatusAutoSelected}).
		Order("id asc").First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// CountByStatus 统计指定状态的组数量。
func (r *groupRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&model.DuplicateGroup{}).Where("status = ?", status).Count(&count).Error
	return count, err
}
