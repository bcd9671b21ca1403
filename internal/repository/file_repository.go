// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"
	"time"

	"photokeeper-go/internal/model"

	"gorm.io/gorm"
)

// FileRepository 接口定义了文件记录相关的数据持久化操作。
type FileRepository interface {
	Upsert(record *model.FileRecord) error
	FindByID(id uint) (*model.FileRecord, error)
	FindByPath(path string) (*model.FileRecord, error)
	FindByIDs(ids []uint) ([]model.FileRecord, error)
	FindByGroupID(groupID uint) ([]model.FileRecord, error)
	FindAllLive() ([]model.FileRecord, error)
	FindLiveByHash(contentHash string) ([]model.FileRecord, error)
	AssignGroup(ids []uint, groupID *uint) error
	MarkDeleted(id uint) error
}

// fileRepository 是 FileRepository 接口的 GORM 实现。
type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository 创建一个新的 FileRepository 实例。
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

// Upsert 按路径写入或更新一条文件记录。
// 索引管道对同一路径的重复上报会刷新哈希、大小与元数据。
func (r *fileRepository) Upsert(record *model.FileRecord) error {
	var existing model.FileRecord
	err := r.db.Where("path = ?", record.Path).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(record).Error
	}
	if err != nil {
		return err
	}
	record.ID = existing.ID
	record.GroupID = existing.GroupID
	record.CreatedAt = existing.CreatedAt
	return r.db.Save(record).Error
}

// FindByID 根据主键检索一条文件记录。
func (r *fileRepository) FindByID(id uint) (*model.FileRecord, error) {
	var record model.FileRecord
	if err := r.db.First(&record, id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByPath 根据文件路径检索一条文件记录。
func (r *fileRepository) FindByPath(path string) (*model.FileRecord, error) {
	var record model.FileRecord
	if err := r.db.Where("path = ?", path).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByIDs 批量检索文件记录。
func (r *fileRepository) FindByIDs(ids []uint) ([]model.FileRecord, error) {
	var records []model.FileRecord
	if len(ids) == 0 {
		return records, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&records).Error
	return records, err
}

// FindByGroupID 检索引用指定重复组的所有未删除成员。
func (r *fileRepository) FindByGroupID(groupID uint) ([]model.FileRecord, error) {
	var records []model.FileRecord
	err := r.db.Where("group_id = ? AND deleted = ?", groupID, false).Find(&records).Error
	return records, err
}

// FindAllLive 检索所有未被软删除的文件记录，用于全量重建分组。
func (r *fileRepository) FindAllLive() ([]model.FileRecord, error) {
	var records []model.FileRecord
	err := r.db.Where("deleted = ?", false).Order("id asc").Find(&records).Error
	return records, err
}

// FindLiveByHash 检索共享同一内容哈希的所有未删除记录。
func (r *fileRepository) FindLiveByHash(contentHash string) ([]model.FileRecord, error) {
	var records []model.FileRecord
	err := r.db.Where("content_hash = ? AND deleted = ?", contentHash, false).Find(&records).Error
	return records, err
}

// AssignGroup 批量更新一组文件记录的所属重复组。groupID 为 nil 表示脱离分组。
func (r *fileRepository) AssignGroup(ids []uint, groupID *uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&model.FileRecord{}).Where("id IN ?", ids).Update("group_id", groupID).Error
}

// MarkDeleted 对文件记录做软删除标记，记录本身保留。
func (r *fileRepository) MarkDeleted(id uint) error {
	now := time.Now()
	return r.db.Model(&model.FileRecord{}).Where("id = ?", id).
		Updates(map[string]interface{}{"deleted": true, "deleted_time": &now}).Error
}
