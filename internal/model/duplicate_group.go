// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 重复组生命周期状态。
// 除 skip/undo 显式回退一步外，状态只能单调前进。
const (
	GroupStatusPending        = "pending"
	GroupStatusAutoSelected   = "auto_selected"
	GroupStatusValidated      = "validated"
	GroupStatusCleaning       = "cleaning"
	GroupStatusCleaned        = "cleaned"
	GroupStatusCleaningFailed = "cleaning_failed"
)

// 组上最近一次可撤销的操作，Undo 据此回退。
const (
	GroupActionPropose  = "propose"
	GroupActionValidate = "validate"
	GroupActionSkip     = "skip"
)

// DuplicateGroup 定义了 duplicate_groups 表的 ORM 模型。
// 一个组由共享同一内容哈希的所有文件记录构成。
// 不变式：FileCount 等于引用该组的成活成员数；OriginalFileID 要么为空要么指向当前成员。
type DuplicateGroup struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ContentHash string `gorm:"type:varchar(32);not null;uniqueIndex" json:"contentHash"`
	FileCount   int    `gorm:"not null" json:"fileCount"`
	TotalSize   int64  `gorm:"not null" json:"totalSize"`
	Status      string `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	// Conflict 表示自动评分无法可靠分出胜者，需要人工裁决，属于 pending 的子状态。
	Conflict       bool       `gorm:"not null;default:false" json:"conflict"`
	OriginalFileID *uint      `gorm:"default:null" json:"originalFileId"`
	KeptFileID     *uint      `gorm:"default:null" json:"keptFileId"`
	SessionID      *uint      `gorm:"default:null" json:"sessionId"` // 正在审核本组的会话
	LastAction     string     `gorm:"type:varchar(16)" json:"lastAction"`
	ValidatedAt    *time.Time `gorm:"default:null" json:"validatedAt"`
	CleaningAt     *time.Time `gorm:"default:null" json:"cleaningAt"`
	CleanedAt      *time.Time `gorm:"default:null" json:"cleanedAt"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DuplicateGroup) TableName() string {
	return "duplicate_groups"
}
