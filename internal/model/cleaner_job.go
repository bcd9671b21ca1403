// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 清理作业类别。
const (
	JobCategoryHashDuplicate = "hash_duplicate"
	JobCategoryNearDuplicate = "near_duplicate"
	JobCategoryManual        = "manual"
)

// 清理作业状态。
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusCancelled = "cancelled"
)

// 作业内单个文件的状态。locating/verifying/archiving/deleting 是管道中间态，
// succeeded/failed/skipped 是终态。
const (
	JobFileStatusPending   = "pending"
	JobFileStatusLocating  = "locating"
	JobFileStatusVerifying = "verifying"
	JobFileStatusArchiving = "archiving"
	JobFileStatusDeleting  = "deleting"
	JobFileStatusSucceeded = "succeeded"
	JobFileStatusFailed    = "failed"
	JobFileStatusSkipped   = "skipped"
)

// CleanerJob 定义了 cleaner_jobs 表的 ORM 模型，代表一个删除工作单元。
type CleanerJob struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Category       string     `gorm:"type:varchar(20);not null" json:"category"`
	GroupID        *uint      `gorm:"default:null" json:"groupId"` // 由哪个重复组发起（manual 作业为空）
	DryRun         bool       `gorm:"not null;default:false" json:"dryRun"`
	Status         string     `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	TotalCount     int        `gorm:"not null;default:0" json:"totalCount"`
	ProcessedCount int        `gorm:"not null;default:0" json:"processedCount"`
	SucceededCount int        `gorm:"not null;default:0" json:"succeededCount"`
	FailedCount    int        `gorm:"not null;default:0" json:"failedCount"`
	SkippedCount   int        `gorm:"not null;default:0" json:"skippedCount"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	CompletedAt    *time.Time `gorm:"default:null" json:"completedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (CleanerJob) TableName() string {
	return "cleaner_jobs"
}

// CleanerJobFile 定义了 cleaner_job_files 表的 ORM 模型，是作业内的一个删除目标。
// FileRecordID 可为空：记录被清除后作业历史仍需保留。
type CleanerJobFile struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID        uint       `gorm:"not null;index" json:"jobId"`
	FileRecordID *uint      `gorm:"default:null" json:"fileRecordId"`
	Path         string     `gorm:"type:varchar(1024);not null" json:"path"`
	ExpectedHash string     `gorm:"type:varchar(32);not null" json:"expectedHash"`
	ExpectedSize int64      `gorm:"not null" json:"expectedSize"`
	Status       string     `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	ArchivePath  string     `gorm:"type:varchar(1024)" json:"archivePath"`
	ErrorText    string     `gorm:"type:text" json:"errorText"`
	ProcessedAt  *time.Time `gorm:"default:null" json:"processedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (CleanerJobFile) TableName() string {
	return "cleaner_job_files"
}
