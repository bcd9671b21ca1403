// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// FileRecord 定义了 file_records 表的 ORM 模型。
// 它是索引管道产出的一条已索引文件记录，核心模块以只读为主。
// 文件从磁盘删除后记录只做软删除标记，不会物理移除。
type FileRecord struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Path        string     `gorm:"type:varchar(1024);not null" json:"path"`
	ContentHash string     `gorm:"type:varchar(32);not null;index" json:"contentHash"`
	Size        int64      `gorm:"not null" json:"size"`
	ModTime     time.Time  `gorm:"not null" json:"modTime"`
	GroupID     *uint      `gorm:"index" json:"groupId"` // 所属重复组，仅保存 id 避免循环引用
	CaptureTime *time.Time `gorm:"default:null" json:"captureTime"`
	CameraModel string     `gorm:"type:varchar(128)" json:"cameraModel"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Deleted     bool       `gorm:"not null;default:false" json:"deleted"`
	DeletedTime *time.Time `gorm:"default:null" json:"deletedTime"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FileRecord) TableName() string {
	return "file_records"
}

// HasRichMetadata 判断记录是否带有拍摄时间/相机/尺寸等元数据。
// 元数据的存在说明该副本不是被转码或剥离过的拷贝。
func (f *FileRecord) HasRichMetadata() bool {
	return f.CaptureTime != nil || f.CameraModel != "" || (f.Width > 0 && f.Height > 0)
}
