// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 路径前缀优先级的取值范围，超出时被截断。
const (
	PriorityMin = 0
	PriorityMax = 100
)

// SelectionPreference 定义了 selection_preferences 表的 ORM 模型。
// 它是一条"路径前缀 -> 优先级"映射，评分时按最长前缀匹配取胜。
type SelectionPreference struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PathPrefix string    `gorm:"type:varchar(512);not null" json:"pathPrefix"`
	Priority   int       `gorm:"not null" json:"priority"`
	SortOrder  int       `gorm:"not null;default:0" json:"sortOrder"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (SelectionPreference) TableName() string {
	return "selection_preferences"
}

// ClampPriority 将优先级截断到合法范围内。
func ClampPriority(p int) int {
	if p < PriorityMin {
		return PriorityMin
	}
	if p > PriorityMax {
		return PriorityMax
	}
	return p
}

// SelectionSession 定义了 selection_sessions 表的 ORM 模型。
// 它记录一名审核者对待决重复组积压的一次有序遍历。
type SelectionSession struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ProposedCount  int        `gorm:"not null;default:0" json:"proposedCount"`
	ValidatedCount int        `gorm:"not null;default:0" json:"validatedCount"`
	SkippedCount   int        `gorm:"not null;default:0" json:"skippedCount"`
	CurrentGroupID *uint      `gorm:"default:null" json:"currentGroupId"`
	LastGroupID    *uint      `gorm:"default:null" json:"lastGroupId"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	ResumedAt      *time.Time `gorm:"default:null" json:"resumedAt"`
	CompletedAt    *time.Time `gorm:"default:null" json:"completedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (SelectionSession) TableName() string {
	return "selection_sessions"
}
