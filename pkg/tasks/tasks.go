// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// IndexedFileTask 是索引管道在 intake 主题上发布的一条已索引文件记录。
// 协调服务消费后交给分组服务。
type IndexedFileTask struct {
	Path        string     `json:"path"`
	ContentHash string     `json:"content_hash"`
	Size        int64      `json:"size"`
	ModTime     time.Time  `json:"mod_time"`
	CaptureTime *time.Time `json:"capture_time,omitempty"`
	CameraModel string     `json:"camera_model,omitempty"`
	Width       int        `json:"width,omitempty"`
	Height      int        `json:"height,omitempty"`
	// Removed 为 true 表示文件已从磁盘消失，记录应做软删除并触发所在组的收缩。
	Removed bool `json:"removed,omitempty"`
}
