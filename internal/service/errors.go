// Package service 包含了应用的业务逻辑层。
package service

import "errors"

// 业务错误分类。handler 层据此映射 HTTP 状态码。
var (
	// ErrNotFound 表示引用的组/文件/作业/偏好不存在，直接返回调用方，不重试。
	ErrNotFound = errors.New("资源不存在")
	// ErrConflict 表示自动评分无法分出胜者或前缀规则冲突，必须由人工裁决。
	ErrConflict = errors.New("评分冲突，需要人工裁决")
	// ErrValidation 表示请求不合法（如将原始文件设为组外文件），在任何状态变更前被拒绝。
	ErrValidation = errors.New("请求校验失败")
	// ErrIntegrityMismatch 表示磁盘内容与索引时的哈希/大小不一致，
	// 对该文件视为致命错误，绝不自动重试。
	ErrIntegrityMismatch = errors.New("内容完整性校验失败")
	// ErrNoWorkerConnected 表示指令没有可达的 worker，立即上报而不是排队。
	ErrNoWorkerConnected = errors.New("没有已连接的 worker")
)
