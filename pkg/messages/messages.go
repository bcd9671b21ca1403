// Package messages 定义了协调服务与 worker 进程之间 WebSocket 通道上的指令与事件结构。
package messages

import "encoding/json"

// worker 角色。
const (
	KindIndexer   = "indexer"
	KindCleaner   = "cleaner"
	KindMetadata  = "metadata"
	KindThumbnail = "thumbnail"
)

// worker 运行状态。
const (
	StateIdle       = "idle"
	StateProcessing = "processing"
	StateUploading  = "uploading"
	StateDeleting   = "deleting"
)

// 协调服务 -> worker 的指令类型。
const (
	CmdReprocessFile  = "reprocess_file"
	CmdReprocessFiles = "reprocess_files"
	CmdDeleteFile     = "delete_file"
	CmdDeleteFiles    = "delete_files"
	CmdCancelJob      = "cancel_job"
	CmdSetDryRun      = "set_dry_run"
	CmdRequestStatus  = "request_status"
	CmdTriggerScan    = "trigger_scan"
)

// worker -> 协调服务（以及转发给观察者）的事件类型。
const (
	EvtAnnounce           = "announce"
	EvtStatusUpdate       = "status_update"
	EvtProgress           = "progress"
	EvtDeleteComplete     = "delete_complete"
	EvtJobComplete        = "job_complete"
	EvtWorkerConnected    = "worker_connected"
	EvtWorkerDisconnected = "worker_disconnected"
)

// Envelope 是通道上所有消息的统一外层结构。
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode 将类型和负载打包为一条可发送的 JSON 消息。
func Encode(msgType string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// Announce 是 worker 建立连接后声明逻辑身份的首条消息。
// 未发送该消息的连接被视为匿名观察者而非 worker。
type Announce struct {
	Kind       string `json:"kind"`
	InstanceID string `json:"instanceId"`
	Hostname   string `json:"hostname"`
}

// StatusUpdate 是 worker 周期上报的运行状态。
type StatusUpdate struct {
	WorkerID  string `json:"workerId"`
	State     string `json:"state"`
	DryRun    bool   `json:"dryRun"`
	LastError string `json:"lastError,omitempty"`
	Heartbeat int64  `json:"heartbeat"` // Unix 毫秒
}

// ReprocessFile 指示 indexer 重新处理单个文件。
type ReprocessFile struct {
	FileID uint   `json:"fileId"`
	Path   string `json:"path"`
}

// ReprocessFiles 是批量版本的 ReprocessFile。
type ReprocessFiles struct {
	Files []ReprocessFile `json:"files"`
}

// DeleteFile 指示 cleaner 对一个清理作业文件执行安全删除管道。
type DeleteFile struct {
	JobID        uint   `json:"jobId"`
	FileID       uint   `json:"fileId"`
	Path         string `json:"path"`
	ExpectedHash string `json:"expectedHash"`
	ExpectedSize int64  `json:"expectedSize"`
	Category     string `json:"category"`
	DryRun       bool   `json:"dryRun"`
}

// DeleteFiles 是批量版本的 DeleteFile。
type DeleteFiles struct {
	Files []DeleteFile `json:"files"`
}

// CancelJob 请求 worker 在文件间协作式地停止某个作业。
type CancelJob struct {
	JobID uint `json:"jobId"`
}

// SetDryRun 切换 worker 的试运行模式。
type SetDryRun struct {
	Enabled bool `json:"enabled"`
}

// TriggerScan 请求 indexer 扫描目录（为空时扫描全部已配置目录）。
type TriggerScan struct {
	DirectoryID *uint `json:"directoryId,omitempty"`
}

// Progress 是单个文件管道步骤的进度上报。
type Progress struct {
	JobID  uint   `json:"jobId"`
	FileID uint   `json:"fileId"`
	Status string `json:"status"`
}

// DeleteComplete 上报单个文件删除（真实或试运行）的终态。
type DeleteComplete struct {
	JobID       uint   `json:"jobId"`
	FileID      uint   `json:"fileId"`
	Success     bool   `json:"success"`
	Skipped     bool   `json:"skipped"` // 试运行时为 true
	ArchivePath string `json:"archivePath,omitempty"`
	Error       string `json:"error,omitempty"`
}

// JobComplete 上报整个清理作业的聚合结果。
type JobComplete struct {
	JobID     uint `json:"jobId"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
}
