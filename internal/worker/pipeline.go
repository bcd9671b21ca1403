// Package worker 实现了分离式 cleaner worker 进程：
// 通过 WebSocket 长连接接收协调服务下发的删除指令，
// 按 定位 -> 校验 -> 归档 -> 删除 -> 确认 的顺序执行安全删除管道。
package worker

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"photokeeper-go/internal/model"
	"photokeeper-go/pkg/log"
	"photokeeper-go/pkg/messages"
)

// Archiver 抽象了删除前的内容归档目的地，生产实现是 MinIO 归档桶。
type Archiver interface {
	Archive(ctx context.Context, contentHash string, reader io.Reader, size int64) (string, error)
}

// Reporter 抽象了向协调服务上报事件的出口，生产实现是 WebSocket 连接。
type Reporter interface {
	Report(msgType string, payload interface{}) error
}

// Pipeline 对单个文件执行安全删除管道。
// 不变量：归档成功之前绝不执行删除；试运行模式下绝不改动文件系统。
type Pipeline struct {
	archiver Archiver
	reporter Reporter
}

// NewPipeline 创建一个删除管道。
func NewPipeline(archiver Archiver, reporter Reporter) *Pipeline {
	return &Pipeline{archiver: archiver, reporter: reporter}
}

// Run 执行一条删除指令的完整管道并上报终态。
// localDryRun 是 worker 本地的试运行开关，与指令自带的开关取或：
// 任何一侧要求试运行，文件就不会被真正删除。
func (p *Pipeline) Run(ctx context.Context, cmd messages.DeleteFile, localDryRun bool) messages.DeleteComplete {
	dryRun := cmd.DryRun || localDryRun

	result := p.execute(ctx, cmd, dryRun)
	if err := p.reporter.Report(messages.EvtDeleteComplete, result); err != nil {
		log.Errorf("[Cleaner] 上报删除结果失败: jobId=%d, fileId=%d, err=%v", cmd.JobID, cmd.FileID, err)
	}
	return result
}

func (p *Pipeline) execute(ctx context.Context, cmd messages.DeleteFile, dryRun bool) messages.DeleteComplete {
	// 1. 定位：确认文件仍在原路径上
	p.progress(cmd, model.JobFileStatusLocating)
	info, err := os.Stat(cmd.Path)
	if err != nil {
		return p.fail(cmd, fmt.Errorf("定位文件失败: %w", err))
	}
	if info.IsDir() {
		return p.fail(cmd, fmt.Errorf("路径是目录而非文件: %s", cmd.Path))
	}

	// 2. 校验：大小与内容哈希必须和记录一致，否则文件已被外部修改
	p.progress(cmd, model.JobFileStatusVerifying)
	if cmd.ExpectedSize > 0 && info.Size() != cmd.ExpectedSize {
		return p.fail(cmd, fmt.Errorf("文件大小不匹配: 期望 %d, 实际 %d", cmd.ExpectedSize, info.Size()))
	}
	actualHash, err := hashFile(cmd.Path)
	if err != nil {
		return p.fail(cmd, fmt.Errorf("计算文件哈希失败: %w", err))
	}
	if actualHash != cmd.ExpectedHash {
		return p.fail(cmd, fmt.Errorf("内容哈希不匹配: 期望 %s, 实际 %s", cmd.ExpectedHash, actualHash))
	}

	// 3. 归档：删除前先把内容上传到归档桶，归档失败则整体失败
	p.progress(cmd, model.JobFileStatusArchiving)
	archivePath, err := p.archive(ctx, cmd, info.Size())
	if err != nil {
		return p.fail(cmd, fmt.Errorf("归档失败: %w", err))
	}

	// 4. 删除：试运行模式只记录不动作
	if dryRun {
		log.Infof("[Cleaner] 试运行，跳过删除: jobId=%d, path=%s", cmd.JobID, cmd.Path)
		return messages.DeleteComplete{
			JobID:       cmd.JobID,
			FileID:      cmd.FileID,
			Success:     true,
			Skipped:     true,
			ArchivePath: archivePath,
		}
	}
	p.progress(cmd, model.JobFileStatusDeleting)
	if err := os.Remove(cmd.Path); err != nil {
		return p.fail(cmd, fmt.Errorf("删除文件失败: %w", err))
	}

	// 5. 确认
	log.Infof("[Cleaner] 文件已删除: jobId=%d, fileId=%d, path=%s, archive=%s", cmd.JobID, cmd.FileID, cmd.Path, archivePath)
	return messages.DeleteComplete{
		JobID:       cmd.JobID,
		FileID:      cmd.FileID,
		Success:     true,
		ArchivePath: archivePath,
	}
}

func (p *Pipeline) archive(ctx context.Context, cmd messages.DeleteFile, size int64) (string, error) {
	f, err := os.Open(cmd.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return p.archiver.Archive(ctx, cmd.ExpectedHash, f, size)
}

func (p *Pipeline) progress(cmd messages.DeleteFile, status string) {
	err := p.reporter.Report(messages.EvtProgress, messages.Progress{
		JobID:  cmd.JobID,
		FileID: cmd.FileID,
		Status: status,
	})
	if err != nil {
		log.Debugf("[Cleaner] 进度上报失败: %v", err)
	}
}

func (p *Pipeline) fail(cmd messages.DeleteFile, err error) messages.DeleteComplete {
	log.Errorf("[Cleaner] 删除管道失败: jobId=%d, fileId=%d, path=%s, err=%v", cmd.JobID, cmd.FileID, cmd.Path, err)
	return messages.DeleteComplete{
		JobID:  cmd.JobID,
		FileID: cmd.FileID,
		Error:  err.Error(),
	}
}

// hashFile 流式计算文件内容的 MD5 哈希。
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
