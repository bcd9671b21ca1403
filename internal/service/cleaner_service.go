// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photokeeper-go/internal/model"
	"photokeeper-go/internal/repository"
	"photokeeper-go/pkg/es"
	"photokeeper-go/pkg/kafka"
	"photokeeper-go/pkg/log"
	"photokeeper-go/pkg/messages"

	"gorm.io/gorm"
)

// CommandDispatcher 抽象了向已连接 worker 广播指令的能力，由协调中枢实现。
// 指令不落盘：没有 worker 在线时直接返回 ErrNoWorkerConnected，由调用方稍后重试。
type CommandDispatcher interface {
	SendToRole(kind, msgType string, payload interface{}) error
	HasRole(kind string) bool
}

// CleanerService 接口定义了清理作业的业务操作：
// 创建作业并下发删除指令，消化 worker 回报的进度与终态，维护作业聚合。
type CleanerService interface {
	StartCleaning(ctx context.Context, groupID uint, dryRun bool) (*model.CleanerJob, error)
	DeleteNonOriginals(ctx context.Context, groupID uint, dryRun bool) (*model.CleanerJob, error)
	CancelJob(ctx context.Context, jobID uint) error
	GetJob(ctx context.Context, jobID uint) (*model.CleanerJob, []model.CleanerJobFile, error)
	ListJobs(limit, offset int) ([]model.CleanerJob, error)

	HandleProgress(ctx context.Context, p messages.Progress)
	HandleDeleteComplete(ctx context.Context, dc messages.DeleteComplete)
	HandleJobComplete(ctx context.Context, jc messages.JobComplete)
}

type cleanerService struct {
	jobRepo    repository.JobRepository
	groupRepo  repository.GroupRepository
	fileRepo   repository.FileRepository
	groupSvc   GroupService
	dispatcher CommandDispatcher
	esEnabled  bool
}

// NewCleanerService 创建一个新的 CleanerService 实例。
func NewCleanerService(jobRepo repository.JobRepository, groupRepo repository.GroupRepository, fileRepo repository.FileRepository, groupSvc GroupService, dispatcher CommandDispatcher, esEnabled bool) CleanerService {
	return &cleanerService{
		jobRepo:    jobRepo,
		groupRepo:  groupRepo,
		fileRepo:   fileRepo,
		groupSvc:   groupSvc,
		dispatcher: dispatcher,
		esEnabled:  esEnabled,
	}
}

// StartCleaning 为已确认的组创建清理作业，并向 cleaner 下发逐文件删除指令。
// 仅允许从 validated（或重试场景的 cleaning_failed）发起。
func (s *cleanerService) StartCleaning(ctx context.Context, groupID uint, dryRun bool) (*model.CleanerJob, error) {
	group, err := s.groupRepo.FindByID(groupID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: 重复组 %d", ErrNotFound, groupID)
	}
	if err != nil {
		return nil, err
	}
	if group.Status != model.GroupStatusValidated && group.Status != model.GroupStatusCleaningFailed {
		return nil, fmt.Errorf("%w: 状态 %s 下不能发起清理", ErrValidation, group.Status)
	}
	if group.OriginalFileID == nil {
		return nil, fmt.Errorf("%w: 组 %d 没有原始文件", ErrValidation, groupID)
	}

	// 指令没有持久化：先确认有 cleaner 在线，避免作业创建后指令丢失
	if !s.dispatcher.HasRole(messages.KindCleaner) {
		return nil, ErrNoWorkerConnected
	}

	members, err := s.fileRepo.FindByGroupID(groupID)
	if err != nil {
		return nil, err
	}
	targets := make([]model.FileRecord, 0, len(members))
	for _, m := range members {
		if m.ID != *group.OriginalFileID {
			targets = append(targets, m)
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: 组 %d 没有待删除的非原始成员", ErrValidation, groupID)
	}

	job := &model.CleanerJob{
		Category: model.JobCategoryHashDuplicate,
		GroupID:  &groupID,
		DryRun:   dryRun,
		Status:   model.JobStatusRunning,
	}
	job.TotalCount = len(targets)
	files := make([]model.CleanerJobFile, 0, len(targets))
	for _, t := range targets {
		id := t.ID
		files = append(files, model.CleanerJobFile{
			FileRecordID: &id,
			Path:         t.Path,
			ExpectedHash: t.ContentHash,
			ExpectedSize: t.Size,
			Status:       model.JobFileStatusPending,
		})
	}
	if err := s.jobRepo.CreateJobWithFiles(job, files); err != nil {
		return nil, fmt.Errorf("创建清理作业失败: %w", err)
	}

	now := time.Now()
	group.Status = model.GroupStatusCleaning
	group.CleaningAt = &now
	if err := s.groupRepo.Save(group); err != nil {
		return nil, err
	}

	// 每个非原始成员一条删除指令，广播给 cleaner 角色的全部连接
	for _, f := range files {
		cmd := messages.DeleteFile{
			JobID:        job.ID,
			FileID:       *f.FileRecordID,
			Path:         f.Path,
			ExpectedHash: f.ExpectedHash,
			ExpectedSize: f.ExpectedSize,
			Category:     job.Category,
			DryRun:       dryRun,
		}
		if err := s.dispatcher.SendToRole(messages.KindCleaner, messages.CmdDeleteFile, cmd); err != nil {
			log.Errorf("[Cleaner] 下发删除指令失败: jobID=%d, fileID=%d, err=%v", job.ID, cmd.FileID, err)
		}
	}

	log.Infof("[Cleaner] 清理作业已下发: jobID=%d, groupID=%d, files=%d, dryRun=%v",
		job.ID, groupID, len(files), dryRun)
	return job, nil
}

// DeleteNonOriginals 是信任自动提案时的快捷操作：确认 + 发起清理一步完成。
func (s *cleanerService) DeleteNonOriginals(ctx context.Context, groupID uint, dryRun bool) (*model.CleanerJob, error) {
	group, err := s.groupRepo.FindByID(groupID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: 重复组 %d", ErrNotFound, groupID)
	}
	if err != nil {
		return nil, err
	}
	if group.Status == model.GroupStatusAutoSelected {
		if _, err := s.groupSvc.Validate(ctx, groupID); err != nil {
			return nil, err
		}
	}
	return s.StartCleaning(ctx, groupID, dryRun)
}

// CancelJob 向 cleaner 广播取消指令。取消是协作式的：正在跑管道的文件会跑到终态。
func (s *cleanerService) CancelJob(ctx context.Context, jobID uint) error {
	job, err := s.jobRepo.FindJobByID(jobID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: 清理作业 %d", ErrNotFound, jobID)
	}
	if err != nil {
		return err
	}
	if job.Status != model.JobStatusRunning && job.Status != model.JobStatusPending {
		return fmt.Errorf("%w: 状态 %s 下不能取消", ErrValidation, job.Status)
	}
	if !s.dispatcher.HasRole(messages.KindCleaner) {
		return ErrNoWorkerConnected
	}
	if err := s.dispatcher.SendToRole(messages.KindCleaner, messages.CmdCancelJob, messages.CancelJob{JobID: jobID}); err != nil {
		return err
	}
	job.Status = model.JobStatusCancelled
	return s.jobRepo.SaveJob(job)
}

// GetJob 返回作业与其文件条目。运行中的作业用 Redis 计数器覆盖聚合值。
func (s *cleanerService) GetJob(ctx context.Context, jobID uint) (*model.CleanerJob, []model.CleanerJobFile, error) {
	job, err := s.jobRepo.FindJobByID(jobID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("%w: 清理作业 %d", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, nil, err
	}
	files, err := s.jobRepo.FindJobFiles(jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.CompletedAt == nil {
		if counters, err := s.jobRepo.GetJobCounters(ctx, jobID); err == nil {
			job.ProcessedCount = int(counters[repository.JobCounterProcessed])
			job.SucceededCount = int(counters[repository.JobCounterSucceeded])
			job.FailedCount = int(counters[repository.JobCounterFailed])
			job.SkippedCount = int(counters[repository.JobCounterSkipped])
		}
	}
	return job, files, nil
}

// ListJobs 分页列出清理作业。
func (s *cleanerService) ListJobs(limit, offset int) ([]model.CleanerJob, error) {
	return s.jobRepo.ListJobs(limit, offset)
}

// HandleProgress 消化 worker 的逐步进度上报，刷新文件条目的中间状态。
func (s *cleanerService) HandleProgress(ctx context.Context, p messages.Progress) {
	file, err := s.jobRepo.FindJobFileByRecord(p.JobID, p.FileID)
	if err != nil {
		log.Warnf("[Cleaner] 进度上报找不到作业文件: jobID=%d, fileID=%d", p.JobID, p.FileID)
		return
	}
	switch file.Status {
	case model.JobFileStatusSucceeded, model.JobFileStatusFailed, model.JobFileStatusSkipped:
		return // 终态不被中间进度覆盖
	}
	file.Status = p.Status
	if err := s.jobRepo.SaveJobFile(file); err != nil {
		log.Errorf("[Cleaner] 保存进度失败: jobID=%d, fileID=%d, err=%v", p.JobID, p.FileID, err)
	}
}

// HandleDeleteComplete 消化单文件删除终态。
// 同一文件的重复上报（多 cleaner 同时在线时可能发生）是无害的空操作。
func (s *cleanerService) HandleDeleteComplete(ctx context.Context, dc messages.DeleteComplete) {
	file, err := s.jobRepo.FindJobFileByRecord(dc.JobID, dc.FileID)
	if err != nil {
		log.Warnf("[Cleaner] 删除上报找不到作业文件: jobID=%d, fileID=%d", dc.JobID, dc.FileID)
		return
	}
	switch file.Status {
	case model.JobFileStatusSucceeded, model.JobFileStatusFailed, model.JobFileStatusSkipped:
		return // 重复投递，幂等忽略
	}

	now := time.Now()
	file.ProcessedAt = &now
	file.ArchivePath = dc.ArchivePath
	counterField := repository.JobCounterFailed
	switch {
	case dc.Success && dc.Skipped:
		file.Status = model.JobFileStatusSkipped
		counterField = repository.JobCounterSkipped
	case dc.Success:
		file.Status = model.JobFileStatusSucceeded
		counterField = repository.JobCounterSucceeded
	default:
		file.Status = model.JobFileStatusFailed
		file.ErrorText = dc.Error
	}
	if err := s.jobRepo.SaveJobFile(file); err != nil {
		log.Errorf("[Cleaner] 保存删除终态失败: jobID=%d, fileID=%d, err=%v", dc.JobID, dc.FileID, err)
		return
	}

	// 真实删除成功后，文件记录做软删除；记录已标记过时这里是空操作
	if dc.Success && !dc.Skipped {
		if err := s.fileRepo.MarkDeleted(dc.FileID); err != nil {
			log.Errorf("[Cleaner] 软删除文件记录失败: fileID=%d, err=%v", dc.FileID, err)
		}
		if s.esEnabled {
			if err := es.RemoveGroupMember(ctx, dc.FileID); err != nil {
				log.Errorf("[Cleaner] 移除检索文档失败: fileID=%d, err=%v", dc.FileID, err)
			}
		}
	}

	_, _ = s.jobRepo.IncrJobCounter(ctx, dc.JobID, counterField)
	processed, err := s.jobRepo.IncrJobCounter(ctx, dc.JobID, repository.JobCounterProcessed)
	if err != nil {
		log.Errorf("[Cleaner] 递增进度计数失败: jobID=%d, err=%v", dc.JobID, err)
		return
	}

	job, err := s.jobRepo.FindJobByID(dc.JobID)
	if err != nil {
		log.Errorf("[Cleaner] 加载作业失败: jobID=%d, err=%v", dc.JobID, err)
		return
	}
	if int(processed) >= job.TotalCount {
		s.finalizeJob(ctx, job)
	}
}

// HandleJobComplete 消化 worker 侧的作业聚合上报。
// 服务端以逐文件终态为准，这里只兜底：作业尚未收尾时触发收尾。
func (s *cleanerService) HandleJobComplete(ctx context.Context, jc messages.JobComplete) {
	job, err := s.jobRepo.FindJobByID(jc.JobID)
	if err != nil {
		log.Warnf("[Cleaner] 作业完成上报找不到作业: jobID=%d", jc.JobID)
		return
	}
	if job.CompletedAt != nil {
		return
	}
	log.Infof("[Cleaner] worker 上报作业完成: jobID=%d, succeeded=%d, failed=%d, skipped=%d",
		jc.JobID, jc.Succeeded, jc.Failed, jc.Skipped)
	s.finalizeJob(ctx, job)
}

// finalizeJob 把 Redis 计数聚合回写作业行，并推动所属组到终态。
func (s *cleanerService) finalizeJob(ctx context.Context, job *model.CleanerJob) {
	counters, err := s.jobRepo.GetJobCounters(ctx, job.ID)
	if err != nil {
		log.Errorf("[Cleaner] 读取进度计数失败: jobID=%d, err=%v", job.ID, err)
		return
	}
	now := time.Now()
	job.ProcessedCount = int(counters[repository.JobCounterProcessed])
	job.SucceededCount = int(counters[repository.JobCounterSucceeded])
	job.FailedCount = int(counters[repository.JobCounterFailed])
	job.SkippedCount = int(counters[repository.JobCounterSkipped])
	job.CompletedAt = &now
	if job.Status == model.JobStatusRunning {
		job.Status = model.JobStatusCompleted
	}
	if err := s.jobRepo.SaveJob(job); err != nil {
		log.Errorf("[Cleaner] 回写作业聚合失败: jobID=%d, err=%v", job.ID, err)
		return
	}
	_ = s.jobRepo.ClearJobCounters(ctx, job.ID)

	if job.GroupID != nil {
		s.completeGroupCleaning(*job.GroupID, job)
	}

	kafka.PublishEvent("job_complete", messages.JobComplete{
		JobID:     job.ID,
		Succeeded: job.SucceededCount,
		Failed:    job.FailedCount,
		Skipped:   job.SkippedCount,
	})
	log.Infof("[Cleaner] 作业收尾完成: jobID=%d, succeeded=%d, failed=%d, skipped=%d",
		job.ID, job.SucceededCount, job.FailedCount, job.SkippedCount)
}

// completeGroupCleaning 根据作业结果推动组状态：
// 全部删除成功则 cleaned 并记录 keptFileId；有失败则 cleaning_failed，
// 可再次发起 StartCleaning 重试；试运行作业结束后组回到 validated。
func (s *cleanerService) completeGroupCleaning(groupID uint, job *model.CleanerJob) {
	group, err := s.groupRepo.FindByID(groupID)
	if err != nil {
		log.Errorf("[Cleaner] 加载组失败: groupID=%d, err=%v", groupID, err)
		return
	}
	if group.Status != model.GroupStatusCleaning {
		return
	}

	now := time.Now()
	switch {
	case job.FailedCount > 0:
		group.Status = model.GroupStatusCleaningFailed
	case job.DryRun:
		// 试运行不改动文件系统，组回到已确认状态等待真实清理
		group.Status = model.GroupStatusValidated
		group.CleaningAt = nil
	default:
		group.Status = model.GroupStatusCleaned
		group.CleanedAt = &now
		group.KeptFileID = group.OriginalFileID
	}

	// 成员集合已经收缩，刷新聚合属性
	if members, err := s.fileRepo.FindByGroupID(groupID); err == nil {
		var total int64
		for _, m := range members {
			total += m.Size
		}
		group.FileCount = len(members)
		group.TotalSize = total
	}

	if err := s.groupRepo.Save(group); err != nil {
		log.Errorf("[Cleaner] 保存组终态失败: groupID=%d, err=%v", groupID, err)
		return
	}
	kafka.PublishEvent("group_cleaning_complete", map[string]interface{}{
		"groupId": groupID, "status": group.Status,
	})
	log.Infof("[Cleaner] 组清理收尾: groupID=%d, status=%s", groupID, group.Status)
}
