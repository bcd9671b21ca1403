// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"

	"photokeeper-go/internal/model"
	"photokeeper-go/internal/repository"
	"photokeeper-go/pkg/es"
	"photokeeper-go/pkg/log"
	"photokeeper-go/pkg/tasks"

	"gorm.io/gorm"
)

// GroupingService 接口定义了按内容哈希分组的业务操作。
// 它实现了 kafka.TaskProcessor，新文件记录到达时会被自动分组并触发评分。
type GroupingService interface {
	Process(ctx context.Context, task tasks.IndexedFileTask) error
	RebuildGroups(ctx context.Context) (int, error)
	RefreshGroup(ctx context.Context, groupID uint) error
}

type groupingService struct {
	fileRepo     repository.FileRepository
	groupRepo    repository.GroupRepository
	selectionSvc SelectionService
	esEnabled    bool
}

// NewGroupingService 创建一个新的 GroupingService 实例。
// esEnabled 为 false 时跳过路径检索索引的维护（测试环境）。
func NewGroupingService(fileRepo repository.FileRepository, groupRepo repository.GroupRepository, selectionSvc SelectionService, esEnabled bool) GroupingService {
	return &groupingService{
		fileRepo:     fileRepo,
		groupRepo:    groupRepo,
		selectionSvc: selectionSvc,
		esEnabled:    esEnabled,
	}
}

// Process 处理索引管道发布的一条文件记录。
func (s *groupingService) Process(ctx context.Context, task tasks.IndexedFileTask) error {
	if task.Removed {
		return s.processRemoval(ctx, task.Path)
	}

	record := &model.FileRecord{
		Path:        task.Path,
		ContentHash: task.ContentHash,
		Size:        task.Size,
		ModTime:     task.ModTime,
		CaptureTime: task.CaptureTime,
		CameraModel: task.CameraModel,
		Width:       task.Width,
		Height:      task.Height,
	}
	if err := s.fileRepo.Upsert(record); err != nil {
		return fmt.Errorf("写入文件记录失败: %w", err)
	}

	// 记录换了哈希值时，旧组需要收缩
	if record.GroupID != nil {
		old, err := s.groupRepo.FindByID(*record.GroupID)
		if err == nil && old.ContentHash != record.ContentHash {
			if err := s.fileRepo.AssignGroup([]uint{record.ID}, nil); err != nil {
				return err
			}
			record.GroupID = nil
			if err := s.RefreshGroup(ctx, old.ID); err != nil {
				log.Errorf("[Grouping] 收缩旧组失败, groupID=%d, err=%v", old.ID, err)
			}
		}
	}

	return s.regroupHash(ctx, record.ContentHash)
}

// processRemoval 对已从磁盘消失的文件做软删除并收缩所在组。
func (s *groupingService) processRemoval(ctx context.Context, path string) error {
	record, err := s.fileRepo.FindByPath(path)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Grouping] 删除上报的路径不存在记录: %s", path)
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.fileRepo.MarkDeleted(record.ID); err != nil {
		return err
	}
	if s.esEnabled {
		if err := es.RemoveGroupMember(ctx, record.ID); err != nil {
			log.Errorf("[Grouping] 移除检索文档失败, fileID=%d, err=%v", record.ID, err)
		}
	}
	if record.GroupID != nil {
		return s.RefreshGroup(ctx, *record.GroupID)
	}
	return nil
}

// regroupHash 对共享一个内容哈希的全部存活记录重新成组。
func (s *groupingService) regroupHash(ctx context.Context, contentHash string) error {
	members, err := s.fileRepo.FindLiveByHash(contentHash)
	if err != nil {
		return err
	}
	if len(members) < 2 {
		// 不足两份副本不构成重复组
		return nil
	}

	group, err := s.groupRepo.FindByHash(contentHash)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		group = &model.DuplicateGroup{
			ContentHash: contentHash,
			Status:      model.GroupStatusPending,
		}
		if err := s.groupRepo.Create(group); err != nil {
			return fmt.Errorf("创建重复组失败: %w", err)
		}
		log.Infof("[Grouping] 新建重复组: id=%d, hash=%s, members=%d", group.ID, contentHash, len(members))
	} else if err != nil {
		return err
	} else if group.Status == model.GroupStatusCleaned {
		// 已清理的组又出现新的存活副本：重新开放审核。
		// KeptFileID/CleanedAt 保留为上一轮清理的历史。
		group.Status = model.GroupStatusPending
		group.Conflict = false
		group.OriginalFileID = nil
		group.ValidatedAt = nil
		group.CleaningAt = nil
		group.LastAction = ""
		log.Infof("[Grouping] 已清理组出现新副本, 重新开放审核: id=%d, hash=%s", group.ID, contentHash)
	}

	ids := make([]uint, 0, len(members))
	var total int64
	for _, m := range members {
		ids = append(ids, m.ID)
		total += m.Size
	}
	if err := s.fileRepo.AssignGroup(ids, &group.ID); err != nil {
		return err
	}
	group.FileCount = len(members)
	group.TotalSize = total
	if err := s.groupRepo.Save(group); err != nil {
		return err
	}

	if s.esEnabled {
		for _, m := range members {
			if err := es.IndexGroupMember(ctx, m.ID, group.ID, m.Path); err != nil {
				log.Errorf("[Grouping] 写入检索文档失败, fileID=%d, err=%v", m.ID, err)
			}
		}
	}

	// 新记录到达即触发该组的自动评分提案
	s.proposeGroup(group, members)
	return nil
}

// proposeGroup 对待审核状态的组跑一次评分并落库。其他状态的组不被打扰。
func (s *groupingService) proposeGroup(group *model.DuplicateGroup, members []model.FileRecord) {
	if group.Status != model.GroupStatusPending && group.Status != model.GroupStatusAutoSelected {
		return
	}
	prefs, err := s.selectionSvc.GetPreferences()
	if err != nil {
		log.Errorf("[Grouping] 加载偏好规则失败: %v", err)
		return
	}
	prop := s.selectionSvc.ScoreGroup(group.ID, members, prefs, "")
	if prop.Conflict {
		group.Conflict = true
		group.OriginalFileID = nil
		group.Status = model.GroupStatusPending
	} else {
		id := prop.OriginalFileID
		group.Conflict = false
		group.OriginalFileID = &id
		group.Status = model.GroupStatusAutoSelected
		group.LastAction = model.GroupActionPropose
	}
	if err := s.groupRepo.Save(group); err != nil {
		log.Errorf("[Grouping] 保存评分提案失败, groupID=%d, err=%v", group.ID, err)
	}
}

// RefreshGroup 重新核对一个组的成员集合与聚合属性。
// 存活成员跌破 2 的待审核组会被解散；清理中/已清理的组保留历史不动。
func (s *groupingService) RefreshGroup(ctx context.Context, groupID uint) error {
	group, err := s.groupRepo.FindByID(groupID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	members, err := s.fileRepo.FindByGroupID(groupID)
	if err != nil {
		return err
	}

	reviewable := group.Status == model.GroupStatusPending ||
		group.Status == model.GroupStatusAutoSelected ||
		group.Status == model.GroupStatusValidated

	if len(members) < 2 && reviewable {
		ids := make([]uint, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		if err := s.fileRepo.AssignGroup(ids, nil); err != nil {
			return err
		}
		log.Infof("[Grouping] 解散重复组: id=%d, 剩余成员=%d", group.ID, len(members))
		return s.groupRepo.Delete(group.ID)
	}

	var total int64
	memberSet := make(map[uint]struct{}, len(members))
	for _, m := range members {
		total += m.Size
		memberSet[m.ID] = struct{}{}
	}
	group.FileCount = len(members)
	group.TotalSize = total
	// 原始文件必须仍是当前成员，否则清除提案等待重新评分
	if reviewable && group.OriginalFileID != nil {
		if _, ok := memberSet[*group.OriginalFileID]; !ok {
			group.OriginalFileID = nil
			group.Status = model.GroupStatusPending
			group.LastAction = ""
		}
	}
	return s.groupRepo.Save(group)
}

// RebuildGroups 从 file_records 表全量重建分组，返回当前重复组数量。
func (s *groupingService) RebuildGroups(ctx context.Context) (int, error) {
	records, err := s.fileRepo.FindAllLive()
	if err != nil {
		return 0, err
	}

	byHash := make(map[string][]model.FileRecord)
	for _, r := range records {
		byHash[r.ContentHash] = append(byHash[r.ContentHash], r)
	}

	count := 0
	for hash, members := range byHash {
		if len(members) < 2 {
			// 失去全部副本的记录脱离分组
			for _, m := range members {
				if m.GroupID != nil {
					if err := s.fileRepo.AssignGroup([]uint{m.ID}, nil); err != nil {
						return count, err
					}
					if err := s.RefreshGroup(ctx, *m.GroupID); err != nil {
						log.Errorf("[Grouping] 重建时收缩组失败, groupID=%d, err=%v", *m.GroupID, err)
					}
				}
			}
			continue
		}
		if err := s.regroupHash(ctx, hash); err != nil {
			log.Errorf("[Grouping] 重建哈希分组失败, hash=%s, err=%v", hash, err)
			continue
		}
		count++
	}
	log.Infof("[Grouping] 全量重建完成: 扫描记录=%d, 重复组=%d", len(records), count)
	return count, nil
}
