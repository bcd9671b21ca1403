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

	"gorm.io/gorm"
)

// GroupService 接口定义了重复组状态机的业务操作。
// 审核动作（propose/validate/skip/undo）建模为对状态机的显式指令，
// 与界面解耦，可以脱离任何前端独立测试。
type GroupService interface {
	GetGroup(id uint) (*model.DuplicateGroup, []model.FileRecord, error)
	ListGroups(ctx context.Context, statuses []string, pathSearch string, limit, offset int) ([]model.DuplicateGroup, error)
	Propose(ctx context.Context, groupID, fileID uint) (*model.DuplicateGroup, error)
	Validate(ctx context.Context, groupID uint) (*model.DuplicateGroup, error)
	Skip(ctx context.Context, groupID uint) (*model.DuplicateGroup, error)
	Undo(ctx context.Context, groupID uint) (*model.DuplicateGroup, error)
}

type groupService struct {
	groupRepo  repository.GroupRepository
	fileRepo   repository.FileRepository
	sessionSvc SessionService
	esEnabled  bool
}

// NewGroupService 创建一个新的 GroupService 实例。
func NewGroupService(groupRepo repository.GroupRepository, fileRepo repository.FileRepository, sessionSvc SessionService, esEnabled bool) GroupService {
	return &groupService{
		groupRepo:  groupRepo,
		fileRepo:   fileRepo,
		sessionSvc: sessionSvc,
		esEnabled:  esEnabled,
	}
}

// loadGroup 按 id 加载组，不存在时归一化为 ErrNotFound。
func (s *groupService) loadGroup(id uint) (*model.DuplicateGroup, error) {
	group, err := s.groupRepo.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: 重复组 %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return group, nil
}

// GetGroup 返回一个组及其当前存活成员。
func (s *groupService) GetGroup(id uint) (*model.DuplicateGroup, []model.FileRecord, error) {
	group, err := s.loadGroup(id)
	if err != nil {
		return nil, nil, err
	}
	members, err := s.fileRepo.FindByGroupID(id)
	if err != nil {
		return nil, nil, err
	}
	return group, members, nil
}

// ListGroups 按状态分页列出组；pathSearch 非空时先走路径检索索引缩小范围。
func (s *groupService) ListGroups(ctx context.Context, statuses []string, pathSearch string, limit, offset int) ([]model.DuplicateGroup, error) {
	if pathSearch == "" || !s.esEnabled {
		return s.groupRepo.FindByStatus(statuses, limit, offset)
	}

	ids, err := es.SearchGroupsByPath(ctx, pathSearch, limit+offset)
	if err != nil {
		return nil, fmt.Errorf("路径检索失败: %w", err)
	}
	groups, err := s.groupRepo.FindByIDs(ids)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return groups, nil
	}
	allowed := make(map[string]struct{}, len(statuses))
	for _, st := range statuses {
		allowed[st] = struct{}{}
	}
	filtered := groups[:0]
	for _, g := range groups {
		if _, ok := allowed[g.Status]; ok {
			filtered = append(filtered, g)
		}
	}
	return filtered, nil
}

// Propose 将组内某个成员设为提案的原始文件。
// 只允许在 pending/auto_selected 状态下执行；重复提交同一文件是幂等的。
func (s *groupService) Propose(ctx context.Context, groupID, fileID uint) (*model.DuplicateGroup, error) {
	group, err := s.loadGroup(groupID)
	if err != nil {
		return nil, err
	}
	if group.Status != model.GroupStatusPending && group.Status != model.GroupStatusAutoSelected {
		return nil, fmt.Errorf("%w: 状态 %s 下不能提案", ErrValidation, group.Status)
	}

	// 原始文件必须是当前组成员
	members, err := s.fileRepo.FindByGroupID(groupID)
	if err != nil {
		return nil, err
	}
	found := false
	for _, m := range members {
		if m.ID == fileID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: 文件 %d 不是组 %d 的成员", ErrValidation, fileID, groupID)
	}

	if group.OriginalFileID != nil && *group.OriginalFileID == fileID &&
		group.Status == model.GroupStatusAutoSelected {
		return group, nil // 幂等
	}

	group.OriginalFileID = &fileID
	group.Status = model.GroupStatusAutoSelected
	group.Conflict = false
	group.LastAction = model.GroupActionPropose
	if err := s.groupRepo.Save(group); err != nil {
		return nil, err
	}
	if err := s.sessionSvc.MarkProposed(ctx); err != nil {
		log.Warnf("[Group] 更新会话提案计数失败: %v", err)
	}
	log.Infof("[Group] 提案原始文件: groupID=%d, fileID=%d", groupID, fileID)
	return group, nil
}

// Validate 人工确认当前提案，组进入 validated 状态，会话指针前移。
func (s *groupService) Validate(ctx context.Context, groupID uint) (*model.DuplicateGroup, error) {
	group, err := s.loadGroup(groupID)
	if err != nil {
		return nil, err
	}
	if group.OriginalFileID == nil {
		return nil, fmt.Errorf("%w: 组 %d 尚无原始文件提案", ErrValidation, groupID)
	}
	if group.Status != model.GroupStatusAutoSelected {
		return nil, fmt.Errorf("%w: 状态 %s 下不能确认", ErrValidation, group.Status)
	}

	now := time.Now()
	group.Status = model.GroupStatusValidated
	group.ValidatedAt = &now
	group.LastAction = model.GroupActionValidate
	if err := s.groupRepo.Save(group); err != nil {
		return nil, err
	}

	if err := s.sessionSvc.MarkValidated(ctx); err != nil {
		log.Warnf("[Group] 更新会话确认计数失败: %v", err)
	}
	if err := s.sessionSvc.AdvancePast(ctx, groupID); err != nil {
		log.Warnf("[Group] 推进会话指针失败: %v", err)
	}
	kafka.PublishEvent("group_validated", map[string]interface{}{
		"groupId": group.ID, "originalFileId": *group.OriginalFileID,
	})
	log.Infof("[Group] 组已确认: groupID=%d, originalFileID=%d", groupID, *group.OriginalFileID)
	return group, nil
}

// Skip 不做确认直接越过该组，状态不变，会话指针前移。可由 Undo 回退。
func (s *groupService) Skip(ctx context.Context, groupID uint) (*model.DuplicateGroup, error) {
	group, err := s.loadGroup(groupID)
	if err != nil {
		return nil, err
	}
	if group.Status != model.GroupStatusPending && group.Status != model.GroupStatusAutoSelected {
		return nil, fmt.Errorf("%w: 状态 %s 下不能跳过", ErrValidation, group.Status)
	}

	group.LastAction = model.GroupActionSkip
	if err := s.groupRepo.Save(group); err != nil {
		return nil, err
	}
	if err := s.sessionSvc.MarkSkipped(ctx); err != nil {
		log.Warnf("[Group] 更新会话跳过计数失败: %v", err)
	}
	if err := s.sessionSvc.AdvancePast(ctx, groupID); err != nil {
		log.Warnf("[Group] 推进会话指针失败: %v", err)
	}
	log.Infof("[Group] 组已跳过: groupID=%d", groupID)
	return group, nil
}

// Undo 回退该组最近一次提案/确认/跳过，并把会话指针拉回本组。
// 清理已经开始后不可撤销。
func (s *groupService) Undo(ctx context.Context, groupID uint) (*model.DuplicateGroup, error) {
	group, err := s.loadGroup(groupID)
	if err != nil {
		return nil, err
	}

	switch group.LastAction {
	case model.GroupActionValidate:
		if group.Status != model.GroupStatusValidated {
			return nil, fmt.Errorf("%w: 状态 %s 下不能撤销确认", ErrValidation, group.Status)
		}
		group.Status = model.GroupStatusAutoSelected
		group.ValidatedAt = nil
		group.LastAction = model.GroupActionPropose
	case model.GroupActionPropose:
		group.OriginalFileID = nil
		group.Status = model.GroupStatusPending
		group.LastAction = ""
	case model.GroupActionSkip:
		if group.Status == model.GroupStatusAutoSelected {
			group.LastAction = model.GroupActionPropose
		} else {
			group.LastAction = ""
		}
	default:
		return nil, fmt.Errorf("%w: 组 %d 没有可撤销的操作", ErrValidation, groupID)
	}

	if err := s.groupRepo.Save(group); err != nil {
		return nil, err
	}
	if err := s.sessionSvc.RestoreTo(ctx, groupID); err != nil {
		log.Warnf("[Group] 回退会话指针失败: %v", err)
	}
	log.Infof("[Group] 撤销完成: groupID=%d, status=%s", groupID, group.Status)
	return group, nil
}
