package service

import (
	"context"
	"errors"
	"testing"

	"photokeeper-go/internal/model"
)

// 搭建一套组服务测试环境：组仓库、文件仓库与真实的会话服务。
func newGroupServiceEnv() (GroupService, *fakeGroupRepo, *fakeFileRepo, SessionService) {
	groupRepo := newFakeGroupRepo()
	fileRepo := newFakeFileRepo()
	sessionSvc := NewSessionService(newFakeSessionRepo(), groupRepo)
	svc := NewGroupService(groupRepo, fileRepo, sessionSvc, false)
	return svc, groupRepo, fileRepo, sessionSvc
}

// seedGroup 建一个含两名成员的组。
func seedGroup(groupRepo *fakeGroupRepo, fileRepo *fakeFileRepo, status string) *model.DuplicateGroup {
	group := groupRepo.add(model.DuplicateGroup{ContentHash: "abc", Status: status, FileCount: 2})
	fileRepo.add(model.FileRecord{ID: 1, Path: "/a/x.jpg", ContentHash: "abc", GroupID: &group.ID})
	fileRepo.add(model.FileRecord{ID: 2, Path: "/b/x.jpg", ContentHash: "abc", GroupID: &group.ID})
	return group
}

func TestGetGroupNotFound(t *testing.T) {
	svc, _, _, _ := newGroupServiceEnv()
	if _, _, err := svc.GetGroup(42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("期望 ErrNotFound, 实际 %v", err)
	}
}

func TestProposeRequiresMembership(t *testing.T) {
	svc, groupRepo, fileRepo, _ := newGroupServiceEnv()
	group := seedGroup(groupRepo, fileRepo, model.GroupStatusPending)

	if _, err := svc.Propose(context.Background(), group.ID, 99); !errors.Is(err, ErrValidation) {
		t.Fatalf("非组成员的提案应被拒绝, 实际 %v", err)
	}
}

func TestProposeTransitionsToAutoSelected(t *testing.T) {
	svc, groupRepo, fileRepo, _ := newGroupServiceEnv()
	group := seedGroup(groupRepo, fileRepo, model.GroupStatusPending)

	updated, err := svc.Propose(context.Background(), group.ID, 2)
	if err != nil {
		t.Fatalf("提案失败: %v", err)
	}
	if updated.Status != model.GroupStatusAutoSelected || *updated.OriginalFileID != 2 {
		t.Fatalf("提案结果不符: %+v", updated)
	}
	if updated.LastAction != model.GroupActionPropose {
		t.Fatalf("LastAction 应记录 propose: %s", updated.LastAction)
	}

	// 重复提交同一文件是幂等的
	again, err := svc.Propose(context.Background(), group.ID, 2)
	if err != nil {
		t.Fatalf("幂等提案失败: %v", err)
	}
	if *again.OriginalFileID != 2 || again.Status != model.GroupStatusAutoSelected {
		t.Fatalf("幂等提案改变了状态: %+v", again)
	}
}

func TestProposeRejectedAfterCleaningStarts(t *testing.T) {
	svc, groupRepo, fileRepo, _ := newGroupServiceEnv()
	group := seedGroup(groupRepo, fileRepo, model.GroupStatusCleaning)

	if _, err := svc.Propose(context.Background(), group.ID, 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("清理中不应允许提案, 实际 %v", err)
	}
}

func TestValidateRequiresProposal(t *testing.T) {
	svc, groupRepo, fileRepo, _ := newGroupServiceEnv()
	group := seedGroup(groupRepo, fileRepo, model.GroupStatusPending)

	if _, err := svc.Validate(context.Background(), group.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("无提案时确认应被拒绝, 实际 %v", err)
	}
}

func TestValidateTransitionsToValidated(t *testing.T) {
	svc, groupRepo, fileRepo, _ := newGroupServiceEnv()
	group := seedGroup(groupRepo, fileRepo, model.GroupStatusPending)

	if _, err := svc.Propose(context.Background(), group.ID, 1); err != nil {
		t.Fatalf("提案失败: %v", err)
	}
	updated, err := svc.Validate(context.Background(), group.ID)
	if err != nil {
		t.Fatalf("确认失败: %v", err)
	}
	if updated.Status != model.GroupStatusValidated || updated.ValidatedAt == nil {
		t.Fatalf("确认结果不符: %+v", updated)
	}
	if updated.LastAction != model.GroupActionValidate {
		t.Fatalf("LastAction 应记录 validate: %s", updated.LastAction)
	}

	// 已确认的组不能再次确认
	if _, err := svc.Validate(context.Background(), group.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("重复确认应被拒绝, 实际 %v", err)
	}
}

func TestSkipKeepsStatus(t *testing.T) {
	svc, groupRepo, fileRepo, _ := newGroupServiceEnv()
	group := seedGroup(groupRepo, fileRepo, model.GroupStatusPending)

	updated, err := svc.Skip(context.Background(), group.ID)
	if err != nil {
		t.Fatalf("跳过失败: %v", err)
	}
	if updated.Status != model.GroupStatusPending {
		t.Fatalf("跳过不应改变状态: %s", updated.Status)
	}
	if updated.LastAction != model.GroupActionSkip {
		t.Fatalf("LastAction 应记录 skip: %s", updated.LastAction)
	}
}

func TestUndoValidate(t *testing.T) {
	svc, groupRepo, fileRepo, _ := newGroupServiceEnv()
	group := seedGroup(groupRepo, fileRepo, model.GroupStatusPending)
	ctx := context.Background()

	if _, err := svc.Propose(ctx, group.ID, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Validate(ctx, group.ID); err != nil {
		t.Fatal(err)
	}

	updated, err := svc.Undo(ctx, group.ID)
	if err != nil {
		t.Fatalf("撤销确认失败: %v", err)
	}
	if updated.Status != model.GroupStatusAutoSelected || updated.ValidatedAt != nil {
		t.Fatalf("撤销确认应回到 auto_selected: %+v", updated)
	}
	if updated.OriginalFileID == nil || *updated.OriginalFileID != 1 {
		t.Fatal("撤销确认应保留提案")
	}
}

func TestUndoPropose(t *testing.T) {
	svc, groupRepo, fileRepo, _ := newGroupServiceEnv()
	group := seedGroup(groupRepo, fileRepo, model.GroupStatusPending)
	ctx := context.Background()

	if _, err := svc.Propose(ctx, group.ID, 1); err != nil {
		t.Fatal(err)
	}
	updated, err := svc.Undo(ctx, group.ID)
	if err != nil {
		t.Fatalf("撤销提案失败: %v", err)
	}
	if updated.Status != model.GroupStatusPending || updated.OriginalFileID != nil {
		t.Fatalf("撤销提案应清除原始文件并回到 pending: %+v", updated)
	}
}

func TestUndoWithoutHistory(t *testing.T) {
	svc, groupRepo, fileRepo, _ := newGroupServiceEnv()
	group := seedGroup(groupRepo, fileRepo, model.GroupStatusPending)

	if _, err := svc.Undo(context.Background(), group.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("无历史操作的撤销应被拒绝, 实际 %v", err)
	}
}

func TestValidateAdvancesSessionPointer(t *testing.T) {
	svc, groupRepo, fileRepo, sessionSvc := newGroupServiceEnv()
	ctx := context.Background()
	first := seedGroup(groupRepo, fileRepo, model.GroupStatusPending)
	second := groupRepo.add(model.DuplicateGroup{ContentHash: "def", Status: model.GroupStatusPending})
	fileRepo.add(model.FileRecord{ID: 3, Path: "/c/y.jpg", ContentHash: "def", GroupID: &second.ID})
	fileRepo.add(model.FileRecord{ID: 4, Path: "/d/y.jpg", ContentHash: "def", GroupID: &second.ID})

	session, err := sessionSvc.StartOrResume(ctx)
	if err != nil {
		t.Fatalf("启动会话失败: %v", err)
	}
	if session.CurrentGroupID == nil || *session.CurrentGroupID != first.ID {
		t.Fatalf("会话指针应落在第一个待审核组: %+v", session)
	}

	if _, err := svc.Propose(ctx, first.ID, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Validate(ctx, first.ID); err != nil {
		t.Fatal(err)
	}

	session, err = sessionSvc.GetActive(ctx)
	if err != nil {
		t.Fatalf("读取会话失败: %v", err)
	}
	if session.CurrentGroupID == nil || *session.CurrentGroupID != second.ID {
		t.Fatalf("确认后指针应推进到下一组: %+v", session)
	}
	if session.ValidatedCount != 1 || session.ProposedCount != 1 {
		t.Fatalf("会话计数不符: %+v", session)
	}
}

func TestListGroupsByStatus(t *testing.T) {
	svc, groupRepo, fileRepo, _ := newGroupServiceEnv()
	seedGroup(groupRepo, fileRepo, model.GroupStatusPending)
	groupRepo.add(model.DuplicateGroup{ContentHash: "xyz", Status: model.GroupStatusCleaned})

	groups, err := svc.ListGroups(context.Background(), []string{model.GroupStatusPending}, "", 10, 0)
	if err != nil {
		t.Fatalf("列出组失败: %v", err)
	}
	if len(groups) != 1 || groups[0].Status != model.GroupStatusPending {
		t.Fatalf("状态过滤不符: %+v", groups)
	}
}
