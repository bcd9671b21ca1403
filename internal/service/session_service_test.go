package service

import (
	"context"
	"errors"
	"testing"

	"photokeeper-go/internal/model"
)

func newSessionServiceEnv() (SessionService, *fakeSessionRepo, *fakeGroupRepo) {
	sessionRepo := newFakeSessionRepo()
	groupRepo := newFakeGroupRepo()
	return NewSessionService(sessionRepo, groupRepo), sessionRepo, groupRepo
}

func TestStartOrResumeCreatesSessionAtFirstReviewable(t *testing.T) {
	svc, _, groupRepo := newSessionServiceEnv()
	groupRepo.add(model.DuplicateGroup{ContentHash: "a", Status: model.GroupStatusCleaned})
	second := groupRepo.add(model.DuplicateGroup{ContentHash: "b", Status: model.GroupStatusPending})

	session, err := svc.StartOrResume(context.Background())
	if err != nil {
		t.Fatalf("启动会话失败: %v", err)
	}
	if session.CurrentGroupID == nil || *session.CurrentGroupID != second.ID {
		t.Fatalf("指针应落在第一个待审核组: %+v", session)
	}
}

func TestStartOrResumeReturnsActiveSession(t *testing.T) {
	svc, _, groupRepo := newSessionServiceEnv()
	groupRepo.add(model.DuplicateGroup{ContentHash: "a", Status: model.GroupStatusPending})
	ctx := context.Background()

	first, err := svc.StartOrResume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	again, err := svc.StartOrResume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != again.ID {
		t.Fatalf("活跃会话存在时不应新建: %d vs %d", first.ID, again.ID)
	}
}

func TestStartOrResumeRecoversOpenSession(t *testing.T) {
	svc, sessionRepo, groupRepo := newSessionServiceEnv()
	groupRepo.add(model.DuplicateGroup{ContentHash: "a", Status: model.GroupStatusPending})
	ctx := context.Background()

	session, err := svc.StartOrResume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// 模拟 Redis 指针丢失（重启等场景）
	if err := sessionRepo.ClearActiveID(ctx); err != nil {
		t.Fatal(err)
	}

	resumed, err := svc.StartOrResume(ctx)
	if err != nil {
		t.Fatalf("恢复会话失败: %v", err)
	}
	if resumed.ID != session.ID {
		t.Fatalf("应恢复最近未完成的会话: %d vs %d", resumed.ID, session.ID)
	}
	if resumed.ResumedAt == nil {
		t.Fatal("恢复时应记录 ResumedAt")
	}
}

func TestAdvanceCompletesSessionWhenBacklogExhausted(t *testing.T) {
	svc, _, groupRepo := newSessionServiceEnv()
	only := groupRepo.add(model.DuplicateGroup{ContentHash: "a", Status: model.GroupStatusPending})
	ctx := context.Background()

	if _, err := svc.StartOrResume(ctx); err != nil {
		t.Fatal(err)
	}
	// 唯一的待审核组被越过后积压即耗尽
	if err := svc.AdvancePast(ctx, only.ID); err != nil {
		t.Fatalf("推进失败: %v", err)
	}

	if _, err := svc.GetActive(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("积压耗尽后不应再有活跃会话, 实际 %v", err)
	}
}

func TestAdvanceSkipsNonReviewableGroups(t *testing.T) {
	svc, _, groupRepo := newSessionServiceEnv()
	first := groupRepo.add(model.DuplicateGroup{ContentHash: "a", Status: model.GroupStatusPending})
	groupRepo.add(model.DuplicateGroup{ContentHash: "b", Status: model.GroupStatusCleaning})
	third := groupRepo.add(model.DuplicateGroup{ContentHash: "c", Status: model.GroupStatusAutoSelected})
	ctx := context.Background()

	if _, err := svc.StartOrResume(ctx); err != nil {
		t.Fatal(err)
	}
	if err := svc.AdvancePast(ctx, first.ID); err != nil {
		t.Fatal(err)
	}

	session, err := svc.GetActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if session.CurrentGroupID == nil || *session.CurrentGroupID != third.ID {
		t.Fatalf("指针应跳过非待审核组: %+v", session)
	}
	if session.LastGroupID == nil || *session.LastGroupID != first.ID {
		t.Fatalf("LastGroupID 应记录刚处理的组: %+v", session)
	}
}

func TestAdvancePastWithoutSessionIsNoop(t *testing.T) {
	svc, _, _ := newSessionServiceEnv()
	if err := svc.AdvancePast(context.Background(), 1); err != nil {
		t.Fatalf("无会话时的推进应是空操作: %v", err)
	}
}

func TestRestoreToMovesPointerBack(t *testing.T) {
	svc, _, groupRepo := newSessionServiceEnv()
	first := groupRepo.add(model.DuplicateGroup{ContentHash: "a", Status: model.GroupStatusPending})
	groupRepo.add(model.DuplicateGroup{ContentHash: "b", Status: model.GroupStatusPending})
	ctx := context.Background()

	if _, err := svc.StartOrResume(ctx); err != nil {
		t.Fatal(err)
	}
	if err := svc.AdvancePast(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.RestoreTo(ctx, first.ID); err != nil {
		t.Fatalf("回退指针失败: %v", err)
	}

	session, err := svc.GetActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if session.CurrentGroupID == nil || *session.CurrentGroupID != first.ID {
		t.Fatalf("撤销后指针应回到被撤销的组: %+v", session)
	}
}

func TestSessionStampsGroupUnderReview(t *testing.T) {
	svc, _, groupRepo := newSessionServiceEnv()
	first := groupRepo.add(model.DuplicateGroup{ContentHash: "a", Status: model.GroupStatusPending})
	second := groupRepo.add(model.DuplicateGroup{ContentHash: "b", Status: model.GroupStatusPending})
	ctx := context.Background()

	session, err := svc.StartOrResume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	g1, _ := groupRepo.FindByID(first.ID)
	if g1.SessionID == nil || *g1.SessionID != session.ID {
		t.Fatalf("指针所指的组应标记为本会话在审: %+v", g1)
	}

	// 指针前移时标记随之转移
	if err := svc.AdvancePast(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	g1, _ = groupRepo.FindByID(first.ID)
	g2, _ := groupRepo.FindByID(second.ID)
	if g1.SessionID != nil {
		t.Fatalf("指针离开的组应解除标记: %+v", g1)
	}
	if g2.SessionID == nil || *g2.SessionID != session.ID {
		t.Fatalf("新指向的组应带上标记: %+v", g2)
	}

	// 撤销把标记还给回退的组
	if err := svc.RestoreTo(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	g1, _ = groupRepo.FindByID(first.ID)
	g2, _ = groupRepo.FindByID(second.ID)
	if g1.SessionID == nil || g2.SessionID != nil {
		t.Fatalf("回退后标记应跟随指针: g1=%+v g2=%+v", g1, g2)
	}

	// 积压耗尽时最后一个组的标记随会话一起清除
	if err := svc.AdvancePast(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.AdvancePast(ctx, second.ID); err != nil {
		t.Fatal(err)
	}
	g2, _ = groupRepo.FindByID(second.ID)
	if g2.SessionID != nil {
		t.Fatalf("会话完成后不应残留标记: %+v", g2)
	}
}

func TestGetActiveClearsDanglingPointer(t *testing.T) {
	svc, sessionRepo, _ := newSessionServiceEnv()
	ctx := context.Background()
	if err := sessionRepo.SetActiveID(ctx, 99); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.GetActive(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("悬空指针应返回 ErrNotFound, 实际 %v", err)
	}
	if _, ok, _ := sessionRepo.GetActiveID(ctx); ok {
		t.Fatal("悬空指针应被清除")
	}
}
