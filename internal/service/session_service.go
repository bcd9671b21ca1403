// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"time"

	"photokeeper-go/internal/model"
	"photokeeper-go/internal/repository"
	"photokeeper-go/pkg/log"

	"gorm.io/gorm"
)

// SessionService 接口定义了审核会话（一名审核者对积压的一次有序遍历）的业务操作。
type SessionService interface {
	StartOrResume(ctx context.Context) (*model.SelectionSession, error)
	GetActive(ctx context.Context) (*model.SelectionSession, error)
	Advance(ctx context.Context) (*model.SelectionSession, error)
	AdvancePast(ctx context.Context, groupID uint) error
	RestoreTo(ctx context.Context, groupID uint) error
	MarkProposed(ctx context.Context) error
	MarkValidated(ctx context.Context) error
	MarkSkipped(ctx context.Context) error
}

type sessionService struct {
	sessionRepo repository.SessionRepository
	groupRepo   repository.GroupRepository
}

// NewSessionService 创建一个新的 SessionService 实例。
func NewSessionService(sessionRepo repository.SessionRepository, groupRepo repository.GroupRepository) SessionService {
	return &sessionService{sessionRepo: sessionRepo, groupRepo: groupRepo}
}

// StartOrResume 返回活跃会话；没有则恢复最近未完成的会话，再没有则新建一个。
// 新会话的指针落在积压里第一个待审核组上。
func (s *sessionService) StartOrResume(ctx context.Context) (*model.SelectionSession, error) {
	if session, err := s.GetActive(ctx); err == nil {
		return session, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// 恢复最近未完成的会话
	session, err := s.sessionRepo.FindLatestOpen()
	if err == nil {
		now := time.Now()
		session.ResumedAt = &now
		if err := s.sessionRepo.Save(session); err != nil {
			return nil, err
		}
		if err := s.sessionRepo.SetActiveID(ctx, session.ID); err != nil {
			return nil, err
		}
		s.claimGroup(session.ID, session.CurrentGroupID)
		log.Infof("[Session] 恢复审核会话: id=%d", session.ID)
		return session, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 新建会话
	session = &model.SelectionSession{}
	if first, err := s.groupRepo.FindNextReviewable(0); err == nil {
		session.CurrentGroupID = &first.ID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	if err := s.sessionRepo.SetActiveID(ctx, session.ID); err != nil {
		return nil, err
	}
	s.claimGroup(session.ID, session.CurrentGroupID)
	log.Infof("[Session] 新建审核会话: id=%d", session.ID)
	return session, nil
}

// GetActive 返回当前活跃会话，没有时返回 ErrNotFound。
func (s *sessionService) GetActive(ctx context.Context) (*model.SelectionSession, error) {
	id, ok, err := s.sessionRepo.GetActiveID(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	session, err := s.sessionRepo.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Redis 指针悬空时清掉它
		_ = s.sessionRepo.ClearActiveID(ctx)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Advance 将会话指针移到当前组之后的下一个待审核组。
func (s *sessionService) Advance(ctx context.Context) (*model.SelectionSession, error) {
	session, err := s.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	var after uint
	if session.CurrentGroupID != nil {
		after = *session.CurrentGroupID
	}
	if err := s.advanceFrom(ctx, session, after); err != nil {
		return nil, err
	}
	return session, nil
}

// AdvancePast 在某个组被确认或跳过后，把指针推进到它之后的下一个待审核组。
func (s *sessionService) AdvancePast(ctx context.Context, groupID uint) error {
	session, err := s.GetActive(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil // 无会话时的确认操作合法，只是无指针可推进
		}
		return err
	}
	return s.advanceFrom(ctx, session, groupID)
}

// advanceFrom 从给定组之后寻找下一个待审核组。积压耗尽时会话完成并清除活跃指针。
func (s *sessionService) advanceFrom(ctx context.Context, session *model.SelectionSession, after uint) error {
	prev := session.CurrentGroupID
	session.LastGroupID = &after

	next, err := s.groupRepo.FindNextReviewable(after)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		now := time.Now()
		session.CurrentGroupID = nil
		session.CompletedAt = &now
		if err := s.sessionRepo.Save(session); err != nil {
			return err
		}
		s.releaseGroup(session.ID, prev)
		log.Infof("[Session] 积压已审完，会话完成: id=%d", session.ID)
		return s.sessionRepo.ClearActiveID(ctx)
	}
	if err != nil {
		return err
	}
	session.CurrentGroupID = &next.ID
	if err := s.sessionRepo.Save(session); err != nil {
		return err
	}
	s.releaseGroup(session.ID, prev)
	s.claimGroup(session.ID, session.CurrentGroupID)
	return nil
}

// RestoreTo 在撤销后把会话指针拉回被撤销的组。已完成的会话会被重新打开。
func (s *sessionService) RestoreTo(ctx context.Context, groupID uint) error {
	session, err := s.GetActive(ctx)
	if errors.Is(err, ErrNotFound) {
		session, err = s.sessionRepo.FindLatestOpen()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.sessionRepo.SetActiveID(ctx, session.ID); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	prev := session.CurrentGroupID
	session.CurrentGroupID = &groupID
	session.CompletedAt = nil
	if err := s.sessionRepo.Save(session); err != nil {
		return err
	}
	s.releaseGroup(session.ID, prev)
	s.claimGroup(session.ID, session.CurrentGroupID)
	return nil
}

// claimGroup 把会话指针当前指向的组标记为本会话在审。
// 标记仅作展示，失败不阻塞指针移动。
func (s *sessionService) claimGroup(sessionID uint, groupID *uint) {
	if groupID == nil {
		return
	}
	group, err := s.groupRepo.FindByID(*groupID)
	if err != nil {
		return
	}
	group.SessionID = &sessionID
	if err := s.groupRepo.Save(group); err != nil {
		log.Errorf("[Session] 写入组的会话标记失败, groupID=%d, err=%v", group.ID, err)
	}
}

// releaseGroup 清除指针离开的组上属于本会话的标记。
func (s *sessionService) releaseGroup(sessionID uint, groupID *uint) {
	if groupID == nil {
		return
	}
	group, err := s.groupRepo.FindByID(*groupID)
	if err != nil {
		return
	}
	if group.SessionID == nil || *group.SessionID != sessionID {
		return
	}
	group.SessionID = nil
	if err := s.groupRepo.Save(group); err != nil {
		log.Errorf("[Session] 清除组的会话标记失败, groupID=%d, err=%v", group.ID, err)
	}
}

// counter 更新会话上的一个进度计数。
func (s *sessionService) counter(ctx context.Context, update func(*model.SelectionSession)) error {
	session, err := s.GetActive(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	update(session)
	return s.sessionRepo.Save(session)
}

// MarkProposed 递增会话的提案计数。
func (s *sessionService) MarkProposed(ctx context.Context) error {
	return s.counter(ctx, func(sess *model.SelectionSession) { sess.ProposedCount++ })
}

// MarkValidated 递增会话的确认计数。
func (s *sessionService) MarkValidated(ctx context.Context) error {
	return s.counter(ctx, func(sess *model.SelectionSession) { sess.ValidatedCount++ })
}

// MarkSkipped 递增会话的跳过计数。
func (s *sessionService) MarkSkipped(ctx context.Context) error {
	return s.counter(ctx, func(sess *model.SelectionSession) { sess.SkippedCount++ })
}
