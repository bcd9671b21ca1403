// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"strconv"

	"photokeeper-go/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// activeSessionKey 是 Redis 中缓存当前活跃审核会话 id 的键。
const activeSessionKey = "selection:active_session"

// SessionRepository 接口定义了审核会话相关的数据持久化操作。
// 活跃会话指针缓存在 Redis 中，会话本体落在 MySQL。
type SessionRepository interface {
	Create(session *model.SelectionSession) error
	Save(session *model.SelectionSession) error
	FindByID(id uint) (*model.SelectionSession, error)
	FindLatestOpen() (*model.SelectionSession, error)
	GetActiveID(ctx context.Context) (uint, bool, error)
	SetActiveID(ctx context.Context, id uint) error
	ClearActiveID(ctx context.Context) error
}

// sessionRepository 是 SessionRepository 接口的 GORM+Redis 实现。
type sessionRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(db *gorm.DB, redisClient *redis.Client) SessionRepository {
	return &sessionRepository{db: db, redisClient: redisClient}
}

// Create 在数据库中创建一个新的审核会话。
func (r *sessionRepository) Create(session *model.SelectionSession) error {
	return r.db.Create(session).Error
}

// Save 保存对审核会话的全部修改。
func (r *sessionRepository) Save(session *model.SelectionSession) error {
	return r.db.Save(session).Error
}

// FindByID 根据主键检索一个审核会话。
func (r *sessionRepository) FindByID(id uint) (*model.SelectionSession, error) {
	var session model.SelectionSession
	if err := r.db.First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// FindLatestOpen 检索最近一个尚未完成的会话，作为 Redis 缓存失效时的兜底。
func (r *sessionRepository) FindLatestOpen() (*model.SelectionSession, error) {
	var session model.SelectionSession
	err := r.db.Where("completed_at IS NULL").Order("id desc").First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetActiveID 从 Redis 读取当前活跃会话 id，第二个返回值表示是否存在。
func (r *sessionRepository) GetActiveID(ctx context.Context) (uint, bool, error) {
	val, err := r.redisClient.Get(ctx, activeSessionKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return uint(id), true, nil
}

// SetActiveID 将当前活跃会话 id 写入 Redis。
func (r *sessionRepository) SetActiveID(ctx context.Context, id uint) error {
	return r.redisClient.Set(ctx, activeSessionKey, strconv.FormatUint(uint64(id), 10), 0).Err()
}

// ClearActiveID 清除 Redis 中的活跃会话指针。
func (r *sessionRepository) ClearActiveID(ctx context.Context) error {
	return r.redisClient.Del(ctx, activeSessionKey).Err()
}
