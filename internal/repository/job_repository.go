// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"fmt"

	"photokeeper-go/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// 作业进度计数器字段名（Redis hash 字段）。
const (
	JobCounterProcessed = "processed"
	JobCounterSucceeded = "succeeded"
	JobCounterFailed    = "failed"
	JobCounterSkipped   = "skipped"
)

// JobRepository 接口定义了清理作业相关的数据持久化操作。
// 作业运行期间的进度计数放在 Redis，作业结束后聚合值回写 MySQL。
type JobRepository interface {
	CreateJobWithFiles(job *model.CleanerJob, files []model.CleanerJobFile) error
	SaveJob(job *model.CleanerJob) error
	FindJobByID(id uint) (*model.CleanerJob, error)
	ListJobs(limit, offset int) ([]model.CleanerJob, error)
	FindJobFiles(jobID uint) ([]model.CleanerJobFile, error)
	FindJobFileByRecord(jobID uint, fileRecordID uint) (*model.CleanerJobFile, error)
	SaveJobFile(file *model.CleanerJobFile) error

	// 运行期进度计数（Redis）
	IncrJobCounter(ctx context.Context, jobID uint, field string) (int64, error)
	GetJobCounters(ctx context.Context, jobID uint) (map[string]int64, error)
	ClearJobCounters(ctx context.Context, jobID uint) error
}

// jobRepository 是 JobRepository 接口的 GORM+Redis 实现。
type jobRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewJobRepository 创建一个新的 JobRepository 实例。
func NewJobRepository(db *gorm.DB, redisClient *redis.Client) JobRepository {
	return &jobRepository{db: db, redisClient: redisClient}
}

// jobCounterKey 生成作业进度计数器的 Redis 键。
func (r *jobRepository) jobCounterKey(jobID uint) string {
	return fmt.Sprintf("cleaner:job:%d:counters", jobID)
}

// CreateJobWithFiles 在一个事务内创建作业及其全部文件条目。
func (r *jobRepository) CreateJobWithFiles(job *model.CleanerJob, files []model.CleanerJobFile) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		for i := range files {
			files[i].JobID = job.ID
			if err := tx.Create(&files[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveJob 保存对作业的全部修改。
func (r *jobRepository) SaveJob(job *model.CleanerJob) error {
	return r.db.Save(job).Error
}

// FindJobByID 根据主键检索一个清理作业。
func (r *jobRepository) FindJobByID(id uint) (*model.CleanerJob, error) {
	var job model.CleanerJob
	if err := r.db.First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs 按创建时间倒序分页列出清理作业。
func (r *jobRepository) ListJobs(limit, offset int) ([]model.CleanerJob, error) {
	var jobs []model.CleanerJob
	q := r.db.Order("id desc")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	err := q.Find(&jobs).Error
	return jobs, err
}

// FindJobFiles 检索作业内全部文件条目。
func (r *jobRepository) FindJobFiles(jobID uint) ([]model.CleanerJobFile, error) {
	var files []model.CleanerJobFile
	err := r.db.Where("job_id = ?", jobID).Order("id asc").Find(&files).Error
	return files, err
}

// FindJobFileByRecord 根据作业 id 和文件记录 id 检索单个文件条目。
func (r *jobRepository) FindJobFileByRecord(jobID uint, fileRecordID uint) (*model.CleanerJobFile, error) {
	var file model.CleanerJobFile
	err := r.db.Where("job_id = ? AND file_record_id = ?", jobID, fileRecordID).First(&file).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// SaveJobFile 保存对单个文件条目的全部修改。
func (r *jobRepository) SaveJobFile(file *model.CleanerJobFile) error {
	return r.db.Save(file).Error
}

// IncrJobCounter 递增作业的一个进度计数器并返回新值。
func (r *jobRepository) IncrJobCounter(ctx context.Context, jobID uint, field string) (int64, error) {
	return r.redisClient.HIncrBy(ctx, r.jobCounterKey(jobID), field, 1).Result()
}

// GetJobCounters 读取作业的全部进度计数器。
func (r *jobRepository) GetJobCounters(ctx context.Context, jobID uint) (map[string]int64, error) {
	vals, err := r.redisClient.HGetAll(ctx, r.jobCounterKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	counters := make(map[string]int64, len(vals))
	for k, v := range vals {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			counters[k] = n
		}
	}
	return counters, nil
}

// ClearJobCounters 删除作业的进度计数器键（作业聚合完成后调用）。
func (r *jobRepository) ClearJobCounters(ctx context.Context, jobID uint) error {
	return r.redisClient.Del(ctx, r.jobCounterKey(jobID)).Err()
}
