// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"photokeeper-go/internal/config"
	"photokeeper-go/internal/service"
	"photokeeper-go/pkg/storage"

	"github.com/gin-gonic/gin"
)

// JobHandler 负责处理清理作业相关的 API 请求。
type JobHandler struct {
	cleanerService service.CleanerService
	minioCfg       config.MinIOConfig
}

// NewJobHandler 创建一个新的 JobHandler 实例。
func NewJobHandler(cleanerService service.CleanerService, minioCfg config.MinIOConfig) *JobHandler {
	return &JobHandler{cleanerService: cleanerService, minioCfg: minioCfg}
}

// parseJobID 从路径参数解析作业 id。
func parseJobID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的作业 id"})
		return 0, false
	}
	return uint(id), true
}

// ListJobs 分页列出清理作业。
func (h *JobHandler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	jobs, err := h.cleanerService.ListJobs(limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, jobs)
}

// GetJob 返回作业与其文件条目（运行中的作业聚合值来自实时计数器）。
func (h *JobHandler) GetJob(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}
	job, files, err := h.cleanerService.GetJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"job": job, "files": files})
}

// CancelJob 向 cleaner 广播协作式取消。
func (h *JobHandler) CancelJob(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}
	if err := h.cleanerService.CancelJob(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// ArchiveURL 为某个已归档文件生成限时下载链接。
func (h *JobHandler) ArchiveURL(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	fileID, err := strconv.ParseUint(c.Param("fileId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的文件 id"})
		return
	}

	_, files, err := h.cleanerService.GetJob(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	for _, f := range files {
		if f.FileRecordID != nil && uint64(*f.FileRecordID) == fileID && f.ArchivePath != "" {
			url, err := storage.GetPresignedURL(h.minioCfg.BucketName, f.ArchivePath, 15*time.Minute)
			if err != nil {
				respondError(c, err)
				return
			}
			respondOK(c, gin.H{"url": url})
			return
		}
	}
	respondError(c, fmt.Errorf("%w: 作业 %d 中没有文件 %d 的归档", service.ErrNotFound, jobID, fileID))
}
