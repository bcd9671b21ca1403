// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"photokeeper-go/internal/service"

	"github.com/gin-gonic/gin"
)

// GroupHandler 负责处理重复组审核相关的 API 请求。
type GroupHandler struct {
	groupService    service.GroupService
	cleanerService  service.CleanerService
	groupingService service.GroupingService
}

// NewGroupHandler 创建一个新的 GroupHandler 实例。
func NewGroupHandler(groupService service.GroupService, cleanerService service.CleanerService, groupingService service.GroupingService) *GroupHandler {
	return &GroupHandler{groupService: groupService, cleanerService: cleanerService, groupingService: groupingService}
}

// Rebuild 从全部存活文件记录全量重建分组，返回重建后的重复组数量。
// 用于索引管道大规模回填之后的一次性校准。
func (h *GroupHandler) Rebuild(c *gin.Context) {
	count, err := h.groupingService.RebuildGroups(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"groupCount": count})
}

// parseGroupID 从路径参数解析组 id。
func parseGroupID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的组 id"})
		return 0, false
	}
	return uint(id), true
}

// ListGroups 分页列出重复组，支持状态过滤与路径片段检索。
func (h *GroupHandler) ListGroups(c *gin.Context) {
	var statuses []string
	if raw := c.Query("status"); raw != "" {
		statuses = strings.Split(raw, ",")
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	search := c.Query("path")

	groups, err := h.groupService.ListGroups(c.Request.Context(), statuses, search, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, groups)
}

// GetGroup 返回一个组及其当前成员。
func (h *GroupHandler) GetGroup(c *gin.Context) {
	id, ok := parseGroupID(c)
	if !ok {
		return
	}
	group, members, err := h.groupService.GetGroup(id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"group": group, "members": members})
}

// ProposeRequest 定义了提案 API 的请求体结构。
type ProposeRequest struct {
	FileID uint `json:"fileId" binding:"required"`
}

// Propose 将组内某个成员设为提案的原始文件。
func (h *GroupHandler) Propose(c *gin.Context) {
	id, ok := parseGroupID(c)
	if !ok {
		return
	}
	var req ProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}
	group, err := h.groupService.Propose(c.Request.Context(), id, req.FileID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, group)
}

// Validate 人工确认当前提案。
func (h *GroupHandler) Validate(c *gin.Context) {
	id, ok := parseGroupID(c)
	if !ok {
		return
	}
	group, err := h.groupService.Validate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, group)
}

// Skip 跳过该组，会话指针前移。
func (h *GroupHandler) Skip(c *gin.Context) {
	id, ok := parseGroupID(c)
	if !ok {
		return
	}
	group, err := h.groupService.Skip(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, group)
}

// Undo 回退该组最近一次操作。
func (h *GroupHandler) Undo(c *gin.Context) {
	id, ok := parseGroupID(c)
	if !ok {
		return
	}
	group, err := h.groupService.Undo(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, group)
}

// DeleteNonOriginalsRequest 定义了快捷删除 API 的请求体结构。
type DeleteNonOriginalsRequest struct {
	DryRun bool `json:"dryRun"`
}

// DeleteNonOriginals 信任自动提案，确认并发起清理一步完成。
func (h *GroupHandler) DeleteNonOriginals(c *gin.Context) {
	id, ok := parseGroupID(c)
	if !ok {
		return
	}
	var req DeleteNonOriginalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}
	job, err := h.cleanerService.DeleteNonOriginals(c.Request.Context(), id, req.DryRun)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, job)
}

// StartCleaning 为已确认的组发起清理作业。
func (h *GroupHandler) StartCleaning(c *gin.Context) {
	id, ok := parseGroupID(c)
	if !ok {
		return
	}
	var req DeleteNonOriginalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}
	job, err := h.cleanerService.StartCleaning(c.Request.Context(), id, req.DryRun)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, job)
}
