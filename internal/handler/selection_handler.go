// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"photokeeper-go/internal/model"
	"photokeeper-go/internal/service"

	"github.com/gin-gonic/gin"
)

// SelectionHandler 负责处理选择偏好与原始文件重算相关的 API 请求。
type SelectionHandler struct {
	selectionService service.SelectionService
}

// NewSelectionHandler 创建一个新的 SelectionHandler 实例。
func NewSelectionHandler(selectionService service.SelectionService) *SelectionHandler {
	return &SelectionHandler{selectionService: selectionService}
}

// GetPreferences 返回当前的路径前缀优先级规则。
func (h *SelectionHandler) GetPreferences(c *gin.Context) {
	prefs, err := h.selectionService.GetPreferences()
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, prefs)
}

// PreferenceItem 是保存偏好 API 中的一条规则。
type PreferenceItem struct {
	PathPrefix string `json:"pathPrefix" binding:"required"`
	Priority   int    `json:"priority"`
}

// SavePreferencesRequest 定义了保存偏好 API 的请求体结构。
type SavePreferencesRequest struct {
	Preferences []PreferenceItem `json:"preferences" binding:"required"`
}

// SavePreferences 整体替换偏好规则，顺序即显式排序。
func (h *SelectionHandler) SavePreferences(c *gin.Context) {
	var req SavePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	prefs := make([]model.SelectionPreference, 0, len(req.Preferences))
	for _, p := range req.Preferences {
		prefs = append(prefs, model.SelectionPreference{
			PathPrefix: p.PathPrefix,
			Priority:   p.Priority,
		})
	}
	if err := h.selectionService.SavePreferences(prefs); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// ResetPreferences 清空全部偏好规则。
func (h *SelectionHandler) ResetPreferences(c *gin.Context) {
	if err := h.selectionService.ResetPreferences(); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// RecalculateRequest 定义了重算 API 的请求体结构。
type RecalculateRequest struct {
	Mode     string `json:"mode" binding:"required"`  // preview | apply
	Scope    string `json:"scope" binding:"required"` // pending | all
	Strategy string `json:"strategy"`                 // 可选的平局策略
}

// Recalculate 对指定范围内的组重新评分。
func (h *SelectionHandler) Recalculate(c *gin.Context) {
	var req RecalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	report, err := h.selectionService.Recalculate(req.Mode, req.Scope, req.Strategy)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}
