// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"

	"photokeeper-go/internal/service"

	"github.com/gin-gonic/gin"
)

// SessionHandler 负责处理审核会话相关的 API 请求。
type SessionHandler struct {
	sessionService service.SessionService
	groupService   service.GroupService
}

// NewSessionHandler 创建一个新的 SessionHandler 实例。
func NewSessionHandler(sessionService service.SessionService, groupService service.GroupService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService, groupService: groupService}
}

// Start 开始或恢复一次审核会话。
func (h *SessionHandler) Start(c *gin.Context) {
	session, err := h.sessionService.StartOrResume(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, session)
}

// Current 返回活跃会话与当前待审核组（含成员）。
func (h *SessionHandler) Current(c *gin.Context) {
	session, err := h.sessionService.GetActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"session": session}
	if session.CurrentGroupID != nil {
		group, members, err := h.groupService.GetGroup(*session.CurrentGroupID)
		if err != nil && !errors.Is(err, service.ErrNotFound) {
			respondError(c, err)
			return
		}
		if err == nil {
			resp["group"] = group
			resp["members"] = members
		}
	}
	respondOK(c, resp)
}

// Advance 将会话指针移到下一个待审核组。
func (h *SessionHandler) Advance(c *gin.Context) {
	session, err := h.sessionService.Advance(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, session)
}
