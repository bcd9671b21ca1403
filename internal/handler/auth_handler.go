// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"photokeeper-go/internal/config"
	"photokeeper-go/pkg/log"
	"photokeeper-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责签发访问令牌。
type AuthHandler struct {
	jwtManager *token.JWTManager
	serverCfg  config.ServerConfig
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(jwtManager *token.JWTManager, serverCfg config.ServerConfig) *AuthHandler {
	return &AuthHandler{jwtManager: jwtManager, serverCfg: serverCfg}
}

// TokenRequest 定义了令牌签发 API 的请求体结构。
type TokenRequest struct {
	AccessKey string `json:"accessKey" binding:"required"`
	Subject   string `json:"subject" binding:"required"`
	Role      string `json:"role" binding:"required"`
}

// IssueToken 用配置的访问密钥换取一个 JWT。
// worker 进程和审核界面都通过这个入口获得各自角色的令牌。
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}
	if req.AccessKey != h.serverCfg.AccessKey {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "访问密钥不正确"})
		return
	}
	if req.Role != token.RoleReviewer && req.Role != token.RoleWorker {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未知的角色"})
		return
	}

	tokenString, err := h.jwtManager.GenerateToken(req.Subject, req.Role)
	if err != nil {
		log.Error("签发 token 失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	respondOK(c, gin.H{"token": tokenString})
}
