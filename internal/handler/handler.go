// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"photokeeper-go/internal/service"
	"photokeeper-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// respondOK 按统一的响应信封返回成功结果。
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

// respondError 把业务错误映射为 HTTP 状态码。
// 未归类的错误一律按服务器内部错误处理并记录日志。
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrIntegrityMismatch):
		status = http.StatusConflict
	case errors.Is(err, service.ErrNoWorkerConnected):
		status = http.StatusServiceUnavailable
	default:
		log.Error("请求处理失败", err)
	}
	c.JSON(status, gin.H{"code": status, "message": err.Error(), "data": nil})
}
