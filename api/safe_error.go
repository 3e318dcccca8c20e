package api

import (
	"errors"

	"financify/config"
	"financify/queue"
	"financify/resilient"
	"financify/service"

	"github.com/gin-gonic/gin"
)

// SafeErrorMessage 生产环境下不向客户端暴露内部错误详情，避免信息泄露
func SafeErrorMessage(err error, fallback string) string {
	return config.SafeErrorMessage(err, fallback)
}

// serviceError 按错误类型映射 HTTP 状态码
func serviceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidBackup):
		BadRequest(c, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, queue.ErrOperationNotFound),
		errors.Is(err, resilient.ErrPendingNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, queue.ErrNotRetryable):
		BadRequest(c, err.Error())
	default:
		InternalError(c, SafeErrorMessage(err, fallback))
	}
}
