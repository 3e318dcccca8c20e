package api

import (
	"encoding/json"
	"fmt"
	"io"

	"financify/middleware"
	"financify/service"

	"github.com/gin-gonic/gin"
)

// maxBackupSize 导入备份的最大字节数
const maxBackupSize = 20 << 20

// BackupHandler 备份与恢复处理器
type BackupHandler struct {
	svc *service.BackupService
}

// NewBackupHandler 创建备份处理器
func NewBackupHandler(svc *service.BackupService) *BackupHandler {
	return &BackupHandler{svc: svc}
}

// Export 下载完整备份
// @Summary 下载备份
// @Description 导出交易、周期交易、目标、预算和账户
// @Tags 备份
// @Produce json
// @Security BearerAuth
// @Success 200 {file} file "备份文件"
// @Router /api/v1/backup [get]
func (h *BackupHandler) Export(c *gin.Context) {
	b := h.svc.Export(c.Request.Context(), middleware.GetCurrentUserID(c))
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		InternalError(c, "生成备份失败")
		return
	}
	filename := fmt.Sprintf("financify_backup_%s.json", b.ExportedAt.Format("20060102150405"))
	attachment(c, "application/json; charset=utf-8", filename, data)
}

// Import 恢复备份
// @Summary 恢复备份
// @Description 先校验全部记录，任一无效则整体拒绝；通过后以新 ID 写入
// @Tags 备份
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.Backup true "备份内容"
// @Success 200 {object} Response{data=service.ImportResult} "恢复成功"
// @Failure 400 {object} Response "备份无效"
// @Router /api/v1/backup [post]
func (h *BackupHandler) Import(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBackupSize+1))
	if err != nil {
		BadRequest(c, "读取备份失败")
		return
	}
	if len(data) > maxBackupSize {
		BadRequest(c, "备份文件过大")
		return
	}
	res, err := h.svc.Import(c.Request.Context(), middleware.GetCurrentUserID(c), data)
	if err != nil {
		serviceError(c, err, "恢复备份失败")
		return
	}
	SuccessWithMessage(c, "恢复成功", res)
}
