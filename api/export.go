package api

import (
	"fmt"
	"net/http"
	"time"

	"financify/middleware"
	"financify/models"
	"financify/service"

	"github.com/gin-gonic/gin"
)

// ExportHandler 导出处理器
type ExportHandler struct {
	tx       *service.TransactionService
	exporter *service.ExportService
}

// NewExportHandler 创建导出处理器
func NewExportHandler(tx *service.TransactionService, exporter *service.ExportService) *ExportHandler {
	return &ExportHandler{tx: tx, exporter: exporter}
}

// query 解析必填的时间范围并查询交易
func (h *ExportHandler) query(c *gin.Context) ([]models.Transaction, time.Time, time.Time, bool) {
	startTimeStr := c.Query("start_time")
	endTimeStr := c.Query("end_time")
	if startTimeStr == "" || endTimeStr == "" {
		BadRequest(c, "请提供开始时间和结束时间")
		return nil, time.Time{}, time.Time{}, false
	}
	start, end, err := parseRange(startTimeStr, endTimeStr)
	if err != nil {
		BadRequest(c, err.Error())
		return nil, time.Time{}, time.Time{}, false
	}
	txs := h.tx.List(c.Request.Context(), middleware.GetCurrentUserID(c), service.TransactionFilter{Start: start, End: end})
	return txs, start, end, true
}

func attachment(c *gin.Context, contentType, filename string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Header("Content-Length", fmt.Sprintf("%d", len(data)))
	c.Data(http.StatusOK, contentType, data)
}

// ExportCSV 导出交易为 CSV
// @Summary 导出交易
// @Description 根据时间范围导出交易为 CSV 文件
// @Tags 导出
// @Produce text/csv
// @Security BearerAuth
// @Param start_time query string true "开始时间 (2024-01-01)"
// @Param end_time query string true "结束时间 (2024-12-31)"
// @Success 200 {file} file "CSV 文件"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/export/csv [get]
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	txs, _, _, ok := h.query(c)
	if !ok {
		return
	}
	data, err := h.exporter.CSV(txs)
	if err != nil {
		InternalError(c, "生成 CSV 失败")
		return
	}
	filename := fmt.Sprintf("transactions_%s_%s.csv", c.Query("start_time"), c.Query("end_time"))
	attachment(c, "text/csv; charset=utf-8", filename, data)
}

// ExportJSON 导出交易为 JSON
// @Summary 导出交易为 JSON
// @Description 根据时间范围导出交易及收支合计
// @Tags 导出
// @Produce json
// @Security BearerAuth
// @Param start_time query string true "开始时间 (2024-01-01)"
// @Param end_time query string true "结束时间 (2024-12-31)"
// @Success 200 {file} file "JSON 文件"
// @Failure 400 {object} Response "请求参数错误"
// @Router /api/v1/export/json [get]
func (h *ExportHandler) ExportJSON(c *gin.Context) {
	txs, start, end, ok := h.query(c)
	if !ok {
		return
	}
	data, err := h.exporter.JSON(txs, start, end)
	if err != nil {
		InternalError(c, "生成 JSON 失败")
		return
	}
	filename := fmt.Sprintf("transactions_%s_%s.json", c.Query("start_time"), c.Query("end_time"))
	attachment(c, "application/json; charset=utf-8", filename, data)
}

// ExportExcel 导出交易为 Excel
// @Summary 导出交易为 Excel
// @Tags 导出
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param start_time query string true "开始时间 (2024-01-01)"
// @Param end_time query string true "结束时间 (2024-12-31)"
// @Success 200 {file} file "xlsx 文件"
// @Failure 400 {object} Response "请求参数错误"
// @Router /api/v1/export/excel [get]
func (h *ExportHandler) ExportExcel(c *gin.Context) {
	txs, _, _, ok := h.query(c)
	if !ok {
		return
	}
	data, err := h.exporter.Excel(txs)
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "生成 Excel 失败"))
		return
	}
	filename := fmt.Sprintf("transactions_%s_%s.xlsx", c.Query("start_time"), c.Query("end_time"))
	attachment(c, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", filename, data)
}
