package api

import (
	"financify/middleware"
	"financify/service"

	"github.com/gin-gonic/gin"
)

// ReportHandler 统计报表处理器
type ReportHandler struct {
	svc *service.ReportService
}

// NewReportHandler 创建统计报表处理器
func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

// GetSummary 收支汇总
// @Summary 获取收支汇总
// @Description 按时间范围统计收入、支出、结余、储蓄率、分类占比和月度趋势。不传 start_time/end_time 则统计全部时间。
// @Tags 统计
// @Produce json
// @Security BearerAuth
// @Param start_time query string false "开始时间 (YYYY-MM-DD)，例如 2024-01-01"
// @Param end_time query string false "结束时间 (YYYY-MM-DD)，例如 2024-12-31"
// @Success 200 {object} Response{data=service.Summary} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/statistics/summary [get]
func (h *ReportHandler) GetSummary(c *gin.Context) {
	start, end, err := parseRange(c.Query("start_time"), c.Query("end_time"))
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	Success(c, h.svc.Summary(c.Request.Context(), middleware.GetCurrentUserID(c), start, end))
}

// GetDashboard 首页汇总
// @Summary 首页汇总
// @Description 当月收支、预算执行、进行中目标、账户余额、最近交易和同步状态
// @Tags 统计
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=service.Dashboard} "获取成功"
// @Router /api/v1/statistics/dashboard [get]
func (h *ReportHandler) GetDashboard(c *gin.Context) {
	Success(c, h.svc.Dashboard(c.Request.Context(), middleware.GetCurrentUserID(c), timeNow()))
}
