package api

import (
	"financify/middleware"
	"financify/models"
	"financify/service"

	"github.com/gin-gonic/gin"
)

// BudgetHandler 预算处理器
type BudgetHandler struct {
	svc *service.BudgetService
}

// NewBudgetHandler 创建预算处理器
func NewBudgetHandler(svc *service.BudgetService) *BudgetHandler {
	return &BudgetHandler{svc: svc}
}

// BudgetRequest 创建/更新预算请求
type BudgetRequest struct {
	Category       string  `json:"category" binding:"required" example:"餐饮"`
	Limit          float64 `json:"limit" binding:"required,gt=0" example:"2000"`
	Period         string  `json:"period" binding:"omitempty,oneof=weekly monthly yearly" example:"monthly"`
	AlertThreshold float64 `json:"alert_threshold" binding:"omitempty,gte=0,lte=100" example:"80"`
}

func (r BudgetRequest) toModel() *models.Budget {
	return &models.Budget{
		Category:       r.Category,
		Limit:          r.Limit,
		Period:         r.Period,
		AlertThreshold: r.AlertThreshold,
	}
}

// Create 创建预算
// @Summary 创建预算
// @Description 同一分类同一周期只能有一个预算
// @Tags 预算
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BudgetRequest true "预算信息"
// @Success 200 {object} Response{data=models.Budget} "创建成功"
// @Failure 400 {object} Response "请求参数错误"
// @Router /api/v1/budgets [post]
func (h *BudgetHandler) Create(c *gin.Context) {
	var req BudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	out, err := h.svc.Create(c.Request.Context(), middleware.GetCurrentUserID(c), req.toModel())
	if err != nil {
		serviceError(c, err, "创建预算失败")
		return
	}
	SuccessWithMessage(c, "创建成功", out)
}

// List 预算列表
// @Summary 预算列表
// @Tags 预算
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.Budget} "获取成功"
// @Router /api/v1/budgets [get]
func (h *BudgetHandler) List(c *gin.Context) {
	Success(c, h.svc.List(c.Request.Context(), middleware.GetCurrentUserID(c)))
}

// Update 更新预算
// @Summary 更新预算
// @Tags 预算
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "预算ID"
// @Param request body BudgetRequest true "预算信息"
// @Success 200 {object} Response{data=models.Budget} "更新成功"
// @Router /api/v1/budgets/{id} [put]
func (h *BudgetHandler) Update(c *gin.Context) {
	var req BudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	out, err := h.svc.Update(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id"), req.toModel())
	if err != nil {
		serviceError(c, err, "更新预算失败")
		return
	}
	SuccessWithMessage(c, "更新成功", out)
}

// Delete 删除预算
// @Summary 删除预算
// @Tags 预算
// @Produce json
// @Security BearerAuth
// @Param id path string true "预算ID"
// @Success 200 {object} Response "删除成功"
// @Router /api/v1/budgets/{id} [delete]
func (h *BudgetHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id")); err != nil {
		serviceError(c, err, "删除预算失败")
		return
	}
	SuccessWithMessage(c, "删除成功", nil)
}

// Status 预算执行情况
// @Summary 预算执行情况
// @Description 计算当前周期的支出与预警状态，首次进入预警时发送邮件提醒
// @Tags 预算
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]service.BudgetStatus} "获取成功"
// @Router /api/v1/budgets/status [get]
func (h *BudgetHandler) Status(c *gin.Context) {
	Success(c, h.svc.Status(c.Request.Context(), middleware.GetCurrentUserID(c), timeNow()))
}
