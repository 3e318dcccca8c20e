package api

import (
	"financify/middleware"
	"financify/models"
	"financify/service"

	"github.com/gin-gonic/gin"
)

// GoalHandler 储蓄目标处理器
type GoalHandler struct {
	svc *service.GoalService
}

// NewGoalHandler 创建储蓄目标处理器
func NewGoalHandler(svc *service.GoalService) *GoalHandler {
	return &GoalHandler{svc: svc}
}

// GoalRequest 创建/更新目标请求
type GoalRequest struct {
	Name          string  `json:"name" binding:"required,max=100" example:"应急基金"`
	TargetAmount  float64 `json:"target_amount" binding:"required,gt=0" example:"10000"`
	CurrentAmount float64 `json:"current_amount" binding:"omitempty,gte=0" example:"0"`
	Deadline      string  `json:"deadline" example:"2024-12-31"`
	Category      string  `json:"category" example:"储蓄"`
	Status        string  `json:"status" binding:"omitempty,oneof=active completed paused cancelled" example:"active"`
}

func (r GoalRequest) toModel() (*models.Goal, error) {
	deadline, err := parseOptionalDate(r.Deadline)
	if err != nil {
		return nil, err
	}
	return &models.Goal{
		Name:          r.Name,
		TargetAmount:  r.TargetAmount,
		CurrentAmount: r.CurrentAmount,
		Deadline:      deadline,
		Category:      r.Category,
		Status:        r.Status,
	}, nil
}

// ContributeRequest 存取金额请求
type ContributeRequest struct {
	Amount float64 `json:"amount" binding:"required" example:"500"` // 负数表示取出
}

// Create 创建目标
// @Summary 创建储蓄目标
// @Tags 储蓄目标
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body GoalRequest true "目标信息"
// @Success 200 {object} Response{data=models.Goal} "创建成功"
// @Router /api/v1/goals [post]
func (h *GoalHandler) Create(c *gin.Context) {
	var req GoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	g, err := req.toModel()
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	out, err := h.svc.Create(c.Request.Context(), middleware.GetCurrentUserID(c), g)
	if err != nil {
		serviceError(c, err, "创建目标失败")
		return
	}
	SuccessWithMessage(c, "创建成功", out)
}

// List 目标列表（含进度）
// @Summary 储蓄目标列表
// @Tags 储蓄目标
// @Produce json
// @Security BearerAuth
// @Param status query string false "状态筛选"
// @Success 200 {object} Response{data=[]service.GoalProgress} "获取成功"
// @Router /api/v1/goals [get]
func (h *GoalHandler) List(c *gin.Context) {
	Success(c, h.svc.ListProgress(c.Request.Context(), middleware.GetCurrentUserID(c), c.Query("status")))
}

// Get 目标详情
// @Summary 储蓄目标详情
// @Tags 储蓄目标
// @Produce json
// @Security BearerAuth
// @Param id path string true "目标ID"
// @Success 200 {object} Response{data=service.GoalProgress} "获取成功"
// @Router /api/v1/goals/{id} [get]
func (h *GoalHandler) Get(c *gin.Context) {
	g, err := h.svc.Get(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err, "获取目标失败")
		return
	}
	Success(c, service.Progress(*g, timeNow()))
}

// Update 更新目标
// @Summary 更新储蓄目标
// @Tags 储蓄目标
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "目标ID"
// @Param request body GoalRequest true "目标信息"
// @Success 200 {object} Response{data=models.Goal} "更新成功"
// @Router /api/v1/goals/{id} [put]
func (h *GoalHandler) Update(c *gin.Context) {
	var req GoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	g, err := req.toModel()
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	out, err := h.svc.Update(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id"), g)
	if err != nil {
		serviceError(c, err, "更新目标失败")
		return
	}
	SuccessWithMessage(c, "更新成功", out)
}

// Delete 删除目标
// @Summary 删除储蓄目标
// @Tags 储蓄目标
// @Produce json
// @Security BearerAuth
// @Param id path string true "目标ID"
// @Success 200 {object} Response "删除成功"
// @Router /api/v1/goals/{id} [delete]
func (h *GoalHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id")); err != nil {
		serviceError(c, err, "删除目标失败")
		return
	}
	SuccessWithMessage(c, "删除成功", nil)
}

// Contribute 存入或取出
// @Summary 目标存取
// @Description 正数存入，负数取出；达到目标金额后自动完成
// @Tags 储蓄目标
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "目标ID"
// @Param request body ContributeRequest true "金额"
// @Success 200 {object} Response{data=models.Goal} "操作成功"
// @Router /api/v1/goals/{id}/contribute [post]
func (h *GoalHandler) Contribute(c *gin.Context) {
	var req ContributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	out, err := h.svc.Contribute(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id"), req.Amount)
	if err != nil {
		serviceError(c, err, "操作失败")
		return
	}
	SuccessWithMessage(c, "操作成功", out)
}
