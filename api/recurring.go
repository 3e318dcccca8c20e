package api

import (
	"financify/middleware"
	"financify/models"
	"financify/service"

	"github.com/gin-gonic/gin"
)

// RecurringHandler 周期交易处理器
type RecurringHandler struct {
	svc *service.RecurringService
}

// NewRecurringHandler 创建周期交易处理器
func NewRecurringHandler(svc *service.RecurringService) *RecurringHandler {
	return &RecurringHandler{svc: svc}
}

// RecurringRequest 创建/更新周期交易请求
type RecurringRequest struct {
	Type           string  `json:"type" binding:"required,oneof=income expense" example:"expense"`
	Amount         float64 `json:"amount" binding:"required,gt=0" example:"3000"`
	Category       string  `json:"category" binding:"required" example:"房租"`
	Description    string  `json:"description" example:"每月房租"`
	AccountID      string  `json:"account_id"`
	Frequency      string  `json:"frequency" binding:"required,oneof=daily weekly biweekly monthly quarterly yearly" example:"monthly"`
	StartDate      string  `json:"start_date" binding:"required" example:"2024-01-15"`
	EndDate        string  `json:"end_date" example:"2024-12-31"`
	MaxOccurrences int     `json:"max_occurrences" binding:"omitempty,gte=0" example:"0"`
	Active         *bool   `json:"active"`
}

func (r RecurringRequest) toModel() (*models.RecurringTransaction, error) {
	start, err := parseDate(r.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseOptionalDate(r.EndDate)
	if err != nil {
		return nil, err
	}
	m := &models.RecurringTransaction{
		Type:           r.Type,
		Amount:         r.Amount,
		Category:       r.Category,
		Description:    r.Description,
		AccountID:      r.AccountID,
		Frequency:      r.Frequency,
		StartDate:      start,
		EndDate:        end,
		MaxOccurrences: r.MaxOccurrences,
		Active:         true,
	}
	if r.Active != nil {
		m.Active = *r.Active
	}
	return m, nil
}

// Create 创建周期交易
// @Summary 创建周期交易
// @Tags 周期交易
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RecurringRequest true "周期交易信息"
// @Success 200 {object} Response{data=models.RecurringTransaction} "创建成功"
// @Failure 400 {object} Response "请求参数错误"
// @Router /api/v1/recurring [post]
func (h *RecurringHandler) Create(c *gin.Context) {
	var req RecurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	r, err := req.toModel()
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	out, err := h.svc.Create(c.Request.Context(), middleware.GetCurrentUserID(c), r)
	if err != nil {
		serviceError(c, err, "创建周期交易失败")
		return
	}
	SuccessWithMessage(c, "创建成功", out)
}

// List 周期交易列表
// @Summary 周期交易列表
// @Tags 周期交易
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.RecurringTransaction} "获取成功"
// @Router /api/v1/recurring [get]
func (h *RecurringHandler) List(c *gin.Context) {
	Success(c, h.svc.List(c.Request.Context(), middleware.GetCurrentUserID(c)))
}

// Get 周期交易详情
// @Summary 周期交易详情
// @Tags 周期交易
// @Produce json
// @Security BearerAuth
// @Param id path string true "周期交易ID"
// @Success 200 {object} Response{data=models.RecurringTransaction} "获取成功"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/recurring/{id} [get]
func (h *RecurringHandler) Get(c *gin.Context) {
	out, err := h.svc.Get(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err, "获取周期交易失败")
		return
	}
	Success(c, out)
}

// Update 更新周期交易
// @Summary 更新周期交易
// @Tags 周期交易
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "周期交易ID"
// @Param request body RecurringRequest true "周期交易信息"
// @Success 200 {object} Response{data=models.RecurringTransaction} "更新成功"
// @Router /api/v1/recurring/{id} [put]
func (h *RecurringHandler) Update(c *gin.Context) {
	var req RecurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	r, err := req.toModel()
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	out, err := h.svc.Update(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id"), r)
	if err != nil {
		serviceError(c, err, "更新周期交易失败")
		return
	}
	SuccessWithMessage(c, "更新成功", out)
}

// Delete 删除周期交易
// @Summary 删除周期交易
// @Tags 周期交易
// @Produce json
// @Security BearerAuth
// @Param id path string true "周期交易ID"
// @Success 200 {object} Response "删除成功"
// @Router /api/v1/recurring/{id} [delete]
func (h *RecurringHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id")); err != nil {
		serviceError(c, err, "删除周期交易失败")
		return
	}
	SuccessWithMessage(c, "删除成功", nil)
}

// Generate 生成单个周期交易的到期交易
// @Summary 生成到期交易
// @Description 为发生时间不晚于当前时间的每一期生成交易
// @Tags 周期交易
// @Produce json
// @Security BearerAuth
// @Param id path string true "周期交易ID"
// @Success 200 {object} Response{data=[]models.Transaction} "生成成功"
// @Router /api/v1/recurring/{id}/generate [post]
func (h *RecurringHandler) Generate(c *gin.Context) {
	out, err := h.svc.Generate(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id"), timeNow())
	if err != nil {
		serviceError(c, err, "生成周期交易失败")
		return
	}
	SuccessWithMessage(c, "生成成功", out)
}

// GenerateDue 生成全部到期交易
// @Summary 生成全部到期交易
// @Tags 周期交易
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.Transaction} "生成成功"
// @Router /api/v1/recurring/generate [post]
func (h *RecurringHandler) GenerateDue(c *gin.Context) {
	out, err := h.svc.GenerateDue(c.Request.Context(), middleware.GetCurrentUserID(c), timeNow())
	if err != nil {
		serviceError(c, err, "生成周期交易失败")
		return
	}
	SuccessWithMessage(c, "生成成功", out)
}
