package api

import (
	"financify/middleware"
	"financify/models"
	"financify/service"

	"github.com/gin-gonic/gin"
)

// TransactionHandler 交易处理器
type TransactionHandler struct {
	svc *service.TransactionService
}

// NewTransactionHandler 创建交易处理器
func NewTransactionHandler(svc *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{svc: svc}
}

// TransactionRequest 创建/更新交易请求
type TransactionRequest struct {
	Type        string  `json:"type" binding:"required,oneof=income expense" example:"expense"`
	Amount      float64 `json:"amount" binding:"required,gt=0" example:"99.99"`
	Category    string  `json:"category" binding:"required" example:"餐饮"`
	Description string  `json:"description" example:"午餐"`
	Date        string  `json:"date" binding:"required" example:"2024-01-15"`
	AccountID   string  `json:"account_id" example:""`
}

func (r TransactionRequest) toModel() (*models.Transaction, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return nil, err
	}
	return &models.Transaction{
		Type:        r.Type,
		Amount:      r.Amount,
		Category:    r.Category,
		Description: r.Description,
		Date:        date,
		AccountID:   r.AccountID,
	}, nil
}

// TransactionListRequest 交易列表请求
type TransactionListRequest struct {
	Page      int    `form:"page" example:"1"`
	PageSize  int    `form:"page_size" example:"10"`
	Type      string `form:"type" example:"expense"`
	Category  string `form:"category" example:"餐饮"`
	AccountID string `form:"account_id"`
	StartTime string `form:"start_time" example:"2024-01-01"`
	EndTime   string `form:"end_time" example:"2024-12-31"`
}

// Create 创建交易
// @Summary 创建交易
// @Description 创建一条收入或支出。离线时保存在本地并进入同步队列，返回临时 ID
// @Tags 交易
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TransactionRequest true "交易信息"
// @Success 200 {object} Response{data=models.Transaction} "创建成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/transactions [post]
func (h *TransactionHandler) Create(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	t, err := req.toModel()
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	out, err := h.svc.Create(c.Request.Context(), userID, t)
	if err != nil {
		serviceError(c, err, "创建交易失败")
		return
	}
	SuccessWithMessage(c, "创建成功", out)
}

// List 获取交易列表
// @Summary 获取交易列表
// @Description 获取当前用户的交易，按日期倒序，支持分页和筛选
// @Tags 交易
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param type query string false "类型 income/expense"
// @Param category query string false "分类筛选"
// @Param account_id query string false "账户筛选"
// @Param start_time query string false "开始时间 (2024-01-01)"
// @Param end_time query string false "结束时间 (2024-12-31)"
// @Success 200 {object} Response{data=PageResponse{list=[]models.Transaction}} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/transactions [get]
func (h *TransactionHandler) List(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req TransactionListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	start, end, err := parseRange(req.StartTime, req.EndTime)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	items := h.svc.List(c.Request.Context(), userID, service.TransactionFilter{
		Type:      req.Type,
		Category:  req.Category,
		AccountID: req.AccountID,
		Start:     start,
		End:       end,
	})
	Success(c, paginate(items, req.Page, req.PageSize))
}

// Get 获取交易详情
// @Summary 获取交易详情
// @Tags 交易
// @Produce json
// @Security BearerAuth
// @Param id path string true "交易ID"
// @Success 200 {object} Response{data=models.Transaction} "获取成功"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/transactions/{id} [get]
func (h *TransactionHandler) Get(c *gin.Context) {
	out, err := h.svc.Get(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err, "获取交易失败")
		return
	}
	Success(c, out)
}

// Update 更新交易
// @Summary 更新交易
// @Tags 交易
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "交易ID"
// @Param request body TransactionRequest true "交易信息"
// @Success 200 {object} Response{data=models.Transaction} "更新成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/transactions/{id} [put]
func (h *TransactionHandler) Update(c *gin.Context) {
	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	t, err := req.toModel()
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	out, err := h.svc.Update(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id"), t)
	if err != nil {
		serviceError(c, err, "更新交易失败")
		return
	}
	SuccessWithMessage(c, "更新成功", out)
}

// Delete 删除交易
// @Summary 删除交易
// @Tags 交易
// @Produce json
// @Security BearerAuth
// @Param id path string true "交易ID"
// @Success 200 {object} Response "删除成功"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/transactions/{id} [delete]
func (h *TransactionHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id")); err != nil {
		serviceError(c, err, "删除交易失败")
		return
	}
	SuccessWithMessage(c, "删除成功", nil)
}
