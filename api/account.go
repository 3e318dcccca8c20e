package api

import (
	"financify/middleware"
	"financify/models"
	"financify/service"

	"github.com/gin-gonic/gin"
)

// AccountHandler 账户处理器
type AccountHandler struct {
	svc *service.AccountService
}

// NewAccountHandler 创建账户处理器
func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

// AccountRequest 创建/更新账户请求
type AccountRequest struct {
	Name           string  `json:"name" binding:"required,max=100" example:"招商银行"`
	Type           string  `json:"type" example:"bank"`
	Currency       string  `json:"currency" binding:"omitempty,len=3" example:"CNY"`
	InitialBalance float64 `json:"initial_balance" example:"1000"`
	Archived       bool    `json:"archived"`
}

func (r AccountRequest) toModel() *models.Account {
	return &models.Account{
		Name:           r.Name,
		Type:           r.Type,
		Currency:       r.Currency,
		InitialBalance: r.InitialBalance,
		Archived:       r.Archived,
	}
}

// Create 创建账户
// @Summary 创建账户
// @Tags 账户
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AccountRequest true "账户信息"
// @Success 200 {object} Response{data=models.Account} "创建成功"
// @Router /api/v1/accounts [post]
func (h *AccountHandler) Create(c *gin.Context) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	out, err := h.svc.Create(c.Request.Context(), middleware.GetCurrentUserID(c), req.toModel())
	if err != nil {
		serviceError(c, err, "创建账户失败")
		return
	}
	SuccessWithMessage(c, "创建成功", out)
}

// List 账户列表
// @Summary 账户列表
// @Tags 账户
// @Produce json
// @Security BearerAuth
// @Param include_archived query bool false "是否包含已归档账户"
// @Success 200 {object} Response{data=[]models.Account} "获取成功"
// @Router /api/v1/accounts [get]
func (h *AccountHandler) List(c *gin.Context) {
	includeArchived := c.Query("include_archived") == "true"
	Success(c, h.svc.List(c.Request.Context(), middleware.GetCurrentUserID(c), includeArchived))
}

// Update 更新账户
// @Summary 更新账户
// @Tags 账户
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "账户ID"
// @Param request body AccountRequest true "账户信息"
// @Success 200 {object} Response{data=models.Account} "更新成功"
// @Router /api/v1/accounts/{id} [put]
func (h *AccountHandler) Update(c *gin.Context) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	out, err := h.svc.Update(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id"), req.toModel())
	if err != nil {
		serviceError(c, err, "更新账户失败")
		return
	}
	SuccessWithMessage(c, "更新成功", out)
}

// Delete 删除账户
// @Summary 删除账户
// @Tags 账户
// @Produce json
// @Security BearerAuth
// @Param id path string true "账户ID"
// @Success 200 {object} Response "删除成功"
// @Router /api/v1/accounts/{id} [delete]
func (h *AccountHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id")); err != nil {
		serviceError(c, err, "删除账户失败")
		return
	}
	SuccessWithMessage(c, "删除成功", nil)
}

// Balance 单个账户余额
// @Summary 账户余额
// @Tags 账户
// @Produce json
// @Security BearerAuth
// @Param id path string true "账户ID"
// @Success 200 {object} Response{data=service.AccountBalance} "获取成功"
// @Router /api/v1/accounts/{id}/balance [get]
func (h *AccountHandler) Balance(c *gin.Context) {
	out, err := h.svc.Balance(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err, "获取余额失败")
		return
	}
	Success(c, out)
}

// Balances 全部账户余额
// @Summary 全部账户余额
// @Tags 账户
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]service.AccountBalance} "获取成功"
// @Router /api/v1/accounts/balances [get]
func (h *AccountHandler) Balances(c *gin.Context) {
	Success(c, h.svc.Balances(c.Request.Context(), middleware.GetCurrentUserID(c)))
}
