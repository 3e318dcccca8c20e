package api

import (
	"financify/middleware"
	"financify/models"
	"financify/service"

	"github.com/gin-gonic/gin"
)

// CategoryHandler 分类管理
type CategoryHandler struct {
	svc *service.CategoryService
}

func NewCategoryHandler(svc *service.CategoryService) *CategoryHandler {
	return &CategoryHandler{svc: svc}
}

type CategoryRequest struct {
	Name  string `json:"name" binding:"required,min=1,max=50"`
	Type  string `json:"type" binding:"required,oneof=income expense"`
	Color string `json:"color" binding:"omitempty,max=20"` // 颜色代码，如 #ef4444
}

func (r CategoryRequest) toModel() *models.Category {
	return &models.Category{Name: r.Name, Type: r.Type, Color: r.Color}
}

// List 分类列表
// @Summary 获取分类列表
// @Description 远端不可用时返回缓存；用户尚无分类时返回内置默认分类。source 标明数据来源
// @Tags 分类
// @Produce json
// @Security BearerAuth
// @Param type query string false "类型 income/expense"
// @Success 200 {object} Response{data=service.CategoryList} "获取成功"
// @Router /api/v1/categories [get]
func (h *CategoryHandler) List(c *gin.Context) {
	out, err := h.svc.List(c.Request.Context(), middleware.GetCurrentUserID(c), c.Query("type"))
	if err != nil {
		serviceError(c, err, "查询失败")
		return
	}
	Success(c, out)
}

// Create 创建分类
// @Summary 创建分类
// @Description 离线时写入暂存在本地，恢复联网后回放
// @Tags 分类
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CategoryRequest true "分类信息"
// @Success 200 {object} Response{data=models.Category} "创建成功"
// @Failure 400 {object} Response "参数错误或分类已存在"
// @Router /api/v1/categories [post]
func (h *CategoryHandler) Create(c *gin.Context) {
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	out, err := h.svc.Create(c.Request.Context(), middleware.GetCurrentUserID(c), req.toModel())
	if err != nil {
		serviceError(c, err, "创建失败")
		return
	}
	SuccessWithMessage(c, "创建成功", out)
}

// Update 更新分类
// @Summary 更新分类
// @Tags 分类
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "分类ID"
// @Param request body CategoryRequest true "分类信息"
// @Success 200 {object} Response{data=models.Category} "更新成功"
// @Router /api/v1/categories/{id} [put]
func (h *CategoryHandler) Update(c *gin.Context) {
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	out, err := h.svc.Update(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id"), req.toModel())
	if err != nil {
		serviceError(c, err, "更新失败")
		return
	}
	SuccessWithMessage(c, "更新成功", out)
}

// Delete 删除分类
// @Summary 删除分类
// @Tags 分类
// @Produce json
// @Security BearerAuth
// @Param id path string true "分类ID"
// @Success 200 {object} Response "删除成功"
// @Router /api/v1/categories/{id} [delete]
func (h *CategoryHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.GetCurrentUserID(c), c.Param("id")); err != nil {
		serviceError(c, err, "删除失败")
		return
	}
	SuccessWithMessage(c, "删除成功", nil)
}
