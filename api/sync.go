package api

import (
	"context"

	"financify/middleware"
	"financify/queue"
	"financify/resilient"
	"financify/service"

	"github.com/gin-gonic/gin"
)

// Connectivity 在线状态控制
type Connectivity interface {
	Online() bool
	Forced() bool
	SetOnline(online bool)
	Resume()
	Check(ctx context.Context) bool
}

// SyncHandler 离线队列、暂存写入与连通性管理
type SyncHandler struct {
	queue   *queue.Queue
	wrapper *resilient.Wrapper
	conn    Connectivity
	reports *service.ReportService
}

// NewSyncHandler 创建同步处理器
func NewSyncHandler(q *queue.Queue, w *resilient.Wrapper, conn Connectivity, reports *service.ReportService) *SyncHandler {
	return &SyncHandler{queue: q, wrapper: w, conn: conn, reports: reports}
}

// Online 当前是否在线
func (h *SyncHandler) Online() bool {
	return h.conn.Online()
}

// SyncResult 一次手动同步的结果
type SyncResult struct {
	Queue         queue.Result           `json:"queue"`
	PendingWrites resilient.ReplayResult `json:"pending_writes"`
}

// ConnectivityStatus 连通性状态
type ConnectivityStatus struct {
	Online bool `json:"online"`
	Forced bool `json:"forced"`
}

// ConnectivityRequest 设置连通性请求，online 为空表示恢复自动探测
type ConnectivityRequest struct {
	Online *bool `json:"online"`
}

// Status 当前用户的同步状态
// @Summary 同步状态
// @Tags 同步
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=service.SyncStatus} "获取成功"
// @Router /api/v1/sync/status [get]
func (h *SyncHandler) Status(c *gin.Context) {
	Success(c, h.reports.SyncStatus(middleware.GetCurrentUserID(c)))
}

// Operations 当前用户的队列操作列表
// @Summary 队列操作列表
// @Tags 同步
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending/failed，为空返回全部"
// @Success 200 {object} Response{data=[]queue.Operation} "获取成功"
// @Router /api/v1/sync/operations [get]
func (h *SyncHandler) Operations(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	switch status := queue.Status(c.Query("status")); status {
	case queue.StatusPending, queue.StatusFailed, "":
		Success(c, h.queue.OperationsOf(userID, status))
	default:
		BadRequest(c, "不支持的状态筛选")
	}
}

// Process 立即同步
// @Summary 立即同步
// @Description 依次处理离线队列和暂存写入；离线时不做任何事
// @Tags 同步
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=SyncResult} "同步完成"
// @Router /api/v1/sync/process [post]
func (h *SyncHandler) Process(c *gin.Context) {
	ctx := c.Request.Context()
	qr, err := h.queue.ProcessQueue(ctx)
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "同步失败"))
		return
	}
	var pr resilient.ReplayResult
	if !qr.Offline {
		if pr, err = h.wrapper.ReplayPending(ctx); err != nil {
			InternalError(c, SafeErrorMessage(err, "回放暂存写入失败"))
			return
		}
	}
	Success(c, SyncResult{Queue: qr, PendingWrites: pr})
}

// Retry 重试失败操作
// @Summary 重试失败操作
// @Tags 同步
// @Produce json
// @Security BearerAuth
// @Param id path string true "操作ID"
// @Success 200 {object} Response "已重新加入队列"
// @Failure 400 {object} Response "操作未失败"
// @Failure 404 {object} Response "操作不存在"
// @Router /api/v1/sync/operations/{id}/retry [post]
func (h *SyncHandler) Retry(c *gin.Context) {
	if err := h.queue.RetryOwned(middleware.GetCurrentUserID(c), c.Param("id")); err != nil {
		serviceError(c, err, "重试失败")
		return
	}
	SuccessWithMessage(c, "已重新加入队列", nil)
}

// Remove 删除队列操作
// @Summary 删除队列操作
// @Description 放弃一条操作，对应的本地修改不会再同步到远端
// @Tags 同步
// @Produce json
// @Security BearerAuth
// @Param id path string true "操作ID"
// @Success 200 {object} Response "删除成功"
// @Failure 404 {object} Response "操作不存在"
// @Router /api/v1/sync/operations/{id} [delete]
func (h *SyncHandler) Remove(c *gin.Context) {
	if err := h.queue.RemoveOwned(middleware.GetCurrentUserID(c), c.Param("id")); err != nil {
		serviceError(c, err, "删除失败")
		return
	}
	SuccessWithMessage(c, "删除成功", nil)
}

// ClearCompleted 清理已完成操作
// @Summary 清理已完成操作
// @Tags 同步
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=int} "清理数量"
// @Router /api/v1/sync/completed [delete]
func (h *SyncHandler) ClearCompleted(c *gin.Context) {
	n, err := h.queue.ClearCompletedOf(middleware.GetCurrentUserID(c))
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "清理失败"))
		return
	}
	Success(c, n)
}

// PendingWrites 暂存写入列表
// @Summary 暂存写入列表
// @Tags 同步
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]resilient.PendingWrite} "获取成功"
// @Router /api/v1/sync/pending-writes [get]
func (h *SyncHandler) PendingWrites(c *gin.Context) {
	writes, err := h.wrapper.PendingWritesOf(middleware.GetCurrentUserID(c))
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}
	out := make([]gin.H, 0, len(writes))
	for _, p := range writes {
		out = append(out, gin.H{
			"key":        p.Key,
			"op":         p.Op,
			"table":      p.Table,
			"filters":    p.Filters,
			"row":        p.Row,
			"created_at": p.CreatedAt,
			"failed":     p.Failed,
			"last_error": p.LastError,
		})
	}
	Success(c, out)
}

// DiscardPendingWrite 丢弃暂存写入
// @Summary 丢弃暂存写入
// @Tags 同步
// @Produce json
// @Security BearerAuth
// @Param key path string true "暂存键"
// @Success 200 {object} Response "已丢弃"
// @Failure 404 {object} Response "暂存写入不存在"
// @Router /api/v1/sync/pending-writes/{key} [delete]
func (h *SyncHandler) DiscardPendingWrite(c *gin.Context) {
	if err := h.wrapper.DiscardPendingOf(middleware.GetCurrentUserID(c), c.Param("key")); err != nil {
		serviceError(c, err, "丢弃失败")
		return
	}
	SuccessWithMessage(c, "已丢弃", nil)
}

// GetConnectivity 连通性状态
// @Summary 连通性状态
// @Tags 同步
// @Produce json
// @Success 200 {object} Response{data=ConnectivityStatus} "获取成功"
// @Router /api/v1/connectivity [get]
func (h *SyncHandler) GetConnectivity(c *gin.Context) {
	Success(c, ConnectivityStatus{Online: h.conn.Online(), Forced: h.conn.Forced()})
}

// SetConnectivity 手动设置在线状态，仅在 debug 模式下注册
// @Summary 设置在线状态
// @Description 传 online 固定为在线或离线并暂停自动探测；不传则恢复自动探测并立即探测一次
// @Tags 同步
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ConnectivityRequest true "状态"
// @Success 200 {object} Response{data=ConnectivityStatus} "设置成功"
// @Router /api/v1/connectivity [put]
func (h *SyncHandler) SetConnectivity(c *gin.Context) {
	var req ConnectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}
	if req.Online != nil {
		h.conn.SetOnline(*req.Online)
	} else {
		h.conn.Resume()
		h.conn.Check(c.Request.Context())
	}
	Success(c, ConnectivityStatus{Online: h.conn.Online(), Forced: h.conn.Forced()})
}
