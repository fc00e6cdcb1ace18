package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"autoreply/backend/internal/domain"
	"autoreply/backend/internal/service"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	drafts  *service.DraftService
	trigger func() // 请求立即执行一轮收件
}

// sendRequest 发送草稿的请求体；body 非空表示编辑后发送
type sendRequest struct {
	Body string `json:"body"`
}

// listDrafts 按状态列出草稿
//
// GET /api/v1/drafts?status=pending&limit=50
func (h *Handler) listDrafts(c *gin.Context) {
	status := domain.DraftStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		BadRequest(c, "无效的状态过滤条件")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			BadRequest(c, MsgInvalidRequest)
			return
		}
		limit = n
	}

	drafts, err := h.drafts.List(c.Request.Context(), status, limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, drafts)
}

// getDraft 获取单条草稿
//
// GET /api/v1/drafts/:id
func (h *Handler) getDraft(c *gin.Context) {
	draft, err := h.drafts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, draft)
}

// updateDraft 保存编辑后的正文但不发送
//
// PUT /api/v1/drafts/:id
func (h *Handler) updateDraft(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Body == "" {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	draft, err := h.drafts.UpdateBody(c.Request.Context(), c.Param("id"), req.Body)
	if err != nil {
		RespondError(c, err)
		return
	}
	SuccessWithMsg(c, "已保存", draft)
}

// sendDraft 发送草稿，请求体可携带编辑后的正文
//
// POST /api/v1/drafts/:id/send
func (h *Handler) sendDraft(c *gin.Context) {
	var req sendRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
	}

	draft, err := h.drafts.Send(c.Request.Context(), c.Param("id"), req.Body)
	if err != nil {
		RespondError(c, err)
		return
	}
	SuccessWithMsg(c, "已发送", draft)
}

// rejectDraft 拒绝草稿并删除远端副本
//
// POST /api/v1/drafts/:id/reject
func (h *Handler) rejectDraft(c *gin.Context) {
	draft, err := h.drafts.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	SuccessWithMsg(c, "已拒绝", draft)
}

// triggerIntake 请求立即执行一轮收件，不等待执行结果
//
// POST /api/v1/intake/trigger
func (h *Handler) triggerIntake(c *gin.Context) {
	h.trigger()
	SuccessWithMsg(c, "已触发收件", nil)
}
