package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/repository"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/service"
)

// SubmissionHandler 提交记录接口
type SubmissionHandler struct {
	svc *service.SubmissionService
}

// NewSubmissionHandler 创建提交处理器
func NewSubmissionHandler(svc *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{svc: svc}
}

// Create 创建提交（draft=true 存草稿）
// POST /api/v1/submissions
func (h *SubmissionHandler) Create(c *gin.Context) {
	var req service.CreateSubmissionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	sub, err := h.svc.Create(c.Request.Context(), GetActor(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, sub)
}

// Get 获取提交详情
// GET /api/v1/submissions/:id
func (h *SubmissionHandler) Get(c *gin.Context) {
	sub, err := h.svc.Get(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, sub)
}

// List 提交列表
// GET /api/v1/submissions?form_id=xxx&status=submitted&stage=review
func (h *SubmissionHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filter := repository.SubmissionListFilter{
		FormID:   c.Query("form_id"),
		Status:   c.Query("status"),
		Stage:    c.Query("stage"),
		Page:     page,
		PageSize: pageSize,
	}
	if filter.FormID == "" {
		BadRequest(c, "form_id 不能为空")
		return
	}

	subs, total, err := h.svc.List(c.Request.Context(), GetActor(c), filter)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, NewListResponse(subs, page, pageSize, total))
}

// UpdateData 修改提交数据（仅草稿/退回状态）
// PUT /api/v1/submissions/:id/data
func (h *SubmissionHandler) UpdateData(c *gin.Context) {
	var req struct {
		Data map[string]interface{} `json:"data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	sub, err := h.svc.UpdateData(c.Request.Context(), GetActor(c), c.Param("id"), req.Data)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, sub)
}

// Submit 提交草稿进入工作流
// POST /api/v1/submissions/:id/submit
func (h *SubmissionHandler) Submit(c *gin.Context) {
	sub, err := h.svc.Submit(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, sub)
}

// ExecuteAction 执行当前阶段的工作流动作
// POST /api/v1/submissions/:id/actions
func (h *SubmissionHandler) ExecuteAction(c *gin.Context) {
	var req struct {
		ActionID string `json:"action_id" binding:"required"`
		Comment  string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	sub, err := h.svc.ExecuteAction(c.Request.Context(), GetActor(c), c.Param("id"), req.ActionID, req.Comment)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, sub)
}

// Delete 软删除提交（include_children=true 时连同嵌套子提交）
// DELETE /api/v1/submissions/:id
func (h *SubmissionHandler) Delete(c *gin.Context) {
	includeChildren := c.Query("include_children") == "true"
	if err := h.svc.Delete(c.Request.Context(), GetActor(c), c.Param("id"), includeChildren); err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"message": "deleted"})
}

// History 读取流转历史
// GET /api/v1/submissions/:id/history
func (h *SubmissionHandler) History(c *gin.Context) {
	entries, err := h.svc.History(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": entries})
}

// Audit 读取字段级审计
// GET /api/v1/submissions/:id/audit
func (h *SubmissionHandler) Audit(c *gin.Context) {
	entries, err := h.svc.Audit(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": entries})
}
