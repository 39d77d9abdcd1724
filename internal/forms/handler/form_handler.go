package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/service"
)

// FormHandler 表单定义接口
type FormHandler struct {
	svc *service.FormService
}

// NewFormHandler 创建表单处理器
func NewFormHandler(svc *service.FormService) *FormHandler {
	return &FormHandler{svc: svc}
}

// Create 创建表单
// POST /api/v1/forms
func (h *FormHandler) Create(c *gin.Context) {
	var req service.CreateFormReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	form, err := h.svc.Create(c.Request.Context(), GetActor(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, form)
}

// Get 获取表单详情
// GET /api/v1/forms/:id
func (h *FormHandler) Get(c *gin.Context) {
	form, err := h.svc.Get(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, form)
}

// List 表单列表
// GET /api/v1/forms?status=published&type=standard
func (h *FormHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	forms, total, err := h.svc.List(c.Request.Context(), GetActor(c), c.Query("status"), c.Query("type"), page, pageSize)
	if err != nil {
		InternalError(c, "获取表单列表失败: "+err.Error())
		return
	}
	Success(c, NewListResponse(forms, page, pageSize, total))
}

// Update 更新表单
// PUT /api/v1/forms/:id
func (h *FormHandler) Update(c *gin.Context) {
	var req service.UpdateFormReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	form, err := h.svc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, form)
}

// SetStatus 发布/归档表单
// POST /api/v1/forms/:id/status
func (h *FormHandler) SetStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	form, err := h.svc.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, form)
}

// FieldStates 按数据快照求值字段的显示/必填/禁用状态
// POST /api/v1/forms/:id/field-states
func (h *FormHandler) FieldStates(c *gin.Context) {
	var req struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	form, err := h.svc.Get(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, h.svc.EvaluateFieldStates(form, req.Data))
}
