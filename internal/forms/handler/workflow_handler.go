package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/service"
)

// WorkflowHandler 工作流定义接口
type WorkflowHandler struct {
	svc *service.WorkflowService
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(svc *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{svc: svc}
}

// Create 创建工作流
// POST /api/v1/workflows
func (h *WorkflowHandler) Create(c *gin.Context) {
	var req service.WorkflowReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	wf, err := h.svc.Create(c.Request.Context(), GetActor(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, wf)
}

// Get 获取工作流详情
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) Get(c *gin.Context) {
	wf, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, wf)
}

// List 工作流列表
// GET /api/v1/workflows
func (h *WorkflowHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	wfs, total, err := h.svc.List(c.Request.Context(), page, pageSize)
	if err != nil {
		InternalError(c, "获取工作流列表失败: "+err.Error())
		return
	}
	Success(c, NewListResponse(wfs, page, pageSize, total))
}

// Update 更新工作流
// PUT /api/v1/workflows/:id
func (h *WorkflowHandler) Update(c *gin.Context) {
	var req service.WorkflowReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "无效的请求参数: "+err.Error())
		return
	}

	wf, err := h.svc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, wf)
}
