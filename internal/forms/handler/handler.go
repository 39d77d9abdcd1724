package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/engine"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/service"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/sse"
)

// Handlers 处理器集合
type Handlers struct {
	Form       *FormHandler
	Workflow   *WorkflowHandler
	Submission *SubmissionHandler
	Upload     *UploadHandler
	User       *UserHandler
	SSE        *SSEHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, hub *sse.Hub) *Handlers {
	return &Handlers{
		Form:       NewFormHandler(svc.Form),
		Workflow:   NewWorkflowHandler(svc.Workflow),
		Submission: NewSubmissionHandler(svc.Submission),
		Upload:     NewUploadHandler(svc.Attachment, svc.Submission),
		User:       NewUserHandler(svc.User),
		SSE:        NewSSEHandler(hub),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse 列表响应结构
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// Unauthorized 未授权响应
func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

// Forbidden 禁止访问响应
func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// HandleError 按错误类型映射HTTP状态：校验 422、越权 403、
// 不存在 404、版本冲突 409，配置缺陷与序号分配失败一律 500。
func HandleError(c *gin.Context, err error) {
	var (
		validation *engine.ValidationError
		denied     *engine.PermissionDenied
		notFound   *engine.NotFound
		conflict   *engine.StateConflict
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(422, Response{
			Code:    42200,
			Message: validation.Error(),
			Data:    gin.H{"field_errors": validation.FieldErrors},
		})
	case errors.As(err, &denied):
		Forbidden(c, denied.Error())
	case errors.As(err, &notFound):
		NotFound(c, notFound.Error())
	case errors.As(err, &conflict):
		c.JSON(409, Response{
			Code:    40900,
			Message: conflict.Error(),
			Data: gin.H{
				"expected_version": conflict.ExpectedVersion,
				"actual_version":   conflict.ActualVersion,
			},
		})
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetActor 从上下文组装权限解析器需要的操作者身份
func GetActor(c *gin.Context) engine.Actor {
	return engine.Actor{
		ID:           GetUserID(c),
		Role:         c.GetString("role"),
		Organization: c.GetString("organization"),
	}
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

// NewListResponse 组装分页列表响应
func NewListResponse(items interface{}, page, pageSize int, total int64) *ListResponse {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	return &ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	}
}

// ============================================================
// User Handler
// ============================================================

type UserHandler struct {
	svc *service.UserService
}

func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.svc.ListAll(c.Request.Context())
	if err != nil {
		InternalError(c, "获取用户列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": users})
}

func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "获取用户失败: "+err.Error())
		return
	}
	if user == nil {
		NotFound(c, "用户不存在")
		return
	}
	Success(c, user)
}
