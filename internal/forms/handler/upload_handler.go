package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/service"
)

// UploadHandler 附件上传/下载接口
type UploadHandler struct {
	attachments *service.AttachmentService
	submissions *service.SubmissionService
}

// NewUploadHandler 创建附件处理器
func NewUploadHandler(attachments *service.AttachmentService, submissions *service.SubmissionService) *UploadHandler {
	return &UploadHandler{attachments: attachments, submissions: submissions}
}

// Upload 上传附件，返回描述符供提交数据引用
// POST /api/v1/uploads (multipart: file, field_id)
func (h *UploadHandler) Upload(c *gin.Context) {
	if !h.attachments.Enabled() {
		InternalError(c, "附件存储未配置")
		return
	}

	fieldID := c.PostForm("field_id")
	if fieldID == "" {
		BadRequest(c, "field_id 不能为空")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "缺少上传文件: "+err.Error())
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		InternalError(c, "读取上传文件失败: "+err.Error())
		return
	}
	defer f.Close()

	fd, err := h.attachments.Upload(
		c.Request.Context(),
		fieldID,
		fileHeader.Filename,
		fileHeader.Size,
		fileHeader.Header.Get("Content-Type"),
		f,
	)
	if err != nil {
		InternalError(c, "上传附件失败: "+err.Error())
		return
	}
	Created(c, fd)
}

// Download 生成附件的临时下载链接
// GET /api/v1/submissions/:id/files/:fileId
func (h *UploadHandler) Download(c *gin.Context) {
	if !h.attachments.Enabled() {
		InternalError(c, "附件存储未配置")
		return
	}

	sub, err := h.submissions.Get(c.Request.Context(), GetActor(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}

	fd, err := service.FindDescriptor(sub, c.Param("fileId"))
	if err != nil {
		HandleError(c, err)
		return
	}

	url, err := h.attachments.PresignedURL(c.Request.Context(), fd)
	if err != nil {
		InternalError(c, "生成下载链接失败: "+err.Error())
		return
	}
	Success(c, gin.H{"url": url})
}
