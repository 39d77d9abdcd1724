package service

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/engine"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
)

const presignedURLExpiry = 15 * time.Minute

// AttachmentService 附件对象存储服务。只负责字节的存取，
// 附件与字段的约束校验在校验引擎里基于描述符完成。
type AttachmentService struct {
	client *minio.Client
	bucket string
}

// NewAttachmentService 创建附件服务
func NewAttachmentService(client *minio.Client, bucket string) *AttachmentService {
	return &AttachmentService{client: client, bucket: bucket}
}

// Enabled 附件存储是否可用
func (s *AttachmentService) Enabled() bool {
	return s.client != nil
}

// Upload 上传附件并返回描述符。对象按 附件ID/原始文件名 存储。
func (s *AttachmentService) Upload(ctx context.Context, fieldID, filename string, size int64, contentType string, reader io.Reader) (*entity.FileDescriptor, error) {
	if s.client == nil {
		return nil, fmt.Errorf("附件存储未配置")
	}

	fd := &entity.FileDescriptor{
		ID:       uuid.New().String(),
		FieldID:  fieldID,
		Filename: filepath.Base(filename),
		Size:     size,
		MimeType: contentType,
	}

	objectName := fd.ID + "/" + fd.Filename
	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("上传附件失败: %w", err)
	}
	return fd, nil
}

// PresignedURL 生成附件的临时下载链接
func (s *AttachmentService) PresignedURL(ctx context.Context, fd *entity.FileDescriptor) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("附件存储未配置")
	}

	objectName := fd.ID + "/" + fd.Filename
	reqParams := make(url.Values)
	reqParams.Set("response-content-disposition", fmt.Sprintf(`attachment; filename="%s"`, fd.Filename))

	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, presignedURLExpiry, reqParams)
	if err != nil {
		return "", fmt.Errorf("生成下载链接失败: %w", err)
	}
	return u.String(), nil
}

// Delete 删除附件对象
func (s *AttachmentService) Delete(ctx context.Context, fd *entity.FileDescriptor) error {
	if s.client == nil {
		return fmt.Errorf("附件存储未配置")
	}
	objectName := fd.ID + "/" + fd.Filename
	if err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除附件失败: %w", err)
	}
	return nil
}

// FindDescriptor 在提交的附件列表中按ID查找描述符
func FindDescriptor(sub *entity.Submission, fileID string) (*entity.FileDescriptor, error) {
	for i := range sub.Files {
		if sub.Files[i].ID == fileID {
			return &sub.Files[i], nil
		}
	}
	return nil, &engine.NotFound{Entity: "file", ID: fileID}
}
