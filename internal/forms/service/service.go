package service

import (
	"context"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ramabhadrarao/formbuilder3/internal/config"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/repository"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/sequence"
)

// Services 服务集合
type Services struct {
	Form       *FormService
	Workflow   *WorkflowService
	Submission *SubmissionService
	Nested     *NestedService
	Attachment *AttachmentService
	User       *UserService
}

// NewServices 创建服务集合
func NewServices(db *gorm.DB, repos *repository.Repositories, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Services {
	// 初始化MinIO客户端（未配置时附件功能降级为不可用）
	var minioClient *minio.Client
	if cfg.MinIO.Endpoint != "" {
		var err error
		minioClient, err = minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			logger.Warn("MinIO client init failed, attachments disabled", zap.Error(err))
			minioClient = nil
		}
	}

	allocator := sequence.NewAllocator(repos.Counter, cfg.Sequence.Prefix)
	nested := NewNestedService(db, repos)
	workflowSvc := NewWorkflowService(repos.Workflow)

	return &Services{
		Form:       NewFormService(repos.Form, rdb),
		Workflow:   workflowSvc,
		Submission: NewSubmissionService(db, repos, allocator, nested, logger),
		Nested:     nested,
		Attachment: NewAttachmentService(minioClient, cfg.MinIO.Bucket),
		User:       NewUserService(repos.User),
	}
}

// UserService 用户服务
type UserService struct {
	repo *repository.UserRepository
}

// NewUserService 创建用户服务
func NewUserService(repo *repository.UserRepository) *UserService {
	return &UserService{repo: repo}
}

// ListAll 获取所有活跃用户
func (s *UserService) ListAll(ctx context.Context) ([]entity.User, error) {
	return s.repo.ListActive(ctx)
}

// Get 获取用户详情
func (s *UserService) Get(ctx context.Context, id string) (*entity.User, error) {
	return s.repo.FindByID(ctx, id)
}
