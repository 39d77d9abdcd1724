package repository

import (
	"context"
	"errors"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
	"gorm.io/gorm"
)

// WorkflowRepository 工作流定义仓库
type WorkflowRepository struct {
	db *gorm.DB
}

// NewWorkflowRepository 创建工作流仓库
func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// FindByID 按ID查找工作流
func (r *WorkflowRepository) FindByID(ctx context.Context, id string) (*entity.Workflow, error) {
	var wf entity.Workflow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&wf).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wf, nil
}

// Create 创建工作流
func (r *WorkflowRepository) Create(ctx context.Context, wf *entity.Workflow) error {
	return r.db.WithContext(ctx).Create(wf).Error
}

// Update 更新工作流
func (r *WorkflowRepository) Update(ctx context.Context, wf *entity.Workflow) error {
	return r.db.WithContext(ctx).Save(wf).Error
}

// List 工作流分页列表
func (r *WorkflowRepository) List(ctx context.Context, page, pageSize int) ([]entity.Workflow, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&entity.Workflow{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var flows []entity.Workflow
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&flows).Error
	return flows, total, err
}
