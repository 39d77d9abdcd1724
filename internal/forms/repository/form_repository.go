package repository

import (
	"context"
	"errors"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
	"gorm.io/gorm"
)

// FormRepository 表单定义仓库
type FormRepository struct {
	db *gorm.DB
}

// NewFormRepository 创建表单仓库
func NewFormRepository(db *gorm.DB) *FormRepository {
	return &FormRepository{db: db}
}

// FindByID 按ID查找表单
func (r *FormRepository) FindByID(ctx context.Context, id string) (*entity.Form, error) {
	var form entity.Form
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&form).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &form, nil
}

// FindByCode 按编码查找表单
func (r *FormRepository) FindByCode(ctx context.Context, code string) (*entity.Form, error) {
	var form entity.Form
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&form).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &form, nil
}

// Create 创建表单
func (r *FormRepository) Create(ctx context.Context, form *entity.Form) error {
	return r.db.WithContext(ctx).Create(form).Error
}

// Update 更新表单
func (r *FormRepository) Update(ctx context.Context, form *entity.Form) error {
	return r.db.WithContext(ctx).Save(form).Error
}

// List 表单列表（可按状态/类型筛选）
func (r *FormRepository) List(ctx context.Context, status, formType string, page, pageSize int) ([]entity.Form, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Form{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if formType != "" {
		query = query.Where("type = ?", formType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var forms []entity.Form
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&forms).Error
	return forms, total, err
}

// ListDetailForms 查找以指定表单为主表的明细表单
func (r *FormRepository) ListDetailForms(ctx context.Context, masterFormID string) ([]entity.Form, error) {
	var forms []entity.Form
	err := r.db.WithContext(ctx).
		Where("type = ? AND master_form_id = ?", entity.FormTypeDetail, masterFormID).
		Find(&forms).Error
	return forms, err
}
