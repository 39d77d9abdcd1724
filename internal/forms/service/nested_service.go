package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/engine"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/repository"
)

// NestedService 嵌套/主从提交协调器。子提交通过 parent_submission_id
// 关联到父提交，主从表单的明细提交额外通过 master_submission_id 关联到
// 主提交；级联删除只沿主从链传播。
type NestedService struct {
	db    *gorm.DB
	repos *repository.Repositories
}

// NewNestedService 创建嵌套提交协调服务
func NewNestedService(db *gorm.DB, repos *repository.Repositories) *NestedService {
	return &NestedService{db: db, repos: repos}
}

// ChildInput 单条子提交的暂存数据
type ChildInput struct {
	FieldID string                 `json:"field_id"`
	Data    map[string]interface{} `json:"data"`
}

// CreateChildren 在父提交的事务内为嵌套字段创建子提交。
// 子提交继承父提交的提交人、组织和状态；明细表单的子提交
// 同时挂到主提交链上。
func (s *NestedService) CreateChildren(ctx context.Context, tx *gorm.DB, parent *entity.Submission, parentForm *entity.Form, children []ChildInput) error {
	now := time.Now()
	for _, child := range children {
		field := parentForm.FieldByID(child.FieldID)
		if field == nil || field.NestedFormID == "" {
			return engine.NewValidationError(child.FieldID, "field does not accept nested submissions")
		}

		nestedForm, err := s.repos.Form.FindByID(ctx, field.NestedFormID)
		if err != nil {
			return fmt.Errorf("查询嵌套表单失败: %w", err)
		}
		if nestedForm == nil {
			return &engine.NotFound{Entity: "form", ID: field.NestedFormID}
		}

		sub := &entity.Submission{
			ID:                 uuid.New().String(),
			FormID:             nestedForm.ID,
			FormVersion:        nestedForm.Version,
			Data:               child.Data,
			Status:             parent.Status,
			ParentSubmissionID: &parent.ID,
			ParentFieldID:      child.FieldID,
			SubmittedBy:        parent.SubmittedBy,
			Organization:       parent.Organization,
			Version:            1,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if nestedForm.Type == entity.FormTypeDetail && nestedForm.MasterFormID == parentForm.ID {
			sub.MasterSubmissionID = &parent.ID
		}

		if err := tx.Create(sub).Error; err != nil {
			return fmt.Errorf("创建子提交失败: %w", err)
		}
	}
	return nil
}

// ChildCounts 按字段统计父提交下的子提交数量
func (s *NestedService) ChildCounts(ctx context.Context, parentID string) (map[string]int, error) {
	return s.repos.Submission.CountChildrenByField(ctx, parentID)
}

// ListChildren 列出父提交的子提交
func (s *NestedService) ListChildren(ctx context.Context, parentID string) ([]entity.Submission, error) {
	return s.repos.Submission.FindChildren(ctx, parentID)
}

// CascadeSoftDelete 在事务内软删除主提交的全部明细提交。
// 仅当表单是主从结构的主表且开启了级联删除时由上层调用；
// 嵌套子提交不在级联范围内，需调用方显式指定。
func (s *NestedService) CascadeSoftDelete(ctx context.Context, tx *gorm.DB, masterID, deletedBy string, now time.Time) (int, error) {
	details, err := s.repos.Submission.FindByMaster(ctx, masterID)
	if err != nil {
		return 0, fmt.Errorf("查询明细提交失败: %w", err)
	}
	for i := range details {
		if err := markDeleted(tx, &details[i], deletedBy, now); err != nil {
			return i, err
		}
	}
	return len(details), nil
}

// SoftDeleteChildren 在事务内软删除父提交的嵌套子提交（显式请求时）
func (s *NestedService) SoftDeleteChildren(ctx context.Context, tx *gorm.DB, parentID, deletedBy string, now time.Time) (int, error) {
	children, err := s.repos.Submission.FindChildren(ctx, parentID)
	if err != nil {
		return 0, fmt.Errorf("查询子提交失败: %w", err)
	}
	for i := range children {
		if err := markDeleted(tx, &children[i], deletedBy, now); err != nil {
			return i, err
		}
	}
	return len(children), nil
}

func markDeleted(tx *gorm.DB, sub *entity.Submission, deletedBy string, now time.Time) error {
	sub.IsDeleted = true
	sub.DeletedAt = &now
	sub.DeletedBy = deletedBy
	sub.UpdatedAt = now
	ok, err := repository.UpdateVersioned(tx, sub)
	if err != nil {
		return fmt.Errorf("删除提交失败: %w", err)
	}
	if !ok {
		var actual int
		tx.Model(&entity.Submission{}).Select("version").Where("id = ?", sub.ID).Scan(&actual)
		return &engine.StateConflict{ExpectedVersion: sub.Version, ActualVersion: actual}
	}
	return nil
}
