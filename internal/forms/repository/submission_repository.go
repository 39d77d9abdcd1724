package repository

import (
	"context"
	"errors"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
	"gorm.io/gorm"
)

// SubmissionListFilter 提交列表筛选条件。OwnerID 非空时表示权限解析器
// 返回的"仅本人数据"谓词，必须下推到查询过滤。
type SubmissionListFilter struct {
	FormID   string
	Status   string
	Stage    string
	OwnerID  string
	Page     int
	PageSize int
}

// SubmissionRepository 提交记录仓库。历史与审计为追加写表：
// 仓库只暴露 Append/List，不提供任何就地修改。
type SubmissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository 创建提交仓库
func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// FindByID 按ID查找提交（软删除的记录不返回）
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*entity.Submission, error) {
	var sub entity.Submission
	err := r.db.WithContext(ctx).Where("id = ? AND is_deleted = false", id).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// Create 创建提交
func (r *SubmissionRepository) Create(ctx context.Context, sub *entity.Submission) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

// UpdateVersioned 版本门控写入：仅当数据库内版本与期望一致时生效，
// 生效后版本号 +1。返回 false 表示版本不匹配（并发丢失更新被检测到）。
func UpdateVersioned(tx *gorm.DB, sub *entity.Submission) (bool, error) {
	expected := sub.Version
	sub.Version = expected + 1
	res := tx.Model(&entity.Submission{}).
		Where("id = ? AND version = ?", sub.ID, expected).
		Select("*").Omit("id", "created_at").
		Updates(sub)
	if res.Error != nil {
		sub.Version = expected
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		sub.Version = expected
		return false, nil
	}
	return true, nil
}

// CountByFormAndUser 统计用户在表单下的有效提交数（配额/单次提交限制用）
func (r *SubmissionRepository) CountByFormAndUser(ctx context.Context, formID, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Submission{}).
		Where("form_id = ? AND submitted_by = ? AND is_deleted = false", formID, userID).
		Count(&count).Error
	return count, err
}

// List 提交列表，OwnerID 谓词在此下推为 submitted_by 过滤
func (r *SubmissionRepository) List(ctx context.Context, f SubmissionListFilter) ([]entity.Submission, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Submission{}).Where("is_deleted = false")
	if f.FormID != "" {
		query = query.Where("form_id = ?", f.FormID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Stage != "" {
		query = query.Where("current_stage = ?", f.Stage)
	}
	if f.OwnerID != "" {
		query = query.Where("submitted_by = ?", f.OwnerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var subs []entity.Submission
	err := query.Order("created_at DESC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&subs).Error
	return subs, total, err
}

// FindByMaster 查找主从关系下的明细提交
func (r *SubmissionRepository) FindByMaster(ctx context.Context, masterID string) ([]entity.Submission, error) {
	var subs []entity.Submission
	err := r.db.WithContext(ctx).
		Where("master_submission_id = ? AND is_deleted = false", masterID).
		Find(&subs).Error
	return subs, err
}

// FindChildren 查找嵌套/明细字段创建的子提交
func (r *SubmissionRepository) FindChildren(ctx context.Context, parentID string) ([]entity.Submission, error) {
	var subs []entity.Submission
	err := r.db.WithContext(ctx).
		Where("parent_submission_id = ? AND is_deleted = false", parentID).
		Find(&subs).Error
	return subs, err
}

// CountChildrenByField 按字段统计子提交数量（嵌套字段 min/max 校验用）
func (r *SubmissionRepository) CountChildrenByField(ctx context.Context, parentID string) (map[string]int, error) {
	var rows []struct {
		ParentFieldID string
		N             int
	}
	err := r.db.WithContext(ctx).Model(&entity.Submission{}).
		Select("parent_field_id, count(*) as n").
		Where("parent_submission_id = ? AND is_deleted = false", parentID).
		Group("parent_field_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ParentFieldID] = row.N
	}
	return counts, nil
}

// ListHistory 读取流转历史（只读，按时间升序）
func (r *SubmissionRepository) ListHistory(ctx context.Context, submissionID string) ([]entity.WorkflowHistoryEntry, error) {
	var entries []entity.WorkflowHistoryEntry
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("timestamp ASC").
		Find(&entries).Error
	return entries, err
}

// ListAudit 读取字段审计（只读，按时间升序）
func (r *SubmissionRepository) ListAudit(ctx context.Context, submissionID string) ([]entity.AuditLogEntry, error) {
	var entries []entity.AuditLogEntry
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("timestamp ASC").
		Find(&entries).Error
	return entries, err
}
