package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/engine"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/repository"
)

const formCacheTTL = 5 * time.Minute

// FormService 表单定义服务。已发布表单的定义会进 Redis 缓存，
// 任何写操作都会失效对应缓存；正确性数据只在数据库。
type FormService struct {
	repo *repository.FormRepository
	rdb  *redis.Client
}

// NewFormService 创建表单服务
func NewFormService(repo *repository.FormRepository, rdb *redis.Client) *FormService {
	return &FormService{repo: repo, rdb: rdb}
}

// CreateFormReq 创建表单请求参数
type CreateFormReq struct {
	Code         string              `json:"code" binding:"required"`
	Name         string              `json:"name" binding:"required"`
	Description  string              `json:"description"`
	Type         string              `json:"type"`
	Fields       entity.FieldList    `json:"fields"`
	WorkflowID   string              `json:"workflow_id"`
	Permissions  entity.PolicySet    `json:"permissions"`
	Settings     entity.FormSettings `json:"settings"`
	MasterFormID string              `json:"master_form_id"`
}

// UpdateFormReq 更新表单请求参数
type UpdateFormReq struct {
	Name        *string              `json:"name"`
	Description *string              `json:"description"`
	Fields      *entity.FieldList    `json:"fields"`
	WorkflowID  *string              `json:"workflow_id"`
	Permissions *entity.PolicySet    `json:"permissions"`
	Settings    *entity.FormSettings `json:"settings"`
}

// Create 创建表单。字段ID必须在表单内唯一。
func (s *FormService) Create(ctx context.Context, actor engine.Actor, req *CreateFormReq) (*entity.Form, error) {
	if err := checkFieldIDs(req.Fields); err != nil {
		return nil, err
	}

	formType := req.Type
	if formType == "" {
		formType = entity.FormTypeStandard
	}
	if formType == entity.FormTypeDetail && req.MasterFormID == "" {
		return nil, engine.NewValidationError("master_form_id", "detail form requires a master form")
	}

	existing, err := s.repo.FindByCode(ctx, req.Code)
	if err != nil {
		return nil, fmt.Errorf("查询表单失败: %w", err)
	}
	if existing != nil {
		return nil, engine.NewValidationError("code", "form code already in use")
	}

	now := time.Now()
	form := &entity.Form{
		ID:           uuid.New().String(),
		Code:         req.Code,
		Name:         req.Name,
		Description:  req.Description,
		Type:         formType,
		Status:       entity.FormStatusDraft,
		Fields:       req.Fields,
		WorkflowID:   req.WorkflowID,
		Permissions:  req.Permissions,
		Settings:     req.Settings,
		MasterFormID: req.MasterFormID,
		Version:      1,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, form); err != nil {
		return nil, fmt.Errorf("创建表单失败: %w", err)
	}
	return form, nil
}

// Update 更新表单。结构性变更（字段/工作流/权限）递增版本号。
func (s *FormService) Update(ctx context.Context, id string, req *UpdateFormReq) (*entity.Form, error) {
	form, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	structural := false
	if req.Name != nil {
		form.Name = *req.Name
	}
	if req.Description != nil {
		form.Description = *req.Description
	}
	if req.Fields != nil {
		if err := checkFieldIDs(*req.Fields); err != nil {
			return nil, err
		}
		form.Fields = *req.Fields
		structural = true
	}
	if req.WorkflowID != nil && *req.WorkflowID != form.WorkflowID {
		form.WorkflowID = *req.WorkflowID
		structural = true
	}
	if req.Permissions != nil {
		form.Permissions = *req.Permissions
		structural = true
	}
	if req.Settings != nil {
		form.Settings = *req.Settings
	}

	if structural {
		form.Version++
	}
	form.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, form); err != nil {
		return nil, fmt.Errorf("更新表单失败: %w", err)
	}
	s.invalidate(ctx, form.ID)
	return form, nil
}

// SetStatus 发布/归档表单
func (s *FormService) SetStatus(ctx context.Context, id, status string) (*entity.Form, error) {
	switch status {
	case entity.FormStatusDraft, entity.FormStatusPublished, entity.FormStatusArchived:
	default:
		return nil, engine.NewValidationError("status", "unknown form status")
	}

	form, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	form.Status = status
	form.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, form); err != nil {
		return nil, fmt.Errorf("更新表单状态失败: %w", err)
	}
	s.invalidate(ctx, form.ID)
	return form, nil
}

// Get 获取表单。viewForm 权限与提交读取一样走解析器，
// 未授权的操作者拿不到表单定义。
func (s *FormService) Get(ctx context.Context, actor engine.Actor, id string) (*entity.Form, error) {
	form, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := engine.Resolve(actor, engine.ActionViewForm, form.Permissions); !d.Allowed {
		return nil, &engine.PermissionDenied{Action: engine.ActionViewForm, ResourceID: form.ID}
	}
	return form, nil
}

// fetch 读穿缓存取表单，不做权限判断（管理端更新路径使用）
func (s *FormService) fetch(ctx context.Context, id string) (*entity.Form, error) {
	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, formCacheKey(id)).Bytes(); err == nil {
			var cached entity.Form
			if json.Unmarshal(raw, &cached) == nil {
				return &cached, nil
			}
		}
	}

	form, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("查询表单失败: %w", err)
	}
	if form == nil {
		return nil, &engine.NotFound{Entity: "form", ID: id}
	}

	if s.rdb != nil && form.Status == entity.FormStatusPublished {
		if raw, err := json.Marshal(form); err == nil {
			s.rdb.Set(ctx, formCacheKey(id), raw, formCacheTTL)
		}
	}
	return form, nil
}

// List 表单列表。非管理员只能看到 viewForm 授权范围内的表单。
func (s *FormService) List(ctx context.Context, actor engine.Actor, status, formType string, page, pageSize int) ([]entity.Form, int64, error) {
	forms, total, err := s.repo.List(ctx, status, formType, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	if actor.IsAdmin() {
		return forms, total, nil
	}

	visible := make([]entity.Form, 0, len(forms))
	for i := range forms {
		if d := engine.Resolve(actor, engine.ActionViewForm, forms[i].Permissions); d.Allowed {
			visible = append(visible, forms[i])
		}
	}
	total -= int64(len(forms) - len(visible))
	return visible, total, nil
}

// EvaluateFieldStates 对给定数据快照重新求值全部字段状态（前端联动用）
func (s *FormService) EvaluateFieldStates(form *entity.Form, data map[string]interface{}) map[string]engine.FieldState {
	states := make(map[string]engine.FieldState, len(form.Fields))
	for i := range form.Fields {
		f := &form.Fields[i]
		states[f.ID] = engine.ResolveFieldState(f, data)
	}
	return states
}

func (s *FormService) invalidate(ctx context.Context, id string) {
	if s.rdb != nil {
		s.rdb.Del(ctx, formCacheKey(id))
	}
}

func formCacheKey(id string) string {
	return "formbuilder:form:" + id
}

func checkFieldIDs(fields entity.FieldList) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.ID == "" {
			return engine.NewValidationError("fields", "field id is required")
		}
		if seen[f.ID] {
			return engine.NewValidationError("fields", "duplicate field id: "+f.ID)
		}
		seen[f.ID] = true
	}
	return nil
}
