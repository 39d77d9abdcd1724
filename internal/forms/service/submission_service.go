package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/engine"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/repository"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/sequence"
)

// 版本冲突的内部重试次数。重试耗尽后把冲突抛给调用方。
const transitionRetries = 3

// SubmissionNotifier 提交变更事件通知（SSE 广播用）
type SubmissionNotifier interface {
	NotifySubmission(submissionID, formID, event string)
}

// SubmissionService 提交生命周期服务。所有状态变更在单个事务内完成：
// 版本门控写入 + 追加历史/审计，事务失败不留下半截状态。
type SubmissionService struct {
	db        *gorm.DB
	repos     *repository.Repositories
	allocator *sequence.Allocator
	nested    *NestedService
	notifier  SubmissionNotifier
	logger    *zap.Logger
}

// NewSubmissionService 创建提交服务
func NewSubmissionService(db *gorm.DB, repos *repository.Repositories, allocator *sequence.Allocator, nested *NestedService, logger *zap.Logger) *SubmissionService {
	return &SubmissionService{
		db:        db,
		repos:     repos,
		allocator: allocator,
		nested:    nested,
		logger:    logger,
	}
}

// SetNotifier 注入事件通知器（可选）
func (s *SubmissionService) SetNotifier(n SubmissionNotifier) {
	s.notifier = n
}

// CreateSubmissionReq 创建提交请求参数
type CreateSubmissionReq struct {
	FormID   string                 `json:"form_id" binding:"required"`
	Data     map[string]interface{} `json:"data"`
	Files    entity.FileList        `json:"files"`
	Children []ChildInput           `json:"children"`
	Priority string                 `json:"priority"`
	Draft    bool                   `json:"draft"`
}

// Create 创建提交。草稿跳过校验；正式提交要通过全量校验、
// 进入工作流初始阶段并分配提交编号。
func (s *SubmissionService) Create(ctx context.Context, actor engine.Actor, req *CreateSubmissionReq) (*entity.Submission, error) {
	form, err := s.loadForm(ctx, req.FormID)
	if err != nil {
		return nil, err
	}
	if form.Status != entity.FormStatusPublished && !actor.IsAdmin() {
		return nil, &engine.NotFound{Entity: "form", ID: form.ID}
	}

	if d := engine.Resolve(actor, engine.ActionSubmitForm, form.Permissions); !d.Allowed {
		return nil, &engine.PermissionDenied{Action: engine.ActionSubmitForm, ResourceID: form.ID}
	}
	if err := s.checkSubmissionWindow(ctx, actor, form); err != nil {
		return nil, err
	}

	now := time.Now()
	sub := &entity.Submission{
		ID:           uuid.New().String(),
		FormID:       form.ID,
		FormVersion:  form.Version,
		Data:         req.Data,
		Files:        req.Files,
		Status:       entity.SubmissionStatusDraft,
		Priority:     req.Priority,
		SubmittedBy:  actor.ID,
		Organization: actor.Organization,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if sub.Data == nil {
		sub.Data = entity.JSONB{}
	}
	if sub.Priority == "" {
		sub.Priority = "normal"
	}

	var wf *entity.Workflow
	if !req.Draft {
		if err := s.validateData(form, req.Data, req.Files, nestedCountsFromInput(req.Children)); err != nil {
			return nil, err
		}
		wf, err = s.enterWorkflow(ctx, form, sub)
		if err != nil {
			return nil, err
		}
		number, err := s.allocator.Next(ctx, now)
		if err != nil {
			return nil, err
		}
		sub.Number = number
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return fmt.Errorf("创建提交失败: %w", err)
		}
		if len(req.Children) > 0 {
			if err := s.nested.CreateChildren(ctx, tx, sub, form, req.Children); err != nil {
				return err
			}
		}
		if wf != nil {
			return appendHistory(tx, sub.ID, sub.CurrentStage, "submit", "提交", actor.ID, "", now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(sub, "created")
	return sub, nil
}

// Get 获取提交详情（含权限校验）
func (s *SubmissionService) Get(ctx context.Context, actor engine.Actor, id string) (*entity.Submission, error) {
	sub, form, err := s.loadSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := engine.AuthorizeSubmission(actor, engine.ActionViewSubmission, form.Permissions, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// List 提交列表。own_only 权限解析为数据范围谓词，下推到仓库过滤。
func (s *SubmissionService) List(ctx context.Context, actor engine.Actor, f repository.SubmissionListFilter) ([]entity.Submission, int64, error) {
	form, err := s.loadForm(ctx, f.FormID)
	if err != nil {
		return nil, 0, err
	}

	d := engine.Resolve(actor, engine.ActionViewSubmission, form.Permissions)
	if !d.Allowed {
		return nil, 0, &engine.PermissionDenied{Action: engine.ActionViewSubmission, ResourceID: form.ID}
	}
	if d.OwnOnly {
		f.OwnerID = actor.ID
	}
	return s.repos.Submission.List(ctx, f)
}

// UpdateData 修改提交数据。只允许草稿和被退回的提交修改，
// 每个变更字段追加一条审计记录。
func (s *SubmissionService) UpdateData(ctx context.Context, actor engine.Actor, id string, data map[string]interface{}) (*entity.Submission, error) {
	var result *entity.Submission
	expected := 0

	for attempt := 0; attempt < transitionRetries; attempt++ {
		sub, form, err := s.loadSubmission(ctx, id)
		if err != nil {
			return nil, err
		}
		expected = sub.Version
		if err := engine.AuthorizeSubmission(actor, engine.ActionEditSubmission, form.Permissions, sub); err != nil {
			return nil, err
		}
		if sub.Status != entity.SubmissionStatusDraft && sub.Status != entity.SubmissionStatusReturned {
			return nil, engine.NewValidationError("status", "only draft or returned submissions can be edited")
		}

		now := time.Now()
		changes := diffData(sub.Data, data)
		sub.Data = data
		sub.UpdatedAt = now

		ok, err := s.writeVersioned(ctx, sub, func(tx *gorm.DB) error {
			for _, c := range changes {
				entry := &entity.AuditLogEntry{
					ID:           uuid.New().String(),
					SubmissionID: sub.ID,
					Actor:        actor.ID,
					Field:        c.field,
					OldValue:     c.oldValue,
					NewValue:     c.newValue,
					Timestamp:    now,
				}
				if err := tx.Create(entry).Error; err != nil {
					return fmt.Errorf("写入审计记录失败: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if ok {
			result = sub
			break
		}
	}

	if result == nil {
		return nil, s.conflict(ctx, id, expected)
	}
	s.notify(result, "updated")
	return result, nil
}

// Submit 把草稿或被退回的提交送入工作流：全量校验、进入初始阶段、
// 首次离开草稿态时分配提交编号。
func (s *SubmissionService) Submit(ctx context.Context, actor engine.Actor, id string) (*entity.Submission, error) {
	var result *entity.Submission
	expected := 0

	for attempt := 0; attempt < transitionRetries; attempt++ {
		sub, form, err := s.loadSubmission(ctx, id)
		if err != nil {
			return nil, err
		}
		expected = sub.Version
		if err := engine.AuthorizeSubmission(actor, engine.ActionEditSubmission, form.Permissions, sub); err != nil {
			return nil, err
		}
		if sub.Status != entity.SubmissionStatusDraft && sub.Status != entity.SubmissionStatusReturned {
			return nil, engine.NewValidationError("status", "submission is not in a submittable state")
		}

		counts, err := s.nested.ChildCounts(ctx, sub.ID)
		if err != nil {
			return nil, fmt.Errorf("统计子提交失败: %w", err)
		}
		if err := s.validateData(form, sub.Data, sub.Files, counts); err != nil {
			return nil, err
		}
		if _, err := s.enterWorkflow(ctx, form, sub); err != nil {
			return nil, err
		}

		now := time.Now()
		if sub.Number == "" {
			number, err := s.allocator.Next(ctx, now)
			if err != nil {
				return nil, err
			}
			sub.Number = number
		}
		sub.UpdatedAt = now

		ok, err := s.writeVersioned(ctx, sub, func(tx *gorm.DB) error {
			return appendHistory(tx, sub.ID, sub.CurrentStage, "submit", "提交", actor.ID, "", now)
		})
		if err != nil {
			return nil, err
		}
		if ok {
			result = sub
			break
		}
	}

	if result == nil {
		return nil, s.conflict(ctx, id, expected)
	}
	s.notify(result, "submitted")
	return result, nil
}

// ExecuteAction 执行当前阶段的工作流动作。完整流程：
// 加载提交与工作流、定位阶段与动作、阶段级授权、审批意见校验、
// 解析目标阶段与状态、版本门控写入并追加历史。
// 工作流配置缺陷（阶段或目标不存在）立即中断，绝不回退到默认阶段。
func (s *SubmissionService) ExecuteAction(ctx context.Context, actor engine.Actor, id, actionID, comment string) (*entity.Submission, error) {
	var result *entity.Submission
	expected := 0

	for attempt := 0; attempt < transitionRetries; attempt++ {
		sub, form, err := s.loadSubmission(ctx, id)
		if err != nil {
			return nil, err
		}
		expected = sub.Version
		if form.WorkflowID == "" {
			return nil, &engine.WorkflowConfigError{WorkflowID: "", Ref: form.ID}
		}
		wf, err := s.loadWorkflow(ctx, form.WorkflowID)
		if err != nil {
			return nil, err
		}

		stage := wf.StageByID(sub.CurrentStage)
		if stage == nil {
			return nil, &engine.WorkflowConfigError{WorkflowID: wf.ID, Ref: sub.CurrentStage}
		}
		action := stage.ActionByID(actionID)
		if action == nil {
			return nil, &engine.NotFound{Entity: "action", ID: actionID}
		}
		if err := engine.AuthorizeStageAction(actor, stage, sub.ID); err != nil {
			return nil, err
		}
		if action.RequireComment && strings.TrimSpace(comment) == "" {
			return nil, engine.NewValidationError("comment", "comment is required for this action")
		}

		next := wf.StageByID(action.NextStage)
		if next == nil {
			return nil, &engine.WorkflowConfigError{WorkflowID: wf.ID, Ref: action.NextStage}
		}
		if wf.IsFinalStage(sub.CurrentStage) && !action.Reopen {
			return nil, engine.NewValidationError("action", "submission is already in a final stage")
		}

		now := time.Now()
		sub.CurrentStage = next.ID
		sub.Status = statusForStage(wf, next.ID, sub.Status)
		if wf.IsFinalStage(next.ID) {
			sub.CompletedAt = &now
			sub.CompletedBy = actor.ID
		} else {
			sub.CompletedAt = nil
			sub.CompletedBy = ""
		}
		sub.UpdatedAt = now

		ok, err := s.writeVersioned(ctx, sub, func(tx *gorm.DB) error {
			return appendHistory(tx, sub.ID, stage.ID, action.ID, action.Name, actor.ID, comment, now)
		})
		if err != nil {
			return nil, err
		}
		if ok {
			result = sub
			break
		}
	}

	if result == nil {
		return nil, s.conflict(ctx, id, expected)
	}
	s.notify(result, "transitioned")
	return result, nil
}

// Delete 软删除提交。主从结构的主表单开启级联删除时，
// 明细提交随主提交一并删除；嵌套子提交仅在显式要求时删除。
func (s *SubmissionService) Delete(ctx context.Context, actor engine.Actor, id string, includeChildren bool) error {
	deleted := false
	expected := 0

	for attempt := 0; attempt < transitionRetries; attempt++ {
		sub, form, err := s.loadSubmission(ctx, id)
		if err != nil {
			return err
		}
		if err := engine.AuthorizeSubmission(actor, engine.ActionDeleteSubmission, form.Permissions, sub); err != nil {
			return err
		}
		expected = sub.Version

		now := time.Now()
		sub.IsDeleted = true
		sub.DeletedAt = &now
		sub.DeletedBy = actor.ID
		sub.UpdatedAt = now

		ok, err := s.writeVersioned(ctx, sub, func(tx *gorm.DB) error {
			if form.Type == entity.FormTypeMaster && form.Settings.CascadeDelete {
				if _, err := s.nested.CascadeSoftDelete(ctx, tx, sub.ID, actor.ID, now); err != nil {
					return err
				}
			}
			if includeChildren {
				if _, err := s.nested.SoftDeleteChildren(ctx, tx, sub.ID, actor.ID, now); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			// 子提交上的版本冲突回滚整个事务后重试本次删除
			var childConflict *engine.StateConflict
			if errors.As(err, &childConflict) {
				continue
			}
			return err
		}
		if ok {
			deleted = true
			s.notify(sub, "deleted")
			break
		}
	}

	if !deleted {
		return s.conflict(ctx, id, expected)
	}
	return nil
}

// History 读取流转历史
func (s *SubmissionService) History(ctx context.Context, actor engine.Actor, id string) ([]entity.WorkflowHistoryEntry, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repos.Submission.ListHistory(ctx, id)
}

// Audit 读取字段级审计
func (s *SubmissionService) Audit(ctx context.Context, actor engine.Actor, id string) ([]entity.AuditLogEntry, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repos.Submission.ListAudit(ctx, id)
}

func (s *SubmissionService) loadForm(ctx context.Context, id string) (*entity.Form, error) {
	form, err := s.repos.Form.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("查询表单失败: %w", err)
	}
	if form == nil {
		return nil, &engine.NotFound{Entity: "form", ID: id}
	}
	return form, nil
}

func (s *SubmissionService) loadWorkflow(ctx context.Context, id string) (*entity.Workflow, error) {
	wf, err := s.repos.Workflow.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("查询工作流失败: %w", err)
	}
	if wf == nil {
		return nil, &engine.NotFound{Entity: "workflow", ID: id}
	}
	return wf, nil
}

func (s *SubmissionService) loadSubmission(ctx context.Context, id string) (*entity.Submission, *entity.Form, error) {
	sub, err := s.repos.Submission.FindByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("查询提交失败: %w", err)
	}
	if sub == nil {
		return nil, nil, &engine.NotFound{Entity: "submission", ID: id}
	}
	form, err := s.loadForm(ctx, sub.FormID)
	if err != nil {
		return nil, nil, err
	}
	return sub, form, nil
}

// checkSubmissionWindow 表单开放时间与提交配额
func (s *SubmissionService) checkSubmissionWindow(ctx context.Context, actor engine.Actor, form *entity.Form) error {
	now := time.Now()
	if form.Settings.OpensAt != nil && now.Before(*form.Settings.OpensAt) {
		return engine.NewValidationError("form", "form is not yet open for submissions")
	}
	if form.Settings.ClosesAt != nil && now.After(*form.Settings.ClosesAt) {
		return engine.NewValidationError("form", "form is closed for submissions")
	}

	if !form.Settings.AllowMultiple || form.Settings.MaxSubmissions > 0 {
		count, err := s.repos.Submission.CountByFormAndUser(ctx, form.ID, actor.ID)
		if err != nil {
			return fmt.Errorf("统计提交数失败: %w", err)
		}
		if !form.Settings.AllowMultiple && count > 0 {
			return engine.NewValidationError("form", "only one submission per user is allowed")
		}
		if form.Settings.MaxSubmissions > 0 && count >= int64(form.Settings.MaxSubmissions) {
			return engine.NewValidationError("form", "submission limit reached")
		}
	}
	return nil
}

func (s *SubmissionService) validateData(form *entity.Form, data map[string]interface{}, files entity.FileList, nestedCounts map[string]int) error {
	fieldErrors := engine.Validate(engine.ValidateInput{
		Fields:       form.Fields,
		Data:         data,
		Files:        files,
		NestedCounts: nestedCounts,
	})
	if len(fieldErrors) > 0 {
		return &engine.ValidationError{FieldErrors: fieldErrors}
	}
	return nil
}

// enterWorkflow 把提交置于工作流初始阶段并解析初始状态。
// 表单未绑定工作流时直接进入 submitted 状态。
func (s *SubmissionService) enterWorkflow(ctx context.Context, form *entity.Form, sub *entity.Submission) (*entity.Workflow, error) {
	if form.WorkflowID == "" {
		sub.Status = entity.SubmissionStatusSubmitted
		sub.CurrentStage = ""
		return nil, nil
	}

	wf, err := s.loadWorkflow(ctx, form.WorkflowID)
	if err != nil {
		return nil, err
	}
	if wf.StageByID(wf.InitialStage) == nil {
		return nil, &engine.WorkflowConfigError{WorkflowID: wf.ID, Ref: wf.InitialStage}
	}
	sub.CurrentStage = wf.InitialStage
	sub.Status = statusForStage(wf, wf.InitialStage, entity.SubmissionStatusSubmitted)
	return wf, nil
}

// statusForStage 解析阶段对应的提交状态。映射缺失时：终态阶段视为
// completed，其余保持当前状态不变。
func statusForStage(wf *entity.Workflow, stageID, current string) string {
	if status, ok := wf.StageStatuses[stageID]; ok && status != "" {
		return status
	}
	if wf.IsFinalStage(stageID) {
		return entity.SubmissionStatusCompleted
	}
	return current
}

// writeVersioned 在事务内执行版本门控写入与附带的追加写。
// 返回 (false, nil) 表示检测到版本冲突，调用方负责重试。
func (s *SubmissionService) writeVersioned(ctx context.Context, sub *entity.Submission, extra func(tx *gorm.DB) error) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repository.UpdateVersioned(tx, sub)
		if err != nil {
			return fmt.Errorf("更新提交失败: %w", err)
		}
		if !ok {
			return nil
		}
		if extra != nil {
			if err := extra(tx); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// conflict 重试耗尽后构造冲突错误：expected 是最后一次失败写入携带的版本，
// actual 为数据库内的当前版本
func (s *SubmissionService) conflict(ctx context.Context, id string, expected int) error {
	actual := 0
	if sub, err := s.repos.Submission.FindByID(ctx, id); err == nil && sub != nil {
		actual = sub.Version
	}
	return &engine.StateConflict{ExpectedVersion: expected, ActualVersion: actual}
}

func (s *SubmissionService) notify(sub *entity.Submission, event string) {
	if s.notifier != nil {
		s.notifier.NotifySubmission(sub.ID, sub.FormID, event)
	}
}

func appendHistory(tx *gorm.DB, submissionID, stage, actionID, actionName, actorID, comment string, ts time.Time) error {
	entry := &entity.WorkflowHistoryEntry{
		ID:           uuid.New().String(),
		SubmissionID: submissionID,
		Stage:        stage,
		ActionID:     actionID,
		ActionName:   actionName,
		Actor:        actorID,
		Comment:      comment,
		Timestamp:    ts,
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("写入流转历史失败: %w", err)
	}
	return nil
}

// nestedCountsFromInput 按字段统计请求里暂存的子项数量
func nestedCountsFromInput(children []ChildInput) map[string]int {
	if len(children) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, c := range children {
		counts[c.FieldID]++
	}
	return counts
}

type dataChange struct {
	field    string
	oldValue json.RawMessage
	newValue json.RawMessage
}

// diffData 计算数据快照的字段级差异
func diffData(oldData, newData map[string]interface{}) []dataChange {
	var changes []dataChange
	for key, newVal := range newData {
		oldVal, existed := oldData[key]
		if existed && reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		changes = append(changes, dataChange{
			field:    key,
			oldValue: marshalValue(oldVal),
			newValue: marshalValue(newVal),
		})
	}
	for key, oldVal := range oldData {
		if _, kept := newData[key]; !kept {
			changes = append(changes, dataChange{
				field:    key,
				oldValue: marshalValue(oldVal),
				newValue: marshalValue(nil),
			})
		}
	}
	return changes
}

func marshalValue(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}
