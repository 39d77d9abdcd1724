package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/engine"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
	"github.com/ramabhadrarao/formbuilder3/internal/forms/repository"
)

// WorkflowService 工作流定义服务。配置缺陷必须在保存时拦截，
// 不允许带病配置进入运行期再靠默认阶段兜底。
type WorkflowService struct {
	repo *repository.WorkflowRepository
}

// NewWorkflowService 创建工作流服务
func NewWorkflowService(repo *repository.WorkflowRepository) *WorkflowService {
	return &WorkflowService{repo: repo}
}

// WorkflowReq 工作流创建/更新请求参数
type WorkflowReq struct {
	Name          string                `json:"name" binding:"required"`
	Description   string                `json:"description"`
	Stages        entity.StageList      `json:"stages" binding:"required"`
	InitialStage  string                `json:"initial_stage" binding:"required"`
	FinalStages   entity.StringList     `json:"final_stages"`
	StageStatuses entity.StageStatusMap `json:"stage_statuses"`
}

// Create 创建工作流（先做完整性校验）
func (s *WorkflowService) Create(ctx context.Context, actor engine.Actor, req *WorkflowReq) (*entity.Workflow, error) {
	now := time.Now()
	wf := &entity.Workflow{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Description:   req.Description,
		Stages:        req.Stages,
		InitialStage:  req.InitialStage,
		FinalStages:   req.FinalStages,
		StageStatuses: req.StageStatuses,
		Version:       1,
		CreatedBy:     actor.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := ValidateWorkflow(wf); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, wf); err != nil {
		return nil, fmt.Errorf("创建工作流失败: %w", err)
	}
	return wf, nil
}

// Update 更新工作流定义，递增版本号
func (s *WorkflowService) Update(ctx context.Context, id string, req *WorkflowReq) (*entity.Workflow, error) {
	wf, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	wf.Name = req.Name
	wf.Description = req.Description
	wf.Stages = req.Stages
	wf.InitialStage = req.InitialStage
	wf.FinalStages = req.FinalStages
	wf.StageStatuses = req.StageStatuses
	wf.Version++
	wf.UpdatedAt = time.Now()

	if err := ValidateWorkflow(wf); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, wf); err != nil {
		return nil, fmt.Errorf("更新工作流失败: %w", err)
	}
	return wf, nil
}

// Get 获取工作流定义
func (s *WorkflowService) Get(ctx context.Context, id string) (*entity.Workflow, error) {
	wf, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("查询工作流失败: %w", err)
	}
	if wf == nil {
		return nil, &engine.NotFound{Entity: "workflow", ID: id}
	}
	return wf, nil
}

// List 工作流列表
func (s *WorkflowService) List(ctx context.Context, page, pageSize int) ([]entity.Workflow, int64, error) {
	return s.repo.List(ctx, page, pageSize)
}

// ValidateWorkflow 工作流定义完整性校验：
// 初始阶段、终态阶段、动作目标阶段都必须指向已声明的阶段，
// 阶段状态映射里的状态必须是合法的提交状态。
func ValidateWorkflow(wf *entity.Workflow) error {
	if len(wf.Stages) == 0 {
		return &engine.WorkflowConfigError{WorkflowID: wf.ID, Ref: "stages"}
	}

	seen := make(map[string]bool, len(wf.Stages))
	for i := range wf.Stages {
		stage := &wf.Stages[i]
		if stage.ID == "" || seen[stage.ID] {
			return &engine.WorkflowConfigError{WorkflowID: wf.ID, Ref: stage.ID}
		}
		seen[stage.ID] = true
	}

	if !seen[wf.InitialStage] {
		return &engine.WorkflowConfigError{WorkflowID: wf.ID, Ref: wf.InitialStage}
	}
	for _, id := range wf.FinalStages {
		if !seen[id] {
			return &engine.WorkflowConfigError{WorkflowID: wf.ID, Ref: id}
		}
	}

	for i := range wf.Stages {
		stage := &wf.Stages[i]
		actionSeen := make(map[string]bool, len(stage.Actions))
		for _, action := range stage.Actions {
			if action.ID == "" || actionSeen[action.ID] {
				return &engine.WorkflowConfigError{WorkflowID: wf.ID, Ref: stage.ID + "." + action.ID}
			}
			actionSeen[action.ID] = true
			if !seen[action.NextStage] {
				return &engine.WorkflowConfigError{WorkflowID: wf.ID, Ref: stage.ID + "." + action.ID}
			}
		}
	}

	for stageID, status := range wf.StageStatuses {
		if !seen[stageID] || !entity.ValidSubmissionStatus(status) {
			return &engine.WorkflowConfigError{WorkflowID: wf.ID, Ref: stageID}
		}
	}
	return nil
}
