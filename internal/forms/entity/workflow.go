package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Action 阶段动作：指向目标阶段，可要求审批意见
type Action struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	NextStage      string `json:"next_stage"`
	RequireComment bool   `json:"require_comment,omitempty"`
	Reopen         bool   `json:"reopen,omitempty"`
}

// Stage 工作流阶段
type Stage struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	AllowedRoles []string `json:"allowed_roles,omitempty"`
	AllowedUsers []string `json:"allowed_users,omitempty"`
	Actions      []Action `json:"actions,omitempty"`
}

// StageList 阶段列表 JSONB 类型
type StageList []Stage

func (l StageList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]Stage{})
	}
	return json.Marshal(l)
}

func (l *StageList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan StageList: %v", value)
	}
	return json.Unmarshal(bytes, l)
}

// StageStatusMap 阶段ID → 提交状态的映射（工作流配置中的权威映射）
type StageStatusMap map[string]string

func (m StageStatusMap) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(map[string]string{})
	}
	return json.Marshal(m)
}

func (m *StageStatusMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan StageStatusMap: %v", value)
	}
	return json.Unmarshal(bytes, m)
}

// Workflow 工作流定义
type Workflow struct {
	ID            string         `json:"id" gorm:"primaryKey;size:36"`
	Name          string         `json:"name" gorm:"size:200;not null"`
	Description   string         `json:"description" gorm:"type:text"`
	Stages        StageList      `json:"stages" gorm:"type:jsonb;not null;default:'[]'"`
	InitialStage  string         `json:"initial_stage" gorm:"size:64;not null"`
	FinalStages   StringList     `json:"final_stages" gorm:"type:jsonb;not null;default:'[]'"`
	StageStatuses StageStatusMap `json:"stage_statuses" gorm:"type:jsonb;not null;default:'{}'"`
	Version       int            `json:"version" gorm:"not null;default:1"`
	CreatedBy     string         `json:"created_by" gorm:"size:36;not null"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (Workflow) TableName() string {
	return "workflows"
}

// StageByID 按 ID 查找阶段
func (w *Workflow) StageByID(id string) *Stage {
	for i := range w.Stages {
		if w.Stages[i].ID == id {
			return &w.Stages[i]
		}
	}
	return nil
}

// ActionByID 在阶段内按 ID 查找动作
func (s *Stage) ActionByID(id string) *Action {
	for i := range s.Actions {
		if s.Actions[i].ID == id {
			return &s.Actions[i]
		}
	}
	return nil
}

// IsFinalStage 判断阶段是否为终态阶段
func (w *Workflow) IsFinalStage(id string) bool {
	return w.FinalStages.Contains(id)
}
