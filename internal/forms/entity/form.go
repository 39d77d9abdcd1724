package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// 表单类型常量
const (
	FormTypeStandard = "standard"
	FormTypeMaster   = "master"
	FormTypeDetail   = "detail"
)

// 表单状态常量
const (
	FormStatusDraft     = "draft"
	FormStatusPublished = "published"
	FormStatusArchived  = "archived"
)

// 字段类型常量（每种类型在 engine 的策略表中注册一个校验策略）
const (
	FieldTypeText        = "text"
	FieldTypeTextarea    = "textarea"
	FieldTypeEmail       = "email"
	FieldTypeURL         = "url"
	FieldTypePhone       = "phone"
	FieldTypeNumber      = "number"
	FieldTypeInteger     = "integer"
	FieldTypeCurrency    = "currency"
	FieldTypeSelect      = "select"
	FieldTypeMultiSelect = "multiselect"
	FieldTypeRadio       = "radio"
	FieldTypeCheckbox    = "checkbox"
	FieldTypeDate        = "date"
	FieldTypeTime        = "time"
	FieldTypeDatetime    = "datetime"
	FieldTypeFile        = "file"
	FieldTypeImage       = "image"
	FieldTypeSignature   = "signature"
	FieldTypeRating      = "rating"
	FieldTypeSlider      = "slider"
	FieldTypeToggle      = "toggle"
	FieldTypeHidden      = "hidden"
	FieldTypeSection     = "section"
	FieldTypeStatic      = "static"
	FieldTypeLookup      = "lookup"
	FieldTypeComputed    = "computed"
	FieldTypeNestedForm  = "nested_form"
	FieldTypeRepeater    = "repeater"
	FieldTypeGrid        = "grid"
)

// 条件规则操作符常量
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpIsEmpty     = "is_empty"
	OpIsNotEmpty  = "is_not_empty"
	OpIn          = "in"
	OpNotIn       = "not_in"
)

// 规则组合逻辑
const (
	RuleLogicAnd = "and"
	RuleLogicOr  = "or"
)

// Rule 单条条件规则：source 字段的当前值与 value 按 operator 比较
type Rule struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
}

// RuleSet 字段的条件规则集。Logic 为空按 and 处理；空规则集恒为满足。
type RuleSet struct {
	Logic string `json:"logic,omitempty"`
	Rules []Rule `json:"rules,omitempty"`
}

// FieldOption 选择类字段的选项
type FieldOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FieldConstraints 字段约束集
type FieldConstraints struct {
	Min            *float64 `json:"min,omitempty"`
	Max            *float64 `json:"max,omitempty"`
	MinLength      *int     `json:"min_length,omitempty"`
	MaxLength      *int     `json:"max_length,omitempty"`
	Pattern        string   `json:"pattern,omitempty"`
	PatternMessage string   `json:"pattern_message,omitempty"`
	MaxFileSize    int64    `json:"max_file_size,omitempty"`
	AllowedExts    []string `json:"allowed_exts,omitempty"`
	AllowedMimes   []string `json:"allowed_mimes,omitempty"`
	MinItems       *int     `json:"min_items,omitempty"`
	MaxItems       *int     `json:"max_items,omitempty"`
}

// Field 表单字段定义。ID 在表单内唯一且稳定。
type Field struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Label        string            `json:"label"`
	Required     bool              `json:"required"`
	DefaultValue interface{}       `json:"default_value,omitempty"`
	Options      []FieldOption     `json:"options,omitempty"`
	Constraints  *FieldConstraints `json:"constraints,omitempty"`
	VisibleWhen  *RuleSet          `json:"visible_when,omitempty"`
	RequiredWhen *RuleSet          `json:"required_when,omitempty"`
	DisabledWhen *RuleSet          `json:"disabled_when,omitempty"`
	NestedFormID string            `json:"nested_form_id,omitempty"`
}

// FieldList 字段列表 JSONB 类型
type FieldList []Field

func (l FieldList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]Field{})
	}
	return json.Marshal(l)
}

func (l *FieldList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan FieldList: %v", value)
	}
	return json.Unmarshal(bytes, l)
}

// PermissionPolicy 单个动作的权限策略
type PermissionPolicy struct {
	Public  bool     `json:"public,omitempty"`
	Roles   []string `json:"roles,omitempty"`
	Users   []string `json:"users,omitempty"`
	OwnOnly bool     `json:"own_only,omitempty"`
}

// PolicySet 动作名 → 权限策略
type PolicySet map[string]PermissionPolicy

func (p PolicySet) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal(map[string]PermissionPolicy{})
	}
	return json.Marshal(p)
}

func (p *PolicySet) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan PolicySet: %v", value)
	}
	return json.Unmarshal(bytes, p)
}

// FormSettings 表单行为设置
type FormSettings struct {
	AllowMultiple  bool       `json:"allow_multiple,omitempty"`
	MaxSubmissions int        `json:"max_submissions,omitempty"`
	OpensAt        *time.Time `json:"opens_at,omitempty"`
	ClosesAt       *time.Time `json:"closes_at,omitempty"`
	CascadeDelete  bool       `json:"cascade_delete,omitempty"`
}

func (s FormSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *FormSettings) Scan(value interface{}) error {
	if value == nil {
		*s = FormSettings{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan FormSettings: %v", value)
	}
	return json.Unmarshal(bytes, s)
}

// Form 表单定义
type Form struct {
	ID           string       `json:"id" gorm:"primaryKey;size:36"`
	Code         string       `json:"code" gorm:"size:50;uniqueIndex;not null"`
	Name         string       `json:"name" gorm:"size:200;not null"`
	Description  string       `json:"description" gorm:"type:text"`
	Type         string       `json:"type" gorm:"size:20;not null;default:'standard'"`
	Status       string       `json:"status" gorm:"size:20;not null;default:'draft'"`
	Fields       FieldList    `json:"fields" gorm:"type:jsonb;not null;default:'[]'"`
	WorkflowID   string       `json:"workflow_id" gorm:"size:36"`
	Permissions  PolicySet    `json:"permissions" gorm:"type:jsonb;not null;default:'{}'"`
	Settings     FormSettings `json:"settings" gorm:"type:jsonb;not null;default:'{}'"`
	MasterFormID string       `json:"master_form_id" gorm:"size:36"`
	Version      int          `json:"version" gorm:"not null;default:1"`
	CreatedBy    string       `json:"created_by" gorm:"size:36;not null"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (Form) TableName() string {
	return "forms"
}

// FieldByID 按 ID 查找字段
func (f *Form) FieldByID(id string) *Field {
	for i := range f.Fields {
		if f.Fields[i].ID == id {
			return &f.Fields[i]
		}
	}
	return nil
}
