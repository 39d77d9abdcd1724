package engine

import "fmt"

// ValidationError 字段级校验错误集合。FieldErrors 以字段ID为键，
// 每个字段最多一条消息，供上层按字段渲染。
type ValidationError struct {
	FieldErrors map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %d field(s)", len(e.FieldErrors))
}

// NewValidationError 构造单字段校验错误
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{FieldErrors: map[string]string{field: message}}
}

// PermissionDenied 权限拒绝
type PermissionDenied struct {
	Action     string
	ResourceID string
}

func (e *PermissionDenied) Error() string {
	return fmt.Sprintf("permission denied: %s on %s", e.Action, e.ResourceID)
}

// NotFound 实体不存在
type NotFound struct {
	Entity string
	ID     string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// StateConflict 乐观并发冲突。内部重试耗尽后才会抛给调用方。
type StateConflict struct {
	ExpectedVersion int
	ActualVersion   int
}

func (e *StateConflict) Error() string {
	return fmt.Sprintf("state conflict: expected version %d, actual %d", e.ExpectedVersion, e.ActualVersion)
}

// SequenceAllocationFailure 序号分配失败
type SequenceAllocationFailure struct {
	Period   string
	Attempts int
}

func (e *SequenceAllocationFailure) Error() string {
	return fmt.Sprintf("sequence allocation failed for period %s after %d attempt(s)", e.Period, e.Attempts)
}

// WorkflowConfigError 工作流配置缺陷。配置错误必须中断流转，不允许回退到任何默认阶段。
type WorkflowConfigError struct {
	WorkflowID string
	Ref        string
}

func (e *WorkflowConfigError) Error() string {
	return fmt.Sprintf("workflow %s misconfigured at %s", e.WorkflowID, e.Ref)
}
