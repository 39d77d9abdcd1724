package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// 提交状态常量
const (
	SubmissionStatusDraft     = "draft"
	SubmissionStatusSubmitted = "submitted"
	SubmissionStatusInReview  = "in_review"
	SubmissionStatusApproved  = "approved"
	SubmissionStatusRejected  = "rejected"
	SubmissionStatusReturned  = "returned"
	SubmissionStatusCompleted = "completed"
	SubmissionStatusArchived  = "archived"
)

// ValidSubmissionStatus 判断是否为合法的提交状态
func ValidSubmissionStatus(s string) bool {
	switch s {
	case SubmissionStatusDraft, SubmissionStatusSubmitted, SubmissionStatusInReview,
		SubmissionStatusApproved, SubmissionStatusRejected, SubmissionStatusReturned,
		SubmissionStatusCompleted, SubmissionStatusArchived:
		return true
	}
	return false
}

// FileDescriptor 附件描述符（大小/类型校验用，文件内容由存储层负责）
type FileDescriptor struct {
	ID       string `json:"id"`
	FieldID  string `json:"field_id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// FileList 附件描述符列表 JSONB 类型
type FileList []FileDescriptor

func (l FileList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]FileDescriptor{})
	}
	return json.Marshal(l)
}

func (l *FileList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan FileList: %v", value)
	}
	return json.Unmarshal(bytes, l)
}

// Submission 表单提交记录。Version 为乐观并发令牌，所有状态变更走版本门控写入。
type Submission struct {
	ID                 string     `json:"id" gorm:"primaryKey;size:36"`
	FormID             string     `json:"form_id" gorm:"size:36;not null;index"`
	FormVersion        int        `json:"form_version" gorm:"not null;default:1"`
	Number             string     `json:"number" gorm:"size:50;uniqueIndex:idx_submissions_number,where:number <> ''"`
	Data               JSONB      `json:"data" gorm:"type:jsonb;not null;default:'{}'"`
	Files              FileList   `json:"files" gorm:"type:jsonb;not null;default:'[]'"`
	Status             string     `json:"status" gorm:"size:20;not null;default:'draft'"`
	CurrentStage       string     `json:"current_stage" gorm:"size:64"`
	Priority           string     `json:"priority" gorm:"size:20;default:'normal'"`
	ParentSubmissionID *string    `json:"parent_submission_id" gorm:"size:36;index"`
	MasterSubmissionID *string    `json:"master_submission_id" gorm:"size:36;index"`
	ParentFieldID      string     `json:"parent_field_id" gorm:"size:64"`
	SubmittedBy        string     `json:"submitted_by" gorm:"size:36;not null;index"`
	Organization       string     `json:"organization" gorm:"size:64;index"`
	CompletedAt        *time.Time `json:"completed_at"`
	CompletedBy        string     `json:"completed_by" gorm:"size:36"`
	IsDeleted          bool       `json:"is_deleted" gorm:"not null;default:false;index"`
	DeletedAt          *time.Time `json:"deleted_at"`
	DeletedBy          string     `json:"deleted_by" gorm:"size:36"`
	Version            int        `json:"version" gorm:"not null;default:1"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (Submission) TableName() string {
	return "submissions"
}

// WorkflowHistoryEntry 工作流流转历史（追加写，禁止修改/删除）
type WorkflowHistoryEntry struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	SubmissionID string    `json:"submission_id" gorm:"size:36;not null;index"`
	Stage        string    `json:"stage" gorm:"size:64;not null"`
	ActionID     string    `json:"action_id" gorm:"size:64;not null"`
	ActionName   string    `json:"action_name" gorm:"size:128"`
	Actor        string    `json:"actor" gorm:"size:36;not null"`
	Comment      string    `json:"comment" gorm:"type:text"`
	Timestamp    time.Time `json:"timestamp" gorm:"not null"`
}

func (WorkflowHistoryEntry) TableName() string {
	return "workflow_history"
}

// AuditLogEntry 字段级变更审计（追加写，禁止修改/删除）
type AuditLogEntry struct {
	ID           string          `json:"id" gorm:"primaryKey;size:36"`
	SubmissionID string          `json:"submission_id" gorm:"size:36;not null;index"`
	Actor        string          `json:"actor" gorm:"size:36;not null"`
	Field        string          `json:"field" gorm:"size:64;not null"`
	OldValue     json.RawMessage `json:"old_value" gorm:"type:jsonb"`
	NewValue     json.RawMessage `json:"new_value" gorm:"type:jsonb"`
	Timestamp    time.Time       `json:"timestamp" gorm:"not null"`
}

func (AuditLogEntry) TableName() string {
	return "audit_log"
}

// SequenceCounter 按时间周期的序号计数器，只通过原子自增读写
type SequenceCounter struct {
	Period    string    `json:"period" gorm:"primaryKey;size:16"`
	Value     int64     `json:"value" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SequenceCounter) TableName() string {
	return "sequence_counters"
}
