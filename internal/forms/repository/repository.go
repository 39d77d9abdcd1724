package repository

import (
	"gorm.io/gorm"
)

// Repositories 仓库集合
type Repositories struct {
	Form       *FormRepository
	Workflow   *WorkflowRepository
	Submission *SubmissionRepository
	Counter    *CounterRepository
	User       *UserRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Form:       NewFormRepository(db),
		Workflow:   NewWorkflowRepository(db),
		Submission: NewSubmissionRepository(db),
		Counter:    NewCounterRepository(db),
		User:       NewUserRepository(db),
	}
}
