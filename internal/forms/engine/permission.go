package engine

import (
	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
)

// 权限动作名常量
const (
	ActionViewForm         = "viewForm"
	ActionSubmitForm       = "submitForm"
	ActionViewSubmission   = "viewSubmission"
	ActionEditSubmission   = "editSubmission"
	ActionDeleteSubmission = "deleteSubmission"
)

// Actor 经过认证的操作者（身份协作方提供）
type Actor struct {
	ID           string `json:"id"`
	Role         string `json:"role"`
	Organization string `json:"organization"`
}

// IsAdmin 管理员拥有最高优先级，永不被拒绝
func (a Actor) IsAdmin() bool {
	return a.Role == entity.RoleAdmin
}

// Decision 授权结果。OwnOnly 是返回给调用方的数据范围谓词：
// 列表查询需把"仅本人数据"下推到持久层过滤，不是二元允许/拒绝。
type Decision struct {
	Allowed bool
	OwnOnly bool
}

// Resolve 按优先级解析动作权限：
// admin > public > 用户白名单 > 角色白名单 > 拒绝。
// own_only 只收窄角色/用户匹配的结果，admin 与 public 不受其影响。
func Resolve(actor Actor, action string, policies entity.PolicySet) Decision {
	if actor.IsAdmin() {
		return Decision{Allowed: true}
	}

	policy, ok := policies[action]
	if !ok {
		return Decision{}
	}

	if policy.Public {
		return Decision{Allowed: true}
	}
	for _, uid := range policy.Users {
		if uid == actor.ID {
			return Decision{Allowed: true, OwnOnly: policy.OwnOnly}
		}
	}
	for _, role := range policy.Roles {
		if role == actor.Role {
			return Decision{Allowed: true, OwnOnly: policy.OwnOnly}
		}
	}
	return Decision{}
}

// AuthorizeSubmission 提交级授权：先解析动作权限，再按 own_only 校验归属
func AuthorizeSubmission(actor Actor, action string, policies entity.PolicySet, sub *entity.Submission) error {
	d := Resolve(actor, action, policies)
	if !d.Allowed {
		return &PermissionDenied{Action: action, ResourceID: sub.ID}
	}
	if d.OwnOnly && sub.SubmittedBy != actor.ID {
		return &PermissionDenied{Action: action, ResourceID: sub.ID}
	}
	return nil
}

// AuthorizeStageAction 工作流阶段级授权：阶段角色/用户白名单或 admin
func AuthorizeStageAction(actor Actor, stage *entity.Stage, submissionID string) error {
	if actor.IsAdmin() {
		return nil
	}
	for _, uid := range stage.AllowedUsers {
		if uid == actor.ID {
			return nil
		}
	}
	for _, role := range stage.AllowedRoles {
		if role == actor.Role {
			return nil
		}
	}
	return &PermissionDenied{Action: stage.ID, ResourceID: submissionID}
}
