package engine

import (
	"path/filepath"
	"strings"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
)

// FieldState 字段在当前数据快照下的求值结果
type FieldState struct {
	Visible  bool
	Required bool
	Disabled bool
}

// ResolveFieldState 基于规则求值器决定字段的显示/必填/禁用状态。
// RequiredWhen 配置后以其求值结果为准，否则取字段的静态 required 标记。
func ResolveFieldState(f *entity.Field, data map[string]interface{}) FieldState {
	st := FieldState{
		Visible:  EvaluateRules(f.VisibleWhen, data),
		Required: f.Required,
		Disabled: false,
	}
	if f.RequiredWhen != nil && len(f.RequiredWhen.Rules) > 0 {
		st.Required = EvaluateRules(f.RequiredWhen, data)
	}
	if f.DisabledWhen != nil && len(f.DisabledWhen.Rules) > 0 {
		st.Disabled = EvaluateRules(f.DisabledWhen, data)
	}
	return st
}

// ValidateInput 校验输入
type ValidateInput struct {
	Fields entity.FieldList
	Data   map[string]interface{}
	Files  []entity.FileDescriptor
	// NestedCounts 嵌套/明细字段已暂存的子项数量（由 NestedSubmissionCoordinator 提供）
	NestedCounts map[string]int
}

// Validate 按字段声明顺序校验全部字段，收集所有字段的错误后一次返回。
// 隐藏字段完全豁免必填与类型检查（其值若已提交仍会原样保留）。
// 单个字段内部在第一条失败规则处停止，保证每个字段至多一条错误。
func Validate(in ValidateInput) map[string]string {
	fieldErrors := make(map[string]string)

	for i := range in.Fields {
		f := &in.Fields[i]
		strategy := strategyFor(f.Type)
		if strategy.Kind == KindStatic {
			continue
		}

		state := ResolveFieldState(f, in.Data)
		if !state.Visible {
			continue
		}

		if msg := validateField(f, strategy, state, in); msg != "" {
			fieldErrors[f.ID] = msg
		}
	}

	return fieldErrors
}

func validateField(f *entity.Field, strategy fieldStrategy, state FieldState, in ValidateInput) string {
	value, present := in.Data[f.ID]

	switch strategy.Kind {
	case KindFile:
		descriptors := filesForField(in.Files, f.ID)
		if state.Required && len(descriptors) == 0 {
			return "required"
		}
		return checkFiles(f, descriptors)

	case KindNested:
		count := in.NestedCounts[f.ID]
		if state.Required && count == 0 {
			return "required"
		}
		if c := f.Constraints; c != nil {
			if c.MinItems != nil && count < *c.MinItems {
				return "not enough items"
			}
			if c.MaxItems != nil && count > *c.MaxItems {
				return "too many items"
			}
		}
		return ""

	case KindMulti:
		if state.Required && isEmptyValue(value) {
			return "required"
		}
		if !present || isEmptyValue(value) {
			return ""
		}
		if strategy.Check != nil {
			return strategy.Check(f, value)
		}
		return ""

	default: // KindScalar
		if state.Required && isEmptyValue(value) {
			return "required"
		}
		if !present || isEmptyValue(value) {
			return ""
		}
		if strategy.Check != nil {
			return strategy.Check(f, value)
		}
		return ""
	}
}

func filesForField(files []entity.FileDescriptor, fieldID string) []entity.FileDescriptor {
	var out []entity.FileDescriptor
	for _, fd := range files {
		if fd.FieldID == fieldID {
			out = append(out, fd)
		}
	}
	return out
}

// checkFiles 附件只校验大小与类型，内容完整性由存储协作方负责
func checkFiles(f *entity.Field, descriptors []entity.FileDescriptor) string {
	c := f.Constraints
	if c == nil {
		return ""
	}
	for _, fd := range descriptors {
		if c.MaxFileSize > 0 && fd.Size > c.MaxFileSize {
			return "file too large"
		}
		if len(c.AllowedExts) > 0 && !matchExt(fd.Filename, c.AllowedExts) {
			return "file type not allowed"
		}
		if len(c.AllowedMimes) > 0 && !matchMime(fd.MimeType, c.AllowedMimes) {
			return "file type not allowed"
		}
	}
	return ""
}

func matchExt(filename string, allowed []string) bool {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(ext, strings.TrimPrefix(a, ".")) {
			return true
		}
	}
	return false
}

func matchMime(mime string, allowed []string) bool {
	for _, a := range allowed {
		if a == mime {
			return true
		}
		// image/* 形式的通配
		if prefix, ok := strings.CutSuffix(a, "/*"); ok && strings.HasPrefix(mime, prefix+"/") {
			return true
		}
	}
	return false
}
