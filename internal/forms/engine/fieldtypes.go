package engine

import (
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
)

// FieldKind 字段大类，决定必填判定与取值形态
type FieldKind int

const (
	KindScalar FieldKind = iota
	KindMulti
	KindFile
	KindNested
	KindStatic
)

// checkFunc 单字段类型校验策略。仅在值存在时调用，返回错误消息，空串表示通过。
type checkFunc func(f *entity.Field, value interface{}) string

// fieldStrategy 字段类型在策略表中的注册项
type fieldStrategy struct {
	Kind  FieldKind
	Check checkFunc
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 \-()]{5,19}$`)
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern  = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2})?$`)
	dtPattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(:\d{2})?`)
)

// fieldStrategies 字段类型 → 校验策略。新增字段类型只需在此注册，
// 不允许在各处散落 type switch。
var fieldStrategies = map[string]fieldStrategy{
	entity.FieldTypeText:        {KindScalar, checkText},
	entity.FieldTypeTextarea:    {KindScalar, checkText},
	entity.FieldTypeEmail:       {KindScalar, checkEmail},
	entity.FieldTypeURL:         {KindScalar, checkURL},
	entity.FieldTypePhone:       {KindScalar, checkPhone},
	entity.FieldTypeNumber:      {KindScalar, checkNumber},
	entity.FieldTypeInteger:     {KindScalar, checkInteger},
	entity.FieldTypeCurrency:    {KindScalar, checkNumber},
	entity.FieldTypeSelect:      {KindScalar, checkOption},
	entity.FieldTypeMultiSelect: {KindMulti, checkOptions},
	entity.FieldTypeRadio:       {KindScalar, checkOption},
	entity.FieldTypeCheckbox:    {KindMulti, checkOptions},
	entity.FieldTypeDate:        {KindScalar, checkDate},
	entity.FieldTypeTime:        {KindScalar, checkTime},
	entity.FieldTypeDatetime:    {KindScalar, checkDatetime},
	entity.FieldTypeFile:        {KindFile, nil},
	entity.FieldTypeImage:       {KindFile, nil},
	entity.FieldTypeSignature:   {KindFile, nil},
	entity.FieldTypeRating:      {KindScalar, checkNumber},
	entity.FieldTypeSlider:      {KindScalar, checkNumber},
	entity.FieldTypeToggle:      {KindScalar, checkToggle},
	entity.FieldTypeHidden:      {KindScalar, nil},
	entity.FieldTypeSection:     {KindStatic, nil},
	entity.FieldTypeStatic:      {KindStatic, nil},
	entity.FieldTypeLookup:      {KindScalar, nil},
	entity.FieldTypeComputed:    {KindStatic, nil},
	entity.FieldTypeNestedForm:  {KindNested, nil},
	entity.FieldTypeRepeater:    {KindNested, nil},
	entity.FieldTypeGrid:        {KindNested, nil},
}

// strategyFor 未注册的类型按普通文本处理
func strategyFor(fieldType string) fieldStrategy {
	if s, ok := fieldStrategies[fieldType]; ok {
		return s
	}
	return fieldStrategy{KindScalar, checkText}
}

func checkText(f *entity.Field, value interface{}) string {
	s := asString(value)
	c := f.Constraints
	if c == nil {
		return ""
	}
	if c.MinLength != nil && len([]rune(s)) < *c.MinLength {
		return "too short"
	}
	if c.MaxLength != nil && len([]rune(s)) > *c.MaxLength {
		return "too long"
	}
	if c.Pattern != "" {
		re, err := regexp.Compile(c.Pattern)
		// 无法编译的 pattern 属于表单配置问题，不拦截提交
		if err == nil && !re.MatchString(s) {
			if c.PatternMessage != "" {
				return c.PatternMessage
			}
			return "invalid format"
		}
	}
	return ""
}

func checkEmail(f *entity.Field, value interface{}) string {
	if !emailPattern.MatchString(asString(value)) {
		return "invalid email address"
	}
	return checkText(f, value)
}

func checkURL(f *entity.Field, value interface{}) string {
	u, err := url.Parse(asString(value))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "invalid url"
	}
	return ""
}

func checkPhone(f *entity.Field, value interface{}) string {
	if !phonePattern.MatchString(asString(value)) {
		return "invalid phone number"
	}
	return ""
}

func checkNumber(f *entity.Field, value interface{}) string {
	n, ok := asNumber(value)
	if !ok {
		return "must be a number"
	}
	if c := f.Constraints; c != nil {
		if c.Min != nil && n < *c.Min {
			return "below minimum"
		}
		if c.Max != nil && n > *c.Max {
			return "above maximum"
		}
	}
	return ""
}

func checkInteger(f *entity.Field, value interface{}) string {
	n, ok := asNumber(value)
	if !ok || n != math.Trunc(n) {
		return "must be an integer"
	}
	return checkNumber(f, value)
}

func checkDate(f *entity.Field, value interface{}) string {
	if !datePattern.MatchString(asString(value)) {
		return "invalid date"
	}
	return ""
}

func checkTime(f *entity.Field, value interface{}) string {
	if !timePattern.MatchString(asString(value)) {
		return "invalid time"
	}
	return ""
}

func checkDatetime(f *entity.Field, value interface{}) string {
	if !dtPattern.MatchString(asString(value)) {
		return "invalid datetime"
	}
	return ""
}

func checkToggle(f *entity.Field, value interface{}) string {
	switch value.(type) {
	case bool:
		return ""
	}
	s := strings.ToLower(asString(value))
	if s == "true" || s == "false" {
		return ""
	}
	return "must be a boolean"
}

func checkOption(f *entity.Field, value interface{}) string {
	if len(f.Options) == 0 {
		return ""
	}
	s := asString(value)
	for _, o := range f.Options {
		if o.Value == s {
			return ""
		}
	}
	return "not an allowed option"
}

func checkOptions(f *entity.Field, value interface{}) string {
	items, ok := value.([]interface{})
	if !ok {
		if ss, sok := value.([]string); sok {
			items = make([]interface{}, len(ss))
			for i, s := range ss {
				items[i] = s
			}
		} else {
			return "must be a list"
		}
	}
	for _, item := range items {
		if msg := checkOption(f, item); msg != "" {
			return msg
		}
	}
	return ""
}
