package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
)

// EvaluateRules 计算条件规则集是否满足。无规则集或空规则集恒为满足。
// 求值是纯函数：不修改快照，数据变化后需要重新求值。
// 规则可以引用任何字段ID；未解析（包括循环引用）的引用按空值处理。
func EvaluateRules(rs *entity.RuleSet, data map[string]interface{}) bool {
	if rs == nil || len(rs.Rules) == 0 {
		return true
	}

	or := strings.EqualFold(rs.Logic, entity.RuleLogicOr)
	for _, r := range rs.Rules {
		ok := evaluateRule(r, data)
		if or && ok {
			return true
		}
		if !or && !ok {
			return false
		}
	}
	return !or
}

func evaluateRule(r entity.Rule, data map[string]interface{}) bool {
	value := data[r.Field]

	switch r.Operator {
	case entity.OpEquals:
		return valuesEqual(value, r.Value)
	case entity.OpNotEquals:
		return !valuesEqual(value, r.Value)
	case entity.OpContains:
		return containsValue(value, r.Value)
	case entity.OpNotContains:
		return !containsValue(value, r.Value)
	case entity.OpGreaterThan:
		a, aok := asNumber(value)
		b, bok := asNumber(r.Value)
		return aok && bok && a > b
	case entity.OpLessThan:
		a, aok := asNumber(value)
		b, bok := asNumber(r.Value)
		return aok && bok && a < b
	case entity.OpIsEmpty:
		return isEmptyValue(value)
	case entity.OpIsNotEmpty:
		return !isEmptyValue(value)
	case entity.OpIn:
		return inList(value, r.Value)
	case entity.OpNotIn:
		return !inList(value, r.Value)
	}
	// 未知操作符按不满足处理
	return false
}

// isEmptyValue null、空字符串、空集合均视为空
func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	}
	return false
}

// asNumber 双操作数按浮点解析；解析失败的操作数让该条规则判 false，不报错
func asNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprintf("%v", v)
}

func valuesEqual(a, b interface{}) bool {
	if na, aok := asNumber(a); aok {
		if nb, bok := asNumber(b); bok {
			return na == nb
		}
	}
	return asString(a) == asString(b)
}

// containsValue 字符串做子串匹配，集合做成员匹配
func containsValue(value, target interface{}) bool {
	switch t := value.(type) {
	case string:
		return strings.Contains(t, asString(target))
	case []interface{}:
		for _, item := range t {
			if valuesEqual(item, target) {
				return true
			}
		}
	case []string:
		for _, item := range t {
			if item == asString(target) {
				return true
			}
		}
	}
	return false
}

// inList 字段值是否属于规则值列表
func inList(value, list interface{}) bool {
	switch l := list.(type) {
	case []interface{}:
		for _, item := range l {
			if valuesEqual(value, item) {
				return true
			}
		}
	case []string:
		for _, item := range l {
			if asString(value) == item {
				return true
			}
		}
	}
	return false
}
