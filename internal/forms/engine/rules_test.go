package engine

import (
	"testing"

	"github.com/ramabhadrarao/formbuilder3/internal/forms/entity"
)

func ruleSet(logic string, rules ...entity.Rule) *entity.RuleSet {
	return &entity.RuleSet{Logic: logic, Rules: rules}
}

func TestEvaluateRulesNoRuleSet(t *testing.T) {
	data := map[string]interface{}{"a": 1}
	if !EvaluateRules(nil, data) {
		t.Error("nil rule set should always be satisfied")
	}
	if !EvaluateRules(&entity.RuleSet{}, data) {
		t.Error("empty rule set should always be satisfied")
	}
}

func TestEvaluateRulesOperators(t *testing.T) {
	data := map[string]interface{}{
		"country":  "DE",
		"amount":   float64(150),
		"amt_str":  "150",
		"tags":     []interface{}{"red", "blue"},
		"empty":    "",
		"note":     "urgent delivery",
		"zero":     float64(0),
		"untyped":  nil,
		"listless": []interface{}{},
	}

	cases := []struct {
		name string
		rule entity.Rule
		want bool
	}{
		{"equals match", entity.Rule{Field: "country", Operator: entity.OpEquals, Value: "DE"}, true},
		{"equals mismatch", entity.Rule{Field: "country", Operator: entity.OpEquals, Value: "FR"}, false},
		{"equals numeric string", entity.Rule{Field: "amt_str", Operator: entity.OpEquals, Value: float64(150)}, true},
		{"not_equals", entity.Rule{Field: "country", Operator: entity.OpNotEquals, Value: "FR"}, true},
		{"contains substring", entity.Rule{Field: "note", Operator: entity.OpContains, Value: "urgent"}, true},
		{"contains member", entity.Rule{Field: "tags", Operator: entity.OpContains, Value: "blue"}, true},
		{"not_contains", entity.Rule{Field: "tags", Operator: entity.OpNotContains, Value: "green"}, true},
		{"greater_than", entity.Rule{Field: "amount", Operator: entity.OpGreaterThan, Value: float64(100)}, true},
		{"greater_than string operand", entity.Rule{Field: "amt_str", Operator: entity.OpGreaterThan, Value: "100"}, true},
		{"greater_than non-numeric is false", entity.Rule{Field: "country", Operator: entity.OpGreaterThan, Value: float64(1)}, false},
		{"less_than", entity.Rule{Field: "amount", Operator: entity.OpLessThan, Value: float64(100)}, false},
		{"is_empty on empty string", entity.Rule{Field: "empty", Operator: entity.OpIsEmpty}, true},
		{"is_empty on nil", entity.Rule{Field: "untyped", Operator: entity.OpIsEmpty}, true},
		{"is_empty on empty list", entity.Rule{Field: "listless", Operator: entity.OpIsEmpty}, true},
		{"is_empty on zero is false", entity.Rule{Field: "zero", Operator: entity.OpIsEmpty}, false},
		{"is_not_empty", entity.Rule{Field: "country", Operator: entity.OpIsNotEmpty}, true},
		{"in", entity.Rule{Field: "country", Operator: entity.OpIn, Value: []interface{}{"DE", "AT"}}, true},
		{"not_in", entity.Rule{Field: "country", Operator: entity.OpNotIn, Value: []interface{}{"FR", "ES"}}, true},
		{"unknown operator is false", entity.Rule{Field: "country", Operator: "matches"}, false},
		{"unresolved reference treated as empty", entity.Rule{Field: "missing", Operator: entity.OpIsEmpty}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluateRules(ruleSet("", tc.rule), data)
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluateRulesCombinators(t *testing.T) {
	data := map[string]interface{}{"a": "1", "b": "2"}

	andSet := ruleSet(entity.RuleLogicAnd,
		entity.Rule{Field: "a", Operator: entity.OpEquals, Value: "1"},
		entity.Rule{Field: "b", Operator: entity.OpEquals, Value: "9"},
	)
	if EvaluateRules(andSet, data) {
		t.Error("and combinator should fail when one rule fails")
	}

	orSet := ruleSet(entity.RuleLogicOr,
		entity.Rule{Field: "a", Operator: entity.OpEquals, Value: "9"},
		entity.Rule{Field: "b", Operator: entity.OpEquals, Value: "2"},
	)
	if !EvaluateRules(orSet, data) {
		t.Error("or combinator should pass when one rule passes")
	}

	// 未声明 logic 默认 and
	defaultSet := ruleSet("",
		entity.Rule{Field: "a", Operator: entity.OpEquals, Value: "1"},
		entity.Rule{Field: "b", Operator: entity.OpEquals, Value: "2"},
	)
	if !EvaluateRules(defaultSet, data) {
		t.Error("default combinator should be and")
	}
}

func TestEvaluateRulesIdempotent(t *testing.T) {
	data := map[string]interface{}{"x": "42"}
	rs := ruleSet(entity.RuleLogicAnd, entity.Rule{Field: "x", Operator: entity.OpGreaterThan, Value: "40"})

	first := EvaluateRules(rs, data)
	for i := 0; i < 10; i++ {
		if EvaluateRules(rs, data) != first {
			t.Fatal("evaluation on an unchanged snapshot must be idempotent")
		}
	}
	if len(data) != 1 || data["x"] != "42" {
		t.Error("evaluation must not mutate the snapshot")
	}
}
