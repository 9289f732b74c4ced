package models

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

type ConditionOperator string

const (
	OpEquals       ConditionOperator = "eq"
	OpNotEquals    ConditionOperator = "ne"
	OpGreaterThan  ConditionOperator = "gt"
	OpGreaterEqual ConditionOperator = "gte"
	OpLessThan     ConditionOperator = "lt"
	OpLessEqual    ConditionOperator = "lte"
	OpContains     ConditionOperator = "contains"
	OpIn           ConditionOperator = "in"
	OpExists       ConditionOperator = "exists"
)

var operatorSymbols = map[string]ConditionOperator{
	"==": OpEquals,
	"=":  OpEquals,
	"!=": OpNotEquals,
	">":  OpGreaterThan,
	">=": OpGreaterEqual,
	"<":  OpLessThan,
	"<=": OpLessEqual,
}

// Canonical maps symbolic operators (">", ">=", "==", ...) to their named form.
func (o ConditionOperator) Canonical() ConditionOperator {
	if named, ok := operatorSymbols[strings.TrimSpace(string(o))]; ok {
		return named
	}

	return o
}

// UnmarshalText accepts both "gte" and ">=".
func (o *ConditionOperator) UnmarshalText(text []byte) error {
	*o = ConditionOperator(text).Canonical()

	return nil
}

// Condition is a predicate over an event's data payload. Field is a dotted path,
// e.g. "confidence" or "camera.zone".
type Condition struct {
	Field    string            `json:"field"    validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required,oneof=eq ne gt gte lt lte contains in exists"`
	Value    any               `json:"value,omitempty"`
}

// Evaluate reports whether the condition holds for data. A missing field only
// satisfies "ne" and a negated "exists".
func (c Condition) Evaluate(data map[string]any) (bool, error) {
	actual, found := lookup(data, c.Field)

	c.Operator = c.Operator.Canonical()

	if c.Operator == OpExists {
		want := true
		if c.Value != nil {
			b, err := toBool(c.Value)
			if err != nil {
				return false, err
			}

			want = b
		}

		return found == want, nil
	}

	if !found {
		return c.Operator == OpNotEquals, nil
	}

	switch c.Operator {
	case OpEquals:
		return looseEqual(actual, c.Value), nil
	case OpNotEquals:
		return !looseEqual(actual, c.Value), nil
	case OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual:
		return compareNumbers(c.Operator, actual, c.Value)
	case OpContains:
		return contains(actual, c.Value), nil
	case OpIn:
		return contains(c.Value, actual), nil
	case OpExists:
		return true, nil
	default:
		return false, fmt.Errorf("unsupported condition operator %q", c.Operator)
	}
}

// MatchAll reports whether every condition holds. An empty list always matches.
func MatchAll(conditions []Condition, data map[string]any) (bool, error) {
	for _, c := range conditions {
		ok, err := c.Evaluate(data)
		if err != nil {
			return false, fmt.Errorf("condition on %q: %w", c.Field, err)
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func lookup(data map[string]any, path string) (any, bool) {
	var current any = data

	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		result, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("cannot convert string %q to boolean: %w", b, err)
		}

		return result, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", v)
	}
}

func looseEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)

	_, aString := a.(string)
	_, bString := b.(string)

	if aok && bok && !(aString && bString) {
		return af == bf
	}

	return reflect.DeepEqual(a, b) || fmt.Sprint(a) == fmt.Sprint(b)
}

func compareNumbers(op ConditionOperator, actual, expected any) (bool, error) {
	a, ok := toFloat(actual)
	if !ok {
		return false, fmt.Errorf("cannot compare non-numeric value %v", actual)
	}

	e, ok := toFloat(expected)
	if !ok {
		return false, fmt.Errorf("cannot compare against non-numeric value %v", expected)
	}

	switch op {
	case OpGreaterThan:
		return a > e, nil
	case OpGreaterEqual:
		return a >= e, nil
	case OpLessThan:
		return a < e, nil
	case OpLessEqual:
		return a <= e, nil
	default:
		return false, fmt.Errorf("unsupported numeric operator %q", op)
	}
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, fmt.Sprint(needle))
	case []any:
		for _, item := range h {
			if looseEqual(item, needle) {
				return true
			}
		}
	case []string:
		for _, item := range h {
			if looseEqual(item, needle) {
				return true
			}
		}
	}

	return false
}
