// Package condition evaluates access-rule predicates against a request context.
//
// Conditions come in two shapes: a compact string expression
// ("job.status = \"open\"") parsed once into the typed AST, and a structured
// form of comparisons grouped by AND/OR. Evaluation is fail-closed: anything
// malformed yields false plus an error, never a panic.
package condition

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Operator identifies a comparison applied by a Compare node.
type Operator string

// Supported comparison operators.
const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not-equals"
	OpGreaterThan    Operator = "greater-than"
	OpLessThan       Operator = "less-than"
	OpGreaterOrEqual Operator = "greater-or-equal"
	OpLessOrEqual    Operator = "less-or-equal"
	OpContains       Operator = "contains"
	OpStartsWith     Operator = "starts-with"
	OpEndsWith       Operator = "ends-with"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not-in"
	OpExists         Operator = "exists"
)

// GroupOperator combines child expressions.
type GroupOperator string

// Group combinators.
const (
	GroupAnd GroupOperator = "AND"
	GroupOr  GroupOperator = "OR"
)

// ErrMalformed indicates a condition that cannot be interpreted.
var ErrMalformed = errors.New("condition: malformed")

// Expr is a node of the condition AST.
type Expr interface {
	isExpr()
}

// Ref is an operand resolved against the context at evaluation time,
// as opposed to a literal value.
type Ref string

// Compare tests a single dotted-path field against a value.
type Compare struct {
	Field string
	Op    Operator
	Value any
}

// Group combines child expressions with AND or OR semantics.
type Group struct {
	Op       GroupOperator
	Children []Expr
}

func (Compare) isExpr() {}
func (Group) isExpr()   {}

func validOperator(op Operator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
		OpGreaterOrEqual, OpLessOrEqual, OpContains, OpStartsWith,
		OpEndsWith, OpIn, OpNotIn, OpExists:
		return true
	}
	return false
}

// MarshalJSON encodes the comparison in the wire shape used by stored grants.
func (c Compare) MarshalJSON() ([]byte, error) {
	value := c.Value
	if ref, ok := value.(Ref); ok {
		value = map[string]string{"ref": string(ref)}
	}
	return json.Marshal(map[string]any{
		"field":    c.Field,
		"operator": c.Op,
		"value":    value,
	})
}

// MarshalJSON encodes the group with its nested children.
func (g Group) MarshalJSON() ([]byte, error) {
	children := make([]json.RawMessage, 0, len(g.Children))
	for _, child := range g.Children {
		raw, err := json.Marshal(child)
		if err != nil {
			return nil, err
		}
		children = append(children, raw)
	}
	return json.Marshal(map[string]any{
		"operator":   g.Op,
		"conditions": children,
	})
}

type rawCondition struct {
	Field      string            `json:"field"`
	Operator   string            `json:"operator"`
	Value      json.RawMessage   `json:"value"`
	Conditions []json.RawMessage `json:"conditions"`
}

// Decode interprets raw JSON as a condition. It accepts a JSON string holding
// an expression ("a.b >= 10", parsed), a comparison object
// {"field","operator","value"}, or a group {"operator":"AND","conditions":[...]}.
func Decode(data []byte) (Expr, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return Parse(text)
	}

	var raw rawCondition
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if raw.Conditions != nil {
		op := GroupOperator(raw.Operator)
		if op != GroupAnd && op != GroupOr {
			return nil, fmt.Errorf("%w: unknown group operator %q", ErrMalformed, raw.Operator)
		}
		children := make([]Expr, 0, len(raw.Conditions))
		for _, child := range raw.Conditions {
			expr, err := Decode(child)
			if err != nil {
				return nil, err
			}
			children = append(children, expr)
		}
		return Group{Op: op, Children: children}, nil
	}

	op := Operator(raw.Operator)
	if !validOperator(op) {
		return nil, fmt.Errorf("%w: unknown operator %q", ErrMalformed, raw.Operator)
	}
	if raw.Field == "" {
		return nil, fmt.Errorf("%w: comparison requires a field", ErrMalformed)
	}
	value, err := decodeValue(raw.Value)
	if err != nil {
		return nil, err
	}
	return Compare{Field: raw.Field, Op: op, Value: value}, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var refHolder struct {
		Ref *string `json:"ref"`
	}
	if err := json.Unmarshal(raw, &refHolder); err == nil && refHolder.Ref != nil {
		return Ref(*refHolder.Ref), nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return value, nil
}
