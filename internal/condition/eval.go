package condition

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Evaluate walks the AST against a context bag. The boolean result is only
// meaningful when err is nil; callers on the authorization path treat any
// error as a deny.
func Evaluate(expr Expr, ctx map[string]any) (bool, error) {
	switch node := expr.(type) {
	case Compare:
		return evalCompare(node, ctx)
	case Group:
		return evalGroup(node, ctx)
	case nil:
		return false, fmt.Errorf("%w: nil expression", ErrMalformed)
	default:
		return false, fmt.Errorf("%w: unknown node %T", ErrMalformed, expr)
	}
}

func evalGroup(g Group, ctx map[string]any) (bool, error) {
	switch g.Op {
	case GroupAnd:
		// Vacuously true over no children.
		for _, child := range g.Children {
			ok, err := Evaluate(child, ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case GroupOr:
		// An empty OR matches nothing.
		for _, child := range g.Children {
			ok, err := Evaluate(child, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown group operator %q", ErrMalformed, g.Op)
	}
}

func evalCompare(c Compare, ctx map[string]any) (bool, error) {
	if !validOperator(c.Op) {
		return false, fmt.Errorf("%w: unknown operator %q", ErrMalformed, c.Op)
	}
	left, leftOK := Lookup(ctx, c.Field)

	right := c.Value
	rightOK := true
	if ref, ok := right.(Ref); ok {
		right, rightOK = Lookup(ctx, string(ref))
	}

	switch c.Op {
	case OpExists:
		return leftOK && left != nil, nil
	case OpEquals:
		if !leftOK || !rightOK {
			return false, nil
		}
		return looseEquals(left, right), nil
	case OpNotEquals:
		// A missing field is not-equal to any present value.
		if !leftOK || !rightOK {
			return leftOK != rightOK, nil
		}
		return !looseEquals(left, right), nil
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		if !leftOK || !rightOK {
			return false, nil
		}
		return orderedCompare(c.Op, left, right), nil
	case OpContains:
		if !leftOK || !rightOK {
			return false, nil
		}
		return contains(left, right), nil
	case OpStartsWith:
		return leftOK && rightOK && strings.HasPrefix(toString(left), toString(right)), nil
	case OpEndsWith:
		return leftOK && rightOK && strings.HasSuffix(toString(left), toString(right)), nil
	case OpIn:
		if !leftOK || !rightOK {
			return false, nil
		}
		return member(right, left), nil
	case OpNotIn:
		if !leftOK || !rightOK {
			return false, nil
		}
		return !member(right, left), nil
	}
	return false, fmt.Errorf("%w: unhandled operator %q", ErrMalformed, c.Op)
}

// Lookup resolves a dotted path inside nested map[string]any values.
// The second result is false when any path segment is missing.
func Lookup(ctx map[string]any, path string) (any, bool) {
	if ctx == nil || path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var current any = ctx
	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func looseEquals(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as == bs
		}
		return false
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ab == bb
		}
		return false
	}
	return a == b
}

func orderedCompare(op Operator, a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch op {
		case OpGreaterThan:
			return af > bf
		case OpLessThan:
			return af < bf
		case OpGreaterOrEqual:
			return af >= bf
		case OpLessOrEqual:
			return af <= bf
		}
		return false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if !aok || !bok {
		return false
	}
	switch op {
	case OpGreaterThan:
		return as > bs
	case OpLessThan:
		return as < bs
	case OpGreaterOrEqual:
		return as >= bs
	case OpLessOrEqual:
		return as <= bs
	}
	return false
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, toString(needle))
	case []any:
		for _, item := range h {
			if looseEquals(item, needle) {
				return true
			}
		}
	case []string:
		for _, item := range h {
			if item == toString(needle) {
				return true
			}
		}
	}
	return false
}

func member(set, value any) bool {
	switch s := set.(type) {
	case []any:
		for _, item := range s {
			if looseEquals(item, value) {
				return true
			}
		}
	case []string:
		for _, item := range s {
			if item == toString(value) {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
