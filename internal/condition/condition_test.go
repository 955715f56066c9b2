package condition

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseComparison(t *testing.T) {
	expr, err := Parse(`job.assignedTo = user.id`)
	require.NoError(t, err)
	cmp, ok := expr.(Compare)
	require.True(t, ok)
	require.Equal(t, "job.assignedTo", cmp.Field)
	require.Equal(t, OpEquals, cmp.Op)
	require.Equal(t, Ref("user.id"), cmp.Value)
}

func TestParseQuotedLiteral(t *testing.T) {
	expr, err := Parse(`report.status != "in progress"`)
	require.NoError(t, err)
	cmp := expr.(Compare)
	require.Equal(t, OpNotEquals, cmp.Op)
	require.Equal(t, "in progress", cmp.Value)
}

func TestParseNumericLiteral(t *testing.T) {
	expr, err := Parse("equipment.voltage >= 480")
	require.NoError(t, err)
	cmp := expr.(Compare)
	require.Equal(t, OpGreaterOrEqual, cmp.Op)
	require.Equal(t, float64(480), cmp.Value)
}

func TestParseMalformed(t *testing.T) {
	cases := []string{
		"",
		"job.status",
		"job.status ~ open",
		`job.status = "unterminated`,
		`"literal" = job.status`,
		"a b c d",
	}
	for _, input := range cases {
		_, err := Parse(input)
		require.ErrorIs(t, err, ErrMalformed, "input %q", input)
	}
}

func TestEvaluateNumericThreshold(t *testing.T) {
	expr := Compare{Field: "age", Op: OpGreaterThan, Value: float64(18)}

	ok, err := Evaluate(expr, map[string]any{"age": 21})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Evaluate(expr, map[string]any{"age": 15})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateMissingOperatorFailsClosed(t *testing.T) {
	ok, err := Evaluate(Compare{Field: "age", Value: 18}, map[string]any{"age": 21})
	require.ErrorIs(t, err, ErrMalformed)
	require.False(t, ok)
}

func TestEvaluateNilExpressionFailsClosed(t *testing.T) {
	ok, err := Evaluate(nil, map[string]any{"age": 21})
	require.ErrorIs(t, err, ErrMalformed)
	require.False(t, ok)
}

func TestEvaluateMissingField(t *testing.T) {
	ctx := map[string]any{"job": map[string]any{"status": "open"}}

	ok, err := Evaluate(Compare{Field: "job.owner", Op: OpEquals, Value: "alice"}, ctx)
	require.NoError(t, err)
	require.False(t, ok, "comparisons against a missing field never match")

	ok, err = Evaluate(Compare{Field: "job.owner", Op: OpNotEquals, Value: "alice"}, ctx)
	require.NoError(t, err)
	require.True(t, ok, "a missing field is not-equal to any present value")

	ok, err = Evaluate(Compare{Field: "job.owner", Op: OpExists}, ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateRefOperand(t *testing.T) {
	ctx := map[string]any{
		"job":  map[string]any{"assignedTo": "u-17"},
		"user": map[string]any{"id": "u-17"},
	}
	expr, err := Parse("job.assignedTo = user.id")
	require.NoError(t, err)

	ok, err := Evaluate(expr, ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ctx["user"] = map[string]any{"id": "u-99"}
	ok, err = Evaluate(expr, ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateGroups(t *testing.T) {
	ctx := map[string]any{"division": "south", "years": 4}

	and := Group{Op: GroupAnd, Children: []Expr{
		Compare{Field: "division", Op: OpEquals, Value: "south"},
		Compare{Field: "years", Op: OpGreaterOrEqual, Value: 3},
	}}
	ok, err := Evaluate(and, ctx)
	require.NoError(t, err)
	require.True(t, ok)

	or := Group{Op: GroupOr, Children: []Expr{
		Compare{Field: "division", Op: OpEquals, Value: "north"},
		Compare{Field: "years", Op: OpLessThan, Value: 2},
	}}
	ok, err = Evaluate(or, ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateEmptyGroups(t *testing.T) {
	ok, err := Evaluate(Group{Op: GroupAnd}, nil)
	require.NoError(t, err)
	require.True(t, ok, "empty AND is vacuously true")

	ok, err = Evaluate(Group{Op: GroupOr}, nil)
	require.NoError(t, err)
	require.False(t, ok, "empty OR matches nothing")
}

func TestEvaluateContainsAndMembership(t *testing.T) {
	ctx := map[string]any{
		"tags":   []any{"neta", "field"},
		"name":   "substation alpha",
		"region": "midwest",
	}

	ok, err := Evaluate(Compare{Field: "tags", Op: OpContains, Value: "neta"}, ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Evaluate(Compare{Field: "name", Op: OpContains, Value: "station"}, ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Evaluate(Compare{Field: "region", Op: OpIn, Value: []any{"midwest", "south"}}, ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Evaluate(Compare{Field: "region", Op: OpNotIn, Value: []any{"midwest"}}, ctx)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = Evaluate(Compare{Field: "name", Op: OpStartsWith, Value: "sub"}, ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Evaluate(Compare{Field: "name", Op: OpEndsWith, Value: "alpha"}, ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDecodeStructured(t *testing.T) {
	raw := []byte(`{"operator":"AND","conditions":[
		{"field":"age","operator":"greater-than","value":18},
		{"field":"division","operator":"equals","value":"south"}
	]}`)
	expr, err := Decode(raw)
	require.NoError(t, err)

	group, ok := expr.(Group)
	require.True(t, ok)
	require.Equal(t, GroupAnd, group.Op)
	require.Len(t, group.Children, 2)
}

func TestDecodeStringExpression(t *testing.T) {
	expr, err := Decode([]byte(`"age > 18"`))
	require.NoError(t, err)
	require.Equal(t, Compare{Field: "age", Op: OpGreaterThan, Value: float64(18)}, expr)
}

func TestDecodeRejectsUnknownOperator(t *testing.T) {
	_, err := Decode([]byte(`{"field":"age","operator":"between","value":18}`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestJSONRoundTrip(t *testing.T) {
	original := Group{Op: GroupOr, Children: []Expr{
		Compare{Field: "job.assignedTo", Op: OpEquals, Value: Ref("user.id")},
		Compare{Field: "job.priority", Op: OpGreaterOrEqual, Value: float64(3)},
	}}
	raw, err := json.Marshal(original)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, original, decoded)
}
