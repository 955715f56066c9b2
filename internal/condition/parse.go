package condition

import (
	"fmt"
	"strconv"
	"strings"
)

var comparisonOps = map[string]Operator{
	"=":  OpEquals,
	"==": OpEquals,
	"!=": OpNotEquals,
	">":  OpGreaterThan,
	"<":  OpLessThan,
	">=": OpGreaterOrEqual,
	"<=": OpLessOrEqual,
}

// Parse turns a compact expression of the form "<leftPath> <op> <right>" into
// the typed AST. The left operand is always a dotted context path; the right
// operand is a quoted string literal, a number, a boolean, or another context
// path. Parsing happens once at load time so evaluation stays regex-free.
func Parse(input string) (Expr, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	if len(tokens) != 3 {
		return nil, fmt.Errorf("%w: expected <field> <op> <value>, got %d tokens in %q", ErrMalformed, len(tokens), input)
	}

	op, ok := comparisonOps[tokens[1].text]
	if !ok {
		return nil, fmt.Errorf("%w: unknown operator %q", ErrMalformed, tokens[1].text)
	}
	if tokens[0].quoted {
		return nil, fmt.Errorf("%w: left operand must be a context path", ErrMalformed)
	}

	return Compare{
		Field: tokens[0].text,
		Op:    op,
		Value: rightOperand(tokens[2]),
	}, nil
}

type token struct {
	text   string
	quoted bool
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	var current strings.Builder
	inQuote := false
	flush := func(quoted bool) {
		if current.Len() == 0 && !quoted {
			return
		}
		tokens = append(tokens, token{text: current.String(), quoted: quoted})
		current.Reset()
	}
	for _, r := range strings.TrimSpace(input) {
		switch {
		case r == '"' || r == '\'':
			if inQuote {
				flush(true)
				inQuote = false
			} else {
				inQuote = true
			}
		case r == ' ' && !inQuote:
			flush(false)
		default:
			current.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("%w: unterminated quote", ErrMalformed)
	}
	flush(false)
	return tokens, nil
}

func rightOperand(t token) any {
	if t.quoted {
		return t.text
	}
	if n, err := strconv.ParseFloat(t.text, 64); err == nil {
		return n
	}
	switch t.text {
	case "true":
		return true
	case "false":
		return false
	case "null", "nil":
		return nil
	}
	return Ref(t.text)
}
