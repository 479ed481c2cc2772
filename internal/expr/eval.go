package expr

import (
	"errors"
	"fmt"
)

// ErrInvalidExpression is returned when the RPN stack does not reduce to
// exactly one value, e.g. for empty input or a dangling operator.
var ErrInvalidExpression = errors.New("invalid expression")

func truthy(v float64) bool { return v != 0 }

func bool01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Evaluate runs an RPN token sequence against scalar variable bindings and
// returns the result. Boolean operators yield 1/0. Referencing a variable
// absent from bindings fails with an error naming the identifier; it never
// silently defaults.
func Evaluate(rpn []Token, bindings map[string]float64) (float64, error) {
	stack := make([]float64, 0, len(rpn))

	pop := func() (float64, bool) {
		if len(stack) == 0 {
			return 0, false
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, true
	}

	for _, tok := range rpn {
		switch tok.Kind {
		case TokenLiteral:
			stack = append(stack, tok.Value)

		case TokenVariable:
			v, ok := bindings[tok.Text]
			if !ok {
				return 0, fmt.Errorf("unbound variable %q in expression", tok.Text)
			}
			stack = append(stack, v)

		case TokenOperator:
			if tok.Text == "NOT" {
				a, ok := pop()
				if !ok {
					return 0, ErrInvalidExpression
				}
				stack = append(stack, bool01(!truthy(a)))
				continue
			}
			// Binary operator: operands were pushed in order a, b.
			b, okB := pop()
			a, okA := pop()
			if !okA || !okB {
				return 0, ErrInvalidExpression
			}
			var result float64
			switch tok.Text {
			case ">":
				result = bool01(a > b)
			case ">=":
				result = bool01(a >= b)
			case "<":
				result = bool01(a < b)
			case "<=":
				result = bool01(a <= b)
			case "==":
				result = bool01(a == b)
			case "AND":
				result = bool01(truthy(a) && truthy(b))
			case "OR":
				result = bool01(truthy(a) || truthy(b))
			default:
				return 0, fmt.Errorf("unknown operator %q", tok.Text)
			}
			stack = append(stack, result)

		default:
			return 0, ErrInvalidExpression
		}
	}

	if len(stack) != 1 {
		return 0, ErrInvalidExpression
	}
	return stack[0], nil
}

// EvaluateString parses and evaluates an expression against scalar bindings.
func EvaluateString(expression string, bindings map[string]float64) (float64, error) {
	rpn, err := Parse(expression)
	if err != nil {
		return 0, err
	}
	return Evaluate(rpn, bindings)
}
