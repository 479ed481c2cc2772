package expr

import "fmt"

// Operator precedence: NOT binds tightest, then comparisons, then AND/OR.
func precedence(op string) int {
	switch op {
	case "NOT":
		return 3
	case ">", ">=", "<", "<=", "==":
		return 2
	case "AND", "OR":
		return 1
	}
	return 0
}

// rightAssociative reports whether an operator groups right-to-left.
// Only unary NOT does; stacked NOTs must apply innermost-first.
func rightAssociative(op string) bool { return op == "NOT" }

// ParseToRPN converts an infix token stream to postfix order using the
// shunting-yard algorithm. Unbalanced parentheses fail with a parse error.
func ParseToRPN(tokens []Token) ([]Token, error) {
	var output []Token
	var ops []Token

	for _, tok := range tokens {
		switch tok.Kind {
		case TokenLiteral, TokenVariable:
			output = append(output, tok)

		case TokenOperator:
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				if top.Kind != TokenOperator {
					break
				}
				if precedence(top.Text) > precedence(tok.Text) ||
					(precedence(top.Text) == precedence(tok.Text) && !rightAssociative(tok.Text)) {
					output = append(output, top)
					ops = ops[:len(ops)-1]
					continue
				}
				break
			}
			ops = append(ops, tok)

		case TokenLParen:
			ops = append(ops, tok)

		case TokenRParen:
			matched := false
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				ops = ops[:len(ops)-1]
				if top.Kind == TokenLParen {
					matched = true
					break
				}
				output = append(output, top)
			}
			if !matched {
				return nil, fmt.Errorf("unbalanced parentheses in expression")
			}
		}
	}

	for len(ops) > 0 {
		top := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		if top.Kind == TokenLParen {
			return nil, fmt.Errorf("unbalanced parentheses in expression")
		}
		output = append(output, top)
	}
	return output, nil
}

// Parse tokenizes and converts an expression to RPN in one step.
func Parse(expression string) ([]Token, error) {
	tokens, err := Tokenize(expression)
	if err != nil {
		return nil, err
	}
	return ParseToRPN(tokens)
}
