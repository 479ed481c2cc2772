// Package expr implements the layer-algebra expression language: a tokenizer,
// a shunting-yard parser producing RPN, a stack evaluator, and whole-volume
// evaluation over named raster layers.
//
// The language covers numeric literals, layer identifiers, the comparisons
// > >= < <= ==, the case-insensitive keywords AND OR NOT, and parentheses.
// Boolean results are 1/0; AND and OR treat any non-zero operand as true.
package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// TokenKind discriminates Token values.
type TokenKind int

const (
	TokenLiteral TokenKind = iota
	TokenVariable
	TokenOperator
	TokenLParen
	TokenRParen
)

// Token is one lexeme of an expression. Literal tokens carry Value;
// variable and operator tokens carry Text (operators in canonical
// upper-case form, e.g. "AND").
type Token struct {
	Kind  TokenKind
	Value float64
	Text  string
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Tokenize splits an expression into tokens. Any character that cannot
// start a token fails with an error naming the offending lexeme.
func Tokenize(expression string) ([]Token, error) {
	var tokens []Token
	i := 0
	n := len(expression)
	for i < n {
		c := expression[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '(':
			tokens = append(tokens, Token{Kind: TokenLParen, Text: "("})
			i++

		case c == ')':
			tokens = append(tokens, Token{Kind: TokenRParen, Text: ")"})
			i++

		case c == '>' || c == '<':
			op := string(c)
			i++
			if i < n && expression[i] == '=' {
				op += "="
				i++
			}
			tokens = append(tokens, Token{Kind: TokenOperator, Text: op})

		case c == '=':
			if i+1 >= n || expression[i+1] != '=' {
				return nil, fmt.Errorf("unexpected character %q in expression", string(c))
			}
			tokens = append(tokens, Token{Kind: TokenOperator, Text: "=="})
			i += 2

		case isDigit(c) || (c == '.' && i+1 < n && isDigit(expression[i+1])):
			start := i
			for i < n && (isDigit(expression[i]) || expression[i] == '.') {
				i++
			}
			lexeme := expression[start:i]
			val, err := strconv.ParseFloat(lexeme, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed number %q in expression", lexeme)
			}
			tokens = append(tokens, Token{Kind: TokenLiteral, Value: val, Text: lexeme})

		case isIdentStart(c):
			start := i
			for i < n && isIdentPart(expression[i]) {
				i++
			}
			word := expression[start:i]
			switch strings.ToUpper(word) {
			case "AND", "OR", "NOT":
				tokens = append(tokens, Token{Kind: TokenOperator, Text: strings.ToUpper(word)})
			default:
				tokens = append(tokens, Token{Kind: TokenVariable, Text: word})
			}

		default:
			return nil, fmt.Errorf("unexpected character %q in expression", string(c))
		}
	}
	return tokens, nil
}

// FreeVariables tokenizes an expression and collects the set of referenced
// layer identifiers. Used before evaluation to decide which layers must be
// fetched and to report missing layers precisely.
func FreeVariables(expression string) (map[string]bool, error) {
	tokens, err := Tokenize(expression)
	if err != nil {
		return nil, err
	}
	vars := make(map[string]bool)
	for _, tok := range tokens {
		if tok.Kind == TokenVariable {
			vars[tok.Text] = true
		}
	}
	return vars, nil
}
