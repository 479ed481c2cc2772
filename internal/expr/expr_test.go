package expr

import (
	"errors"
	"strings"
	"testing"
)

func TestTokenize(t *testing.T) {
	tokens, err := Tokenize("(illum_a >= 0.5) AND NOT shadow")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}

	wantKinds := []TokenKind{
		TokenLParen, TokenVariable, TokenOperator, TokenLiteral, TokenRParen,
		TokenOperator, TokenOperator, TokenVariable,
	}
	if len(tokens) != len(wantKinds) {
		t.Fatalf("got %d tokens, want %d", len(tokens), len(wantKinds))
	}
	for i, kind := range wantKinds {
		if tokens[i].Kind != kind {
			t.Errorf("token %d kind = %v, want %v", i, tokens[i].Kind, kind)
		}
	}
	if tokens[2].Text != ">=" {
		t.Errorf("comparison token = %q, want >=", tokens[2].Text)
	}
	if tokens[3].Value != 0.5 {
		t.Errorf("literal value = %v, want 0.5", tokens[3].Value)
	}
}

func TestTokenizeKeywordsCaseInsensitive(t *testing.T) {
	tokens, err := Tokenize("a and b or not c")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var ops []string
	for _, tok := range tokens {
		if tok.Kind == TokenOperator {
			ops = append(ops, tok.Text)
		}
	}
	if len(ops) != 3 || ops[0] != "AND" || ops[1] != "OR" || ops[2] != "NOT" {
		t.Errorf("operators = %v, want [AND OR NOT]", ops)
	}
}

func TestTokenizeBadLexeme(t *testing.T) {
	for _, expression := range []string{"a + b", "a & b", "a = b", "a # 1"} {
		if _, err := Tokenize(expression); err == nil {
			t.Errorf("Tokenize(%q): expected error", expression)
		}
	}

	_, err := Tokenize("a ? b")
	if err == nil || !strings.Contains(err.Error(), "?") {
		t.Errorf("error should name the offending lexeme, got %v", err)
	}
}

func TestEvaluateComparisons(t *testing.T) {
	cases := []struct {
		expression string
		bindings   map[string]float64
		want       float64
	}{
		{"A > 5 AND B <= 2", map[string]float64{"A": 6, "B": 2}, 1},
		{"A > 5 AND B <= 2", map[string]float64{"A": 4, "B": 2}, 0},
		{"NOT A", map[string]float64{"A": 1}, 0},
		{"NOT A", map[string]float64{"A": 0}, 1},
		{"A == 0.25", map[string]float64{"A": 0.25}, 1},
		{"A < 1 OR B < 1", map[string]float64{"A": 5, "B": 0.5}, 1},
		{"3 > 2", nil, 1},
		// Truthiness: any non-zero operand counts as true for AND/OR.
		{"A AND B", map[string]float64{"A": 0.3, "B": 7}, 1},
		{"A OR B", map[string]float64{"A": 0, "B": 0}, 0},
		{"NOT A", map[string]float64{"A": 0.5}, 0},
		// NOT binds tighter than comparisons and booleans.
		{"NOT A AND B", map[string]float64{"A": 0, "B": 1}, 1},
		{"NOT (A AND B)", map[string]float64{"A": 1, "B": 1}, 0},
	}
	for _, tc := range cases {
		got, err := EvaluateString(tc.expression, tc.bindings)
		if err != nil {
			t.Errorf("EvaluateString(%q): %v", tc.expression, err)
			continue
		}
		if got != tc.want {
			t.Errorf("EvaluateString(%q) = %v, want %v", tc.expression, got, tc.want)
		}
	}
}

func TestEvaluateUnboundVariable(t *testing.T) {
	_, err := EvaluateString("C > 1", map[string]float64{"A": 1})
	if err == nil {
		t.Fatal("expected unbound variable error")
	}
	if !strings.Contains(err.Error(), "C") {
		t.Errorf("error should name the unbound identifier, got %v", err)
	}
}

func TestParseUnbalancedParens(t *testing.T) {
	for _, expression := range []string{"(A > 1", "A > 1)", "((A OR B) AND C"} {
		if _, err := Parse(expression); err == nil {
			t.Errorf("Parse(%q): expected unbalanced parentheses error", expression)
		}
	}
}

func TestEvaluateInvalidExpression(t *testing.T) {
	for _, expression := range []string{"", "AND", "1 2", "A >", "NOT"} {
		rpn, err := Parse(expression)
		if err != nil {
			continue // some fail at parse, which is fine
		}
		_, err = Evaluate(rpn, map[string]float64{"A": 1})
		if !errors.Is(err, ErrInvalidExpression) {
			t.Errorf("Evaluate(%q) err = %v, want ErrInvalidExpression", expression, err)
		}
	}
}

func TestFreeVariables(t *testing.T) {
	vars, err := FreeVariables("(illum > 0.5) AND NOT slope OR illum == 1")
	if err != nil {
		t.Fatalf("FreeVariables: %v", err)
	}
	if len(vars) != 2 || !vars["illum"] || !vars["slope"] {
		t.Errorf("vars = %v, want {illum, slope}", vars)
	}

	vars, err = FreeVariables("1 < 2")
	if err != nil {
		t.Fatalf("FreeVariables: %v", err)
	}
	if len(vars) != 0 {
		t.Errorf("constant expression vars = %v, want none", vars)
	}
}
