package eval

import (
	"strconv"
	"strings"
)

// Compile parses an expression into its evaluable form. Compile never fails:
// malformed input yields a Compiled with KindInvalid, which evaluates to a
// neutral result. Callers are expected to log invalid expressions once at
// template load rather than on every evaluation.
func Compile(source string) *Compiled {
	c := &Compiled{Source: source}
	expr := strings.TrimSpace(source)
	if expr == "" {
		return c
	}

	upper := strings.ToUpper(expr)
	switch {
	case strings.HasPrefix(upper, "IF(") && strings.HasSuffix(expr, ")"):
		if cond := parseConditional(expr[3 : len(expr)-1]); cond != nil {
			c.Kind = KindConditional
			c.cond = cond
		}
	case strings.HasPrefix(upper, "DATE_ADD(") && strings.HasSuffix(expr, ")"):
		if date := parseDateAdd(expr[9 : len(expr)-1]); date != nil {
			c.Kind = KindDateAdd
			c.date = date
		}
	default:
		if cmp := parseComparison(expr); cmp != nil {
			c.Kind = KindComparison
			c.cmp = cmp
			return c
		}
		// Anything else is treated as arithmetic; the allow-list tokenizer
		// decides at evaluation time whether it is acceptable.
		c.Kind = KindArithmetic
		c.arith = &arithmeticExpr{source: expr}
	}

	return c
}

// comparison operators, longest first so ">=" is not read as ">"
var comparisonOps = []Op{OpGE, OpLE, OpEQ, OpNE, OpGT, OpLT}

// parseComparison parses a single `field op literal` expression.
// Returns nil if the expression does not contain exactly one top-level
// comparison operator.
func parseComparison(expr string) *comparisonExpr {
	opIdx, op := findTopLevelOp(expr)
	if opIdx < 0 {
		return nil
	}

	left := strings.TrimSpace(expr[:opIdx])
	right := strings.TrimSpace(expr[opIdx+len(op):])
	if left == "" || right == "" {
		return nil
	}

	// The right side must not itself contain an operator: chained
	// comparisons are not part of the supported grammar.
	if idx, _ := findTopLevelOp(right); idx >= 0 {
		return nil
	}

	return &comparisonExpr{
		left:  parseOperand(left),
		op:    op,
		right: parseOperand(right),
	}
}

// findTopLevelOp locates the first comparison operator outside of braces,
// parentheses, and quoted strings
func findTopLevelOp(expr string) (int, Op) {
	depth := 0
	inQuote := byte(0)
	for i := 0; i < len(expr); i++ {
		ch := expr[i]
		if inQuote != 0 {
			if ch == inQuote {
				inQuote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			inQuote = ch
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		default:
			if depth > 0 {
				continue
			}
			for _, op := range comparisonOps {
				if strings.HasPrefix(expr[i:], string(op)) {
					return i, op
				}
			}
		}
	}
	return -1, ""
}

// parseOperand interprets a token as a field reference or a literal.
// `{name}` and bare identifiers are field references; quoted strings and
// numbers are literals.
func parseOperand(token string) operand {
	token = strings.TrimSpace(token)

	if len(token) >= 2 && token[0] == '{' && token[len(token)-1] == '}' {
		return operand{field: strings.TrimSpace(token[1 : len(token)-1]), isField: true}
	}

	if len(token) >= 2 && (token[0] == '\'' || token[0] == '"') && token[len(token)-1] == token[0] {
		return operand{literal: token[1 : len(token)-1]}
	}

	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return operand{literal: f}
	}

	switch strings.ToLower(token) {
	case "true":
		return operand{literal: true}
	case "false":
		return operand{literal: false}
	}

	if isIdentifier(token) {
		return operand{field: token, isField: true}
	}

	return operand{literal: token}
}

// parseLiteral interprets a token strictly as a literal value
func parseLiteral(token string) any {
	token = strings.TrimSpace(token)

	if len(token) >= 2 && (token[0] == '\'' || token[0] == '"') && token[len(token)-1] == token[0] {
		return token[1 : len(token)-1]
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f
	}
	switch strings.ToLower(token) {
	case "true":
		return true
	case "false":
		return false
	}
	return token
}

// parseConditional parses the inner arguments of IF(cond, a, b)
func parseConditional(inner string) *conditionalExpr {
	parts := splitTopLevel(inner, ',')
	if len(parts) != 3 {
		return nil
	}

	cond := parseComparison(strings.TrimSpace(parts[0]))
	if cond == nil {
		return nil
	}

	return &conditionalExpr{
		cond:      cond,
		whenTrue:  parseLiteral(parts[1]),
		whenFalse: parseLiteral(parts[2]),
	}
}

// parseDateAdd parses the inner arguments of DATE_ADD(base, INTERVAL n UNIT)
func parseDateAdd(inner string) *dateAddExpr {
	parts := splitTopLevel(inner, ',')
	if len(parts) != 2 {
		return nil
	}

	interval := strings.Fields(strings.TrimSpace(parts[1]))
	if len(interval) != 3 || !strings.EqualFold(interval[0], "INTERVAL") {
		return nil
	}

	n, err := strconv.Atoi(interval[1])
	if err != nil {
		return nil
	}

	unit := dateUnit(strings.ToUpper(interval[2]))
	switch unit {
	case unitDay, unitMonth, unitYear:
	default:
		return nil
	}

	return &dateAddExpr{
		base: parseOperand(parts[0]),
		n:    n,
		unit: unit,
	}
}

// splitTopLevel splits on sep, ignoring separators nested inside parentheses,
// braces, or quotes
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	inQuote := byte(0)
	start := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inQuote != 0 {
			if ch == inQuote {
				inQuote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			inQuote = ch
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// isIdentifier reports whether the token looks like a bare field name
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'a' && ch <= 'z':
		case ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
			if i == 0 {
				return false
			}
		case ch == '_' || ch == '.':
		default:
			return false
		}
	}
	return true
}
