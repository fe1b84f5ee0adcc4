package eval

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateLayout is the ISO date format used by stored expressions
const dateLayout = "2006-01-02"

// Evaluate compiles and evaluates an expression in one call. The result is a
// float64, string, or bool scalar, or nil when the expression is malformed or
// cannot be computed. Evaluation is total: it never panics and never returns
// an error, because rule configuration problems must degrade to a neutral
// result rather than deny a user forward progress.
func Evaluate(expression string, data map[string]any) any {
	return Compile(expression).Eval(data)
}

// EvaluateBool evaluates an expression as a condition. Missing fields,
// malformed expressions, and non-boolean results all degrade to false.
func EvaluateBool(expression string, data map[string]any) bool {
	return Compile(expression).EvalBool(data)
}

// Eval evaluates the compiled expression against flat form data
func (c *Compiled) Eval(data map[string]any) any {
	switch c.Kind {
	case KindComparison:
		return c.cmp.eval(data)
	case KindConditional:
		if c.cond.cond.eval(data) {
			return c.cond.whenTrue
		}
		return c.cond.whenFalse
	case KindDateAdd:
		return c.date.eval(data)
	case KindArithmetic:
		return c.arith.eval(data)
	default:
		return nil
	}
}

// EvalBool evaluates the compiled expression as a condition
func (c *Compiled) EvalBool(data map[string]any) bool {
	switch v := c.Eval(data).(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != "" && !strings.EqualFold(v, "false") && v != "0"
	default:
		return false
	}
}

// resolve returns the operand's value against the data map. A missing field
// degrades to nil; the comparison decides the neutral zero value.
func (o operand) resolve(data map[string]any) any {
	if !o.isField {
		return o.literal
	}
	if data == nil {
		return nil
	}
	if v, ok := data[o.field]; ok {
		return v
	}
	return nil
}

// eval performs the comparison, coercing both sides numerically when
// possible and falling back to string comparison otherwise
func (e *comparisonExpr) eval(data map[string]any) bool {
	left := e.left.resolve(data)
	right := e.right.resolve(data)

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)

	// Missing field against a numeric literal degrades to 0
	if left == nil && rok {
		lf, lok = 0, true
	}
	if right == nil && lok {
		rf, rok = 0, true
	}

	if lok && rok {
		switch e.op {
		case OpGT:
			return lf > rf
		case OpLT:
			return lf < rf
		case OpGE:
			return lf >= rf
		case OpLE:
			return lf <= rf
		case OpEQ:
			return lf == rf
		case OpNE:
			return lf != rf
		}
		return false
	}

	ls := toString(left)
	rs := toString(right)
	switch e.op {
	case OpEQ:
		return ls == rs
	case OpNE:
		return ls != rs
	case OpGT:
		return ls > rs
	case OpLT:
		return ls < rs
	case OpGE:
		return ls >= rs
	case OpLE:
		return ls <= rs
	}
	return false
}

// eval computes the date arithmetic, returning an ISO date string or ""
// when the base date is absent or unparsable
func (e *dateAddExpr) eval(data map[string]any) any {
	raw := toString(e.base.resolve(data))
	if raw == "" {
		return ""
	}

	base, err := time.Parse(dateLayout, raw)
	if err != nil {
		return ""
	}

	switch e.unit {
	case unitDay:
		base = base.AddDate(0, 0, e.n)
	case unitMonth:
		base = base.AddDate(0, e.n, 0)
	case unitYear:
		base = base.AddDate(e.n, 0, 0)
	}

	return base.Format(dateLayout)
}

// eval substitutes field references, then tokenizes and computes the
// arithmetic expression. Any character outside the allow-list after
// substitution rejects the whole expression: stored configuration must never
// reach anything resembling code execution.
func (e *arithmeticExpr) eval(data map[string]any) any {
	substituted := substituteFields(e.source, data)

	tokens, ok := tokenizeArithmetic(substituted)
	if !ok || len(tokens) == 0 {
		return nil
	}

	result, ok := evalTokens(tokens)
	if !ok {
		return nil
	}
	return result
}

// substituteFields replaces every {field} reference with the field's value,
// or 0 when the field is missing or non-numeric
func substituteFields(source string, data map[string]any) string {
	var b strings.Builder
	for i := 0; i < len(source); {
		if source[i] != '{' {
			b.WriteByte(source[i])
			i++
			continue
		}
		end := strings.IndexByte(source[i:], '}')
		if end < 0 {
			b.WriteByte(source[i])
			i++
			continue
		}
		name := strings.TrimSpace(source[i+1 : i+end])
		if v, ok := data[name]; ok {
			if f, fok := toFloat(v); fok {
				b.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
			} else {
				b.WriteString("0")
			}
		} else {
			b.WriteString("0")
		}
		i += end + 1
	}
	return b.String()
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOperator
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	num  float64
	op   byte
}

// tokenizeArithmetic scans the substituted expression with a strict
// allow-list: digits, decimal points, + - * / ( ) and whitespace. Any other
// character rejects the entire expression.
func tokenizeArithmetic(s string) ([]token, bool) {
	var tokens []token
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch >= '0' && ch <= '9' || ch == '.':
			j := i
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '.') {
				j++
			}
			f, err := strconv.ParseFloat(s[i:j], 64)
			if err != nil {
				return nil, false
			}
			tokens = append(tokens, token{kind: tokNumber, num: f})
			i = j
		case ch == '+' || ch == '-' || ch == '*' || ch == '/':
			tokens = append(tokens, token{kind: tokOperator, op: ch})
			i++
		case ch == '(':
			tokens = append(tokens, token{kind: tokLParen})
			i++
		case ch == ')':
			tokens = append(tokens, token{kind: tokRParen})
			i++
		default:
			return nil, false
		}
	}
	return tokens, true
}

// evalTokens evaluates the token stream with a standard two-stack
// shunting-yard pass
func evalTokens(tokens []token) (float64, bool) {
	var nums []float64
	var ops []byte

	apply := func() bool {
		if len(nums) < 2 || len(ops) == 0 {
			return false
		}
		b := nums[len(nums)-1]
		a := nums[len(nums)-2]
		op := ops[len(ops)-1]
		nums = nums[:len(nums)-2]
		ops = ops[:len(ops)-1]

		var r float64
		switch op {
		case '+':
			r = a + b
		case '-':
			r = a - b
		case '*':
			r = a * b
		case '/':
			if b == 0 {
				return false
			}
			r = a / b
		}
		nums = append(nums, r)
		return true
	}

	precedence := func(op byte) int {
		if op == '*' || op == '/' {
			return 2
		}
		return 1
	}

	expectOperand := true
	for _, t := range tokens {
		switch t.kind {
		case tokNumber:
			if !expectOperand {
				return 0, false
			}
			nums = append(nums, t.num)
			expectOperand = false
		case tokOperator:
			// Unary minus: treat a leading '-' as 0 - x
			if expectOperand {
				if t.op != '-' && t.op != '+' {
					return 0, false
				}
				nums = append(nums, 0)
			}
			for len(ops) > 0 && ops[len(ops)-1] != '(' && precedence(ops[len(ops)-1]) >= precedence(t.op) {
				if !apply() {
					return 0, false
				}
			}
			ops = append(ops, t.op)
			expectOperand = true
		case tokLParen:
			if !expectOperand {
				return 0, false
			}
			ops = append(ops, '(')
		case tokRParen:
			if expectOperand {
				return 0, false
			}
			for len(ops) > 0 && ops[len(ops)-1] != '(' {
				if !apply() {
					return 0, false
				}
			}
			if len(ops) == 0 {
				return 0, false
			}
			ops = ops[:len(ops)-1]
		}
	}

	if expectOperand {
		return 0, false
	}
	for len(ops) > 0 {
		if ops[len(ops)-1] == '(' {
			return 0, false
		}
		if !apply() {
			return 0, false
		}
	}
	if len(nums) != 1 {
		return 0, false
	}
	return nums[0], true
}

// toFloat coerces scalars the form data map may contain into a float64
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// toString renders a scalar as a string for comparison purposes
func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}
