package eval

// Kind discriminates the expression forms the evaluator supports.
// Expressions originate from stored template configuration, so anything that
// does not match a supported form compiles to KindInvalid and evaluates to a
// neutral result instead of failing.
type Kind int

const (
	KindInvalid Kind = iota
	KindComparison
	KindConditional
	KindDateAdd
	KindArithmetic
)

// Op is a comparison operator
type Op string

const (
	OpGT Op = ">"
	OpLT Op = "<"
	OpGE Op = ">="
	OpLE Op = "<="
	OpEQ Op = "=="
	OpNE Op = "!="
)

// operand is either a field reference or a literal value
type operand struct {
	field   string
	literal any
	isField bool
}

// comparisonExpr is a single `field op literal` check
type comparisonExpr struct {
	left  operand
	op    Op
	right operand
}

// conditionalExpr is IF(condition, trueLiteral, falseLiteral)
type conditionalExpr struct {
	cond      *comparisonExpr
	whenTrue  any
	whenFalse any
}

// dateUnit is the interval unit of a DATE_ADD expression
type dateUnit string

const (
	unitDay   dateUnit = "DAY"
	unitMonth dateUnit = "MONTH"
	unitYear  dateUnit = "YEAR"
)

// dateAddExpr is DATE_ADD(base, INTERVAL n UNIT)
type dateAddExpr struct {
	base operand
	n    int
	unit dateUnit
}

// arithmeticExpr holds the raw source of a sandboxed arithmetic expression.
// Field references are substituted at evaluation time and the result is
// tokenized against a strict allow-list before anything is computed.
type arithmeticExpr struct {
	source string
}

// Compiled is a parsed expression ready for repeated evaluation
type Compiled struct {
	Source string
	Kind   Kind

	cmp   *comparisonExpr
	cond  *conditionalExpr
	date  *dateAddExpr
	arith *arithmeticExpr
}

// Valid returns true if the expression compiled to a supported form
func (c *Compiled) Valid() bool {
	return c.Kind != KindInvalid
}
