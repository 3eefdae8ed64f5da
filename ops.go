package formula

import (
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Parsing priorities. Lower binds tighter.
const (
	prioLeaf = iota
	prioUnary
	prioPow
	prioMul
	prioAdd
	prioMember
	prioCmp
	prioAnd
	prioOr
	prioRange
	prioCond
	// prioList is the priority of a bare comma-separated list, looser than
	// any operator.
	prioList
)

// maxRange is the largest number of items a range may expand to.
const maxRange = 100000

type operator struct {
	// text is the operator token.
	text string
	// prio is the priority value. Lower is more binding.
	prio int
	// unary indicates a prefix operator.
	unary bool
	// cons is the list of accepted operand types. The index of the matching
	// constraint is passed to apply.
	cons []TypeConstraint
	// apply computes the operator's value from operands that have passed
	// cons. It is nil for operators the parser rewrites into other nodes.
	apply func(ev *Evaluator, k int, args []Value, n node) Value
}

var (
	numNum   = []TypeConstraint{Sig(TypeNumber, TypeNumber)}
	boolBool = []TypeConstraint{Sig(TypeBoolean, TypeBoolean)}

	opAdd = &operator{"+", prioAdd, false, numNum, func(ev *Evaluator, _ int, a []Value, n node) Value {
		return ev.arith((*apd.Context).Add, "+", a[0].(Number), a[1].(Number), n)
	}}
	opSub = &operator{"-", prioAdd, false, numNum, func(ev *Evaluator, _ int, a []Value, n node) Value {
		return ev.arith((*apd.Context).Sub, "-", a[0].(Number), a[1].(Number), n)
	}}
	opMul = &operator{"*", prioMul, false, numNum, func(ev *Evaluator, _ int, a []Value, n node) Value {
		return ev.arith((*apd.Context).Mul, "*", a[0].(Number), a[1].(Number), n)
	}}
	opDiv = &operator{"/", prioMul, false, numNum, func(ev *Evaluator, _ int, a []Value, n node) Value {
		return ev.divide((*apd.Context).Quo, "/", a[0].(Number), a[1].(Number), n)
	}}
	opRem = &operator{"%", prioMul, false, numNum, func(ev *Evaluator, _ int, a []Value, n node) Value {
		return ev.divide((*apd.Context).Rem, "%", a[0].(Number), a[1].(Number), n)
	}}
	opPow = &operator{"^", prioPow, false, numNum, func(ev *Evaluator, _ int, a []Value, n node) Value {
		return ev.pow(a[0].(Number), a[1].(Number), n)
	}}
	opEq = &operator{"=", prioCmp, false, []TypeConstraint{Sig(TypeAny, TypeAny)}, func(_ *Evaluator, _ int, a []Value, _ node) Value {
		return Boolean(Equal(a[0], a[1]))
	}}
	opLess = &operator{"<", prioCmp, false, ordered, func(_ *Evaluator, k int, a []Value, _ node) Value {
		return Boolean(compare(k, a[0], a[1]) < 0)
	}}
	opGreater = &operator{">", prioCmp, false, ordered, func(_ *Evaluator, k int, a []Value, _ node) Value {
		return Boolean(compare(k, a[0], a[1]) > 0)
	}}
	// & is logical and on booleans and concatenation on text and numbers.
	opAnd = &operator{"&", prioAnd, false, []TypeConstraint{
		Sig(TypeBoolean, TypeBoolean),
		Sig(TypeText|TypeNumber, TypeText|TypeNumber),
	}, func(_ *Evaluator, k int, a []Value, _ node) Value {
		if k == 0 {
			return a[0].(Boolean) && a[1].(Boolean)
		}
		return Text(display(a[0]) + display(a[1]))
	}}
	opOr = &operator{"|", prioOr, false, boolBool, func(_ *Evaluator, _ int, a []Value, _ node) Value {
		return a[0].(Boolean) || a[1].(Boolean)
	}}
	opRange = &operator{":", prioRange, false, numNum, func(ev *Evaluator, _ int, a []Value, n node) Value {
		return ev.span(a[0].(Number), a[1].(Number), n)
	}}
	// The parser rewrites these into reference and conditional nodes.
	opMember = &operator{text: ".", prio: prioMember}
	opCond   = &operator{text: "?", prio: prioCond}

	opNeg = &operator{"-", prioUnary, true, []TypeConstraint{Sig(TypeNumber)}, func(_ *Evaluator, _ int, a []Value, _ node) Value {
		return Number{new(apd.Decimal).Neg(a[0].(Number).dec())}
	}}
	opPlus = &operator{"+", prioUnary, true, []TypeConstraint{Sig(TypeNumber)}, func(_ *Evaluator, _ int, a []Value, _ node) Value {
		return a[0]
	}}
	opNot = &operator{"!", prioUnary, true, []TypeConstraint{Sig(TypeBoolean)}, func(_ *Evaluator, _ int, a []Value, _ node) Value {
		return !a[0].(Boolean)
	}}
	opTilde = &operator{"~", prioUnary, true, []TypeConstraint{Sig(TypeBoolean)}, func(_ *Evaluator, _ int, a []Value, _ node) Value {
		return !a[0].(Boolean)
	}}

	ordered = []TypeConstraint{
		Sig(TypeNumber, TypeNumber),
		Sig(TypeText, TypeText),
	}
)

// binop gets a binary operator for a token string. If there is no such binary
// operator, then the result is nil.
func binop(text string) *operator {
	switch text {
	case "+":
		return opAdd
	case "-":
		return opSub
	case "*":
		return opMul
	case "/":
		return opDiv
	case "%":
		return opRem
	case "^":
		return opPow
	case "=":
		return opEq
	case "<":
		return opLess
	case ">":
		return opGreater
	case "&":
		return opAnd
	case "|":
		return opOr
	case ":":
		return opRange
	case ".":
		return opMember
	case "?":
		return opCond
	default:
		return nil
	}
}

// unop gets a unary operator for a token string. If there is no such unary
// operator, then the result is nil.
func unop(text string) *operator {
	switch text {
	case "-":
		return opNeg
	case "+":
		return opPlus
	case "!":
		return opNot
	case "~":
		return opTilde
	default:
		return nil
	}
}

// compare orders two values matched by the ordered constraints.
func compare(k int, a, b Value) int {
	if k == 0 {
		return a.(Number).Cmp(b.(Number))
	}
	return strings.Compare(string(a.(Text)), string(b.(Text)))
}

// display formats a value for concatenation: text is unquoted.
func display(v Value) string {
	if t, ok := v.(Text); ok {
		return string(t)
	}
	return v.String()
}

// divide applies a division-like operation, guarding against zero divisors.
func (ev *Evaluator) divide(f decimalOp, name string, x, y Number, n node) Value {
	if y.dec().IsZero() {
		return errorValue(ErrDivZero, &DomainError{X: y.String(), Func: name, Arg: 2}, n)
	}
	return ev.arith(f, name, x, y, n)
}

// pow computes x^y. Integer exponents are computed exactly in decimal. Other
// exponents require a positive base and are computed as e^(y*ln(x)).
func (ev *Evaluator) pow(x, y Number, n node) Value {
	if _, ok := y.Int(); ok {
		if x.dec().IsZero() && y.dec().Sign() < 0 {
			return errorValue(ErrDivZero, &DomainError{X: x.String(), Func: "^", Arg: 1}, n)
		}
		return ev.arith((*apd.Context).Pow, "^", x, y, n)
	}
	switch x.dec().Sign() {
	case 0:
		if y.dec().Sign() > 0 {
			return NewNumber(0)
		}
		return errorValue(ErrDivZero, &DomainError{X: x.String(), Func: "^", Arg: 1}, n)
	case -1:
		return errorValue(ErrNum, &DomainError{X: x.String(), Func: "^", Arg: 1}, n)
	}
	c := ev.dec.WithPrecision(ev.dec.Precision + 16)
	var t apd.Decimal
	if _, err := c.Ln(&t, x.dec()); err != nil {
		return errorValue(ErrNum, &DomainError{X: x.String(), Func: "^", Arg: 1, Err: err}, n)
	}
	if _, err := c.Mul(&t, &t, y.dec()); err != nil {
		return errorValue(ErrNum, &DomainError{X: y.String(), Func: "^", Arg: 2, Err: err}, n)
	}
	return ev.exp(&t, "^", x)
}

// span expands an integer range lo:hi into a bracket-less clause. Ranges may
// descend.
func (ev *Evaluator) span(lo, hi Number, n node) Value {
	a, ok := lo.Int()
	if !ok {
		return errorValue(ErrNum, &DomainError{X: lo.String(), Func: ":", Arg: 1}, n)
	}
	b, ok := hi.Int()
	if !ok {
		return errorValue(ErrNum, &DomainError{X: hi.String(), Func: ":", Arg: 2}, n)
	}
	step, dist := int64(1), uint64(b)-uint64(a)
	if b < a {
		step, dist = -1, uint64(a)-uint64(b)
	}
	if dist >= maxRange {
		return errorValue(ErrNum, &DomainError{X: lo.String() + ":" + hi.String(), Func: ":"}, n)
	}
	items := make([]Value, 0, dist+1)
	for i := a; ; i += step {
		items = append(items, NewNumber(i))
		if i == b {
			break
		}
	}
	return MakeClause(BracketNone, items...)
}
