package formula

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Value is the result of evaluating a formula. The set of values is closed:
// every Value is a Number, Boolean, Text, Clause, or Error. Values are
// immutable once constructed.
type Value interface {
	// Type returns the single type flag of the value.
	Type() TypeFlag
	// String formats the value as formula text. Parsing the result yields an
	// equal value for every variant except Error.
	String() string

	value()
}

// Number is an arbitrary-precision decimal number. The zero Number is 0.
type Number struct {
	d *apd.Decimal
}

// NewNumber creates a Number from an integer.
func NewNumber(x int64) Number {
	return Number{apd.New(x, 0)}
}

// NewDecimal creates a Number holding a copy of d.
func NewDecimal(d *apd.Decimal) Number {
	return Number{new(apd.Decimal).Set(d)}
}

// ParseNumber parses a decimal number with an optional sign, fraction, and
// exponent.
func ParseNumber(s string) (Number, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Number{}, err
	}
	if d.Form != apd.Finite {
		return Number{}, &DomainError{X: s, Func: "number"}
	}
	return Number{d}, nil
}

// Decimal returns a copy of the number's decimal representation.
func (n Number) Decimal() *apd.Decimal {
	return new(apd.Decimal).Set(n.dec())
}

// dec returns the number's decimal without copying. The result must not be
// modified.
func (n Number) dec() *apd.Decimal {
	if n.d == nil {
		return &apd.Decimal{}
	}
	return n.d
}

// Int returns the number as an int64 if it is an integer in range.
func (n Number) Int() (int64, bool) {
	x, err := n.dec().Int64()
	return x, err == nil
}

// Cmp compares two numbers by value.
func (n Number) Cmp(m Number) int {
	return n.dec().Cmp(m.dec())
}

func (Number) Type() TypeFlag { return TypeNumber }

func (n Number) String() string {
	d := n.dec()
	// Plain notation unless that would be unreasonably long.
	adj := int64(d.Exponent) + d.NumDigits() - 1
	if adj > 30 || adj < -30 {
		return d.String()
	}
	return d.Text('f')
}

// Boolean is true or false.
type Boolean bool

func (Boolean) Type() TypeFlag { return TypeBoolean }

func (b Boolean) String() string {
	return strconv.FormatBool(bool(b))
}

// Text is a string value.
type Text string

func (Text) Type() TypeFlag { return TypeText }

// String quotes the text, doubling embedded quotes.
func (t Text) String() string {
	return `"` + strings.ReplaceAll(string(t), `"`, `""`) + `"`
}

// Bracket is the kind of bracket enclosing a clause.
type Bracket int8

const (
	// BracketNone is a clause written with bare commas, or produced by a
	// range.
	BracketNone Bracket = iota
	// BracketParen is a clause written in parentheses.
	BracketParen
	// BracketBrace is a clause written in curly braces.
	BracketBrace
)

// Clause is an ordered tuple of values.
type Clause struct {
	Items   []Value
	Bracket Bracket
}

// MakeClause creates a clause value. Items that are themselves bracket-less
// clauses are spliced into the new clause, and a bracket-less clause of
// exactly one item is that item.
func MakeClause(b Bracket, items ...Value) Value {
	v := make([]Value, 0, len(items))
	for _, it := range items {
		if c, ok := it.(Clause); ok && c.Bracket == BracketNone {
			v = append(v, c.Items...)
			continue
		}
		v = append(v, it)
	}
	if b == BracketNone && len(v) == 1 {
		return v[0]
	}
	return Clause{Items: v, Bracket: b}
}

func (Clause) Type() TypeFlag { return TypeClause }

func (c Clause) String() string {
	var b strings.Builder
	switch c.Bracket {
	case BracketParen:
		b.WriteByte('(')
	case BracketBrace:
		b.WriteByte('{')
	}
	for i, it := range c.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(it.String())
	}
	if c.Bracket == BracketParen && len(c.Items) == 1 {
		// (x) would parse as grouping.
		b.WriteByte(',')
	}
	switch c.Bracket {
	case BracketParen:
		b.WriteByte(')')
	case BracketBrace:
		b.WriteByte('}')
	}
	return b.String()
}

// ErrorKind classifies error values.
type ErrorKind int8

const (
	// ErrType is an operand or argument of the wrong type.
	ErrType ErrorKind = iota + 1
	// ErrRef is a reference path that does not resolve.
	ErrRef
	// ErrName is a variable with no definition.
	ErrName
	// ErrNum is a numeric result outside an operation's domain.
	ErrNum
	// ErrDivZero is a division or remainder by zero.
	ErrDivZero
	// ErrCircular is a reference that would make a variable depend on
	// itself.
	ErrCircular
	// ErrNA is an index outside a clause or text.
	ErrNA
)

var errorCodes = [...]string{
	ErrType:     "#TYPE!",
	ErrRef:      "#REF!",
	ErrName:     "#NAME?",
	ErrNum:      "#NUM!",
	ErrDivZero:  "#DIV/0!",
	ErrCircular: "#CIRC!",
	ErrNA:       "#N/A",
}

// String returns the spreadsheet-style code for the kind, e.g. "#REF!".
func (k ErrorKind) String() string {
	if k <= 0 || int(k) >= len(errorCodes) {
		return "#ERROR(" + strconv.Itoa(int(k)) + ")"
	}
	return errorCodes[k]
}

// Error is a value describing a failed evaluation. It also implements the
// error interface and unwraps to the underlying error, so callers can use
// errors.As to recover e.g. a *ReferenceError.
type Error struct {
	Kind ErrorKind
	// Err describes the failure.
	Err error
	// Source is the formula text of the node that produced the error.
	Source string
}

func (Error) Type() TypeFlag { return TypeError }

// String returns the error code. Errors are not re-parseable.
func (e Error) String() string {
	return e.Kind.String()
}

func (e Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + " " + e.Err.Error()
}

func (e Error) Unwrap() error {
	return e.Err
}

func (Number) value()  {}
func (Boolean) value() {}
func (Text) value()    {}
func (Clause) value()  {}
func (Error) value()   {}

// errorValue wraps err into an Error value produced by the node formatted as
// src.
func errorValue(kind ErrorKind, err error, src node) Error {
	e := Error{Kind: kind, Err: err}
	if src != nil {
		e.Source = src.String()
	}
	return e
}

// Equal reports whether two values are structurally equal. Numbers compare by
// value, so 2.0 equals 2. Errors are equal when their kinds, messages, and
// sources match.
func Equal(a, b Value) bool {
	switch a := a.(type) {
	case Number:
		b, ok := b.(Number)
		return ok && a.Cmp(b) == 0
	case Boolean:
		b, ok := b.(Boolean)
		return ok && a == b
	case Text:
		b, ok := b.(Text)
		return ok && a == b
	case Clause:
		b, ok := b.(Clause)
		if !ok || a.Bracket != b.Bracket || len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if !Equal(a.Items[i], b.Items[i]) {
				return false
			}
		}
		return true
	case Error:
		b, ok := b.(Error)
		if !ok || a.Kind != b.Kind || a.Source != b.Source {
			return false
		}
		return a.Error() == b.Error()
	case nil:
		return b == nil
	default:
		panic("formula: unknown value type")
	}
}

// firstError returns the first error among vals.
func firstError(vals []Value) (Error, bool) {
	for _, v := range vals {
		if e, ok := v.(Error); ok {
			return e, true
		}
	}
	return Error{}, false
}
