package formula

import (
	"errors"
	"math/big"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

// DefaultPrecision is the number of significant decimal digits kept by
// inexact operations when no precision is configured.
const DefaultPrecision = 34

// Evaluator holds the settings that evaluation of numbers depends on. It is
// passed to functions so that they compute to the same precision as the
// operators around them.
type Evaluator struct {
	dec *apd.Context
	// prec is the precision in bits used for big.Float computations.
	prec uint
}

// NewEvaluator creates an evaluator computing to the given number of
// significant decimal digits. Zero means DefaultPrecision.
func NewEvaluator(digits uint32) *Evaluator {
	if digits == 0 {
		digits = DefaultPrecision
	}
	return &Evaluator{
		dec: &apd.Context{
			Precision:   digits,
			MaxExponent: apd.MaxExponent,
			MinExponent: apd.MinExponent,
			Traps:       apd.DefaultTraps,
			Rounding:    apd.RoundHalfUp,
		},
		// log2(10) is a bit less than 3.33. Keep some guard bits.
		prec: uint(digits)*10/3 + 16,
	}
}

var defaultEvaluator = NewEvaluator(DefaultPrecision)

// Precision returns the number of significant decimal digits.
func (ev *Evaluator) Precision() uint32 {
	return ev.dec.Precision
}

// Context returns a copy of the decimal context used for arithmetic.
func (ev *Evaluator) Context() *apd.Context {
	c := *ev.dec
	return &c
}

// Float converts a number to a big.Float at the evaluator's binary precision.
func (ev *Evaluator) Float(n Number) *big.Float {
	f, _, err := big.ParseFloat(n.dec().String(), 10, ev.prec, big.ToNearestEven)
	if err != nil {
		// apd only formats finite numbers in forms big.Float parses.
		panic("formula: unconvertible number " + n.dec().String() + ": " + err.Error())
	}
	return f
}

// FromFloat converts a big.Float back to a number rounded to the evaluator's
// decimal precision. Infinities produce a #NUM! error.
func (ev *Evaluator) FromFloat(f *big.Float) Value {
	if f.IsInf() {
		return Error{Kind: ErrNum, Err: &DomainError{X: f.Text('g', 10)}}
	}
	d, _, err := apd.NewFromString(f.Text('E', int(ev.dec.Precision)))
	if err != nil {
		return Error{Kind: ErrNum, Err: err}
	}
	if _, err := ev.dec.Round(d, d); err != nil {
		return Error{Kind: ErrNum, Err: err}
	}
	d.Reduce(d)
	return Number{d}
}

// decimalOp is the shape of apd's arithmetic methods.
type decimalOp func(c *apd.Context, d, x, y *apd.Decimal) (apd.Condition, error)

// arith applies a decimal operation, turning trapped conditions like overflow
// into #NUM! errors attributed to n.
func (ev *Evaluator) arith(f decimalOp, name string, x, y Number, n node) Value {
	d := new(apd.Decimal)
	if _, err := f(ev.dec, d, x.dec(), y.dec()); err != nil {
		return errorValue(ErrNum, &DomainError{X: y.String(), Func: name, Arg: 2, Err: err}, n)
	}
	return Number{d}
}

// unary applies a one-argument decimal operation.
func (ev *Evaluator) unary(f func(c *apd.Context, d, x *apd.Decimal) (apd.Condition, error), name string, x Number) Value {
	d := new(apd.Decimal)
	if _, err := f(ev.dec, d, x.dec()); err != nil {
		return Error{Kind: ErrNum, Err: &DomainError{X: x.String(), Func: name, Arg: 1, Err: err}}
	}
	return Number{d}
}

// errExponentRange is the cause of #NUM! errors from results too large or
// too small to represent.
var errExponentRange = errors.New("result exponent out of range")

// exp computes e^t as e^r * 10^q where t = q*ln(10) + r, so only e^r is
// computed by series and q becomes the decimal exponent. x and name identify
// the argument in errors.
func (ev *Evaluator) exp(t *apd.Decimal, name string, x Number) Value {
	fail := func(err error) Value {
		return Error{Kind: ErrNum, Err: &DomainError{X: x.String(), Func: name, Arg: 1, Err: err}}
	}
	c := ev.dec.WithPrecision(ev.dec.Precision + 16)
	var ln10, q, r, d apd.Decimal
	if _, err := c.Ln(&ln10, apd.New(10, 0)); err != nil {
		return fail(err)
	}
	if _, err := c.QuoInteger(&q, t, &ln10); err != nil {
		// Too many digits in the quotient.
		return fail(errExponentRange)
	}
	k, err := q.Int64()
	if err != nil || k > 1<<30 || k < -1<<30 {
		return fail(errExponentRange)
	}
	if _, err := c.Rem(&r, t, &ln10); err != nil {
		return fail(err)
	}
	if _, err := c.Exp(&d, &r); err != nil {
		return fail(err)
	}
	d.Exponent += int32(k)
	if adj := int64(d.Exponent) + d.NumDigits() - 1; adj > int64(ev.dec.MaxExponent) || adj < int64(ev.dec.MinExponent) {
		return fail(errExponentRange)
	}
	if _, err := ev.dec.Round(&d, &d); err != nil {
		return fail(err)
	}
	d.Reduce(&d)
	return Number{&d}
}

// NameError is an error from evaluating a variable that has no definition.
type NameError struct {
	// Name is the path of the variable.
	Name string
}

func (err *NameError) Error() string {
	return "undefined variable: " + strconv.Quote(err.Name)
}

// DomainError is an error returned when an operator or function is called on
// arguments outside its domain.
type DomainError struct {
	// X is the out-of-domain argument, formatted.
	X string
	// Arg is the 1-based index of the argument.
	Arg int
	// Func is a name identifying the function or operator.
	Func string
	// Err is the underlying arithmetic error, if any.
	Err error
}

func (err *DomainError) Error() string {
	r := err.X + " outside domain"
	if err.Func != "" {
		r += " of " + err.Func
	}
	if err.Arg > 0 {
		r += " (argument " + strconv.Itoa(err.Arg) + ")"
	}
	if err.Err != nil {
		r += ": " + err.Err.Error()
	}
	return r
}

func (err *DomainError) Unwrap() error {
	return err.Err
}

// TypeMismatchError is an error from applying an operator or function to
// values of types it does not accept.
type TypeMismatchError struct {
	// Op is the operator or function name.
	Op string
	// Arg is the 0-based index of the first rejected argument. It equals the
	// number of arguments given when too few were given.
	Arg int
	// Got is the type of the rejected argument, or 0 if it is missing.
	Got TypeFlag
	// Want is the set of types accepted at Arg, or 0 if no argument is
	// accepted there.
	Want TypeFlag
}

func (err *TypeMismatchError) Error() string {
	a := err.Op + ": argument " + strconv.Itoa(err.Arg+1)
	switch {
	case err.Got == 0:
		return a + " missing, want " + err.Want.String()
	case err.Want == 0:
		return a + " unexpected"
	default:
		return a + " is " + err.Got.String() + ", want " + err.Want.String()
	}
}

// checkTypes matches argument values against constraints. If none match, the
// result is a #TYPE! error naming the first offending argument.
func checkTypes(op string, cs []TypeConstraint, args []Value, n node) (int, *Error) {
	if len(cs) == 0 {
		return 0, nil
	}
	types := make([]TypeFlag, len(args))
	for i, a := range args {
		types[i] = a.Type()
	}
	best, mm := Match(cs, types)
	if mm < 0 {
		return best, nil
	}
	err := &TypeMismatchError{Op: op, Arg: mm}
	if mm < len(types) {
		err.Got = types[mm]
	}
	if best >= 0 {
		err.Want = cs[best].at(mm)
	}
	e := errorValue(ErrType, err, n)
	return -1, &e
}
