package formula

import (
	"errors"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
	"github.com/zephyrtronium/bigfloat"
)

// Func is a named function callable from formulas, like sqrt(x).
type Func interface {
	// Constraints returns the accepted argument type combinations. Arguments
	// are checked against them before Call, and the index of the first
	// matching constraint is passed to Call as overload. If Constraints
	// returns nil, any arguments are accepted and overload is 0.
	Constraints() []TypeConstraint

	// Call evaluates the function. args are never errors; an error among the
	// arguments is the result of the call without calling the function.
	// Failures are reported by returning an Error value.
	Call(ev *Evaluator, overload int, args []Value) Value
}

// Constant computes a named constant at an evaluator's precision.
type Constant func(ev *Evaluator) Value

type fnof struct {
	cons []TypeConstraint
	f    func(ev *Evaluator, overload int, args []Value) Value
}

func (f fnof) Constraints() []TypeConstraint { return f.cons }

func (f fnof) Call(ev *Evaluator, overload int, args []Value) Value {
	return f.f(ev, overload, args)
}

// FuncOf wraps a function and its constraints into a Func.
func FuncOf(f func(ev *Evaluator, overload int, args []Value) Value, cons ...TypeConstraint) Func {
	return fnof{cons: cons, f: f}
}

type monadic struct {
	name string
	f    func(out, in *big.Float) *big.Float
}

var monadicCons = []TypeConstraint{Sig(TypeNumber)}

func (m monadic) Constraints() []TypeConstraint { return monadicCons }

func (m monadic) Call(ev *Evaluator, _ int, args []Value) (r Value) {
	x := args[0].(Number)
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		err := p.(error) // panic if not error
		if errors.As(err, &big.ErrNaN{}) {
			r = Error{Kind: ErrNum, Err: &DomainError{X: x.String(), Func: m.name, Arg: 1, Err: err}}
			return
		}
		panic(err)
	}()
	in := ev.Float(x)
	out := new(big.Float).SetPrec(in.Prec())
	m.f(out, in)
	return ev.FromFloat(out)
}

// Monadic wraps a function of one real variable into a Func. f must set out
// to its result, to the precision of out; its return value is ignored. If f is
// called on an argument outside its domain, it should panic with an error of
// type big.ErrNaN, or that unwraps to it, which becomes a #NUM! error.
func Monadic(name string, f func(out, in *big.Float) *big.Float) Func {
	return monadic{name: name, f: f}
}

// Niladic wraps a function of zero variables, generally one which computes a
// constant, into a Constant. f must set out to its result; its return value
// is ignored.
func Niladic(f func(out *big.Float) *big.Float) Constant {
	return func(ev *Evaluator) Value {
		out := new(big.Float).SetPrec(ev.prec)
		f(out)
		return ev.FromFloat(out)
	}
}

// positive guards a monadic function against non-positive arguments, which
// bigfloat's logarithm doesn't report as NaN.
func positive(name string, f func(out, in *big.Float) *big.Float) func(out, in *big.Float) *big.Float {
	return func(out, in *big.Float) *big.Float {
		if in.Sign() <= 0 {
			panic(big.ErrNaN{})
		}
		return f(out, in)
	}
}

var globalconsts = map[string]Constant{
	"pi": Niladic(bigfloat.Pi),
	"e": Niladic(func(out *big.Float) *big.Float {
		one := new(big.Float).SetPrec(out.Prec()).SetInt64(1)
		return bigfloat.Exp(out, one)
	}),
}

var globalfuncs = map[string]Func{
	"exp": FuncOf(func(ev *Evaluator, _ int, args []Value) Value {
		x := args[0].(Number)
		return ev.exp(x.dec(), "exp", x)
	}, Sig(TypeNumber)),
	"ln":  Monadic("ln", positive("ln", bigfloat.Log)),
	"log": FuncOf(logb, Sig(TypeNumber), Sig(TypeNumber, TypeNumber)),
	"sqrt": FuncOf(func(ev *Evaluator, _ int, args []Value) Value {
		x := args[0].(Number)
		if x.dec().Sign() < 0 {
			return Error{Kind: ErrNum, Err: &DomainError{X: x.String(), Func: "sqrt", Arg: 1}}
		}
		return ev.unary((*apd.Context).Sqrt, "sqrt", x)
	}, Sig(TypeNumber)),
	"abs": FuncOf(func(_ *Evaluator, _ int, args []Value) Value {
		return Number{new(apd.Decimal).Abs(args[0].(Number).dec())}
	}, Sig(TypeNumber)),
	"floor": FuncOf(func(ev *Evaluator, _ int, args []Value) Value {
		return ev.unary((*apd.Context).Floor, "floor", args[0].(Number))
	}, Sig(TypeNumber)),
	"ceil": FuncOf(func(ev *Evaluator, _ int, args []Value) Value {
		return ev.unary((*apd.Context).Ceil, "ceil", args[0].(Number))
	}, Sig(TypeNumber)),
	"round": FuncOf(round, Sig(TypeNumber), Sig(TypeNumber, TypeNumber)),

	"min": FuncOf(func(ev *Evaluator, _ int, args []Value) Value {
		return extreme("min", args, -1)
	}, VarSig(TypeNumber|TypeClause, TypeNumber|TypeClause)),
	"max": FuncOf(func(ev *Evaluator, _ int, args []Value) Value {
		return extreme("max", args, 1)
	}, VarSig(TypeNumber|TypeClause, TypeNumber|TypeClause)),
	"sum": FuncOf(func(ev *Evaluator, _ int, args []Value) Value {
		s, _, err := ev.total("sum", args)
		if err != nil {
			return *err
		}
		return s
	}, VarSig(TypeNumber|TypeClause)),
	"avg": FuncOf(func(ev *Evaluator, _ int, args []Value) Value {
		s, n, err := ev.total("avg", args)
		if err != nil {
			return *err
		}
		if n == 0 {
			return Error{Kind: ErrDivZero, Err: &DomainError{X: "()", Func: "avg"}}
		}
		return ev.arith((*apd.Context).Quo, "avg", s, NewNumber(int64(n)), nil)
	}, VarSig(TypeNumber|TypeClause)),

	"len": FuncOf(func(_ *Evaluator, k int, args []Value) Value {
		if k == 0 {
			return NewNumber(int64(utf8.RuneCountInString(string(args[0].(Text)))))
		}
		return NewNumber(int64(len(args[0].(Clause).Items)))
	}, Sig(TypeText), Sig(TypeClause)),
	"if": ifFunc{},
	"not": FuncOf(func(_ *Evaluator, _ int, args []Value) Value {
		return !args[0].(Boolean)
	}, Sig(TypeBoolean)),
	"concat": FuncOf(func(_ *Evaluator, _ int, args []Value) Value {
		var b strings.Builder
		for _, a := range args {
			b.WriteString(display(a))
		}
		return Text(b.String())
	}, VarSig(TypeText|TypeNumber|TypeBoolean)),
	"upper": FuncOf(func(_ *Evaluator, _ int, args []Value) Value {
		return Text(strings.ToUpper(string(args[0].(Text))))
	}, Sig(TypeText)),
	"lower": FuncOf(func(_ *Evaluator, _ int, args []Value) Value {
		return Text(strings.ToLower(string(args[0].(Text))))
	}, Sig(TypeText)),
	"text": FuncOf(func(_ *Evaluator, _ int, args []Value) Value {
		return Text(display(args[0]))
	}, Sig(TypeAny)),
}

// ifFunc chooses its second or third argument by its first. A call with three
// arguments evaluates only the chosen one, like c ? a : b.
type ifFunc struct{}

var ifCons = []TypeConstraint{Sig(TypeBoolean, TypeAny, TypeAny)}

func (ifFunc) Constraints() []TypeConstraint { return ifCons }

func (ifFunc) Call(_ *Evaluator, _ int, args []Value) Value {
	if args[0].(Boolean) {
		return args[1]
	}
	return args[2]
}

// logb computes the base 10 logarithm, or the logarithm to a given base.
func logb(ev *Evaluator, k int, args []Value) Value {
	x := args[0].(Number)
	if x.dec().Sign() <= 0 {
		return Error{Kind: ErrNum, Err: &DomainError{X: x.String(), Func: "log", Arg: 1}}
	}
	base := NewNumber(10)
	if k == 1 {
		base = args[1].(Number)
		if base.dec().Sign() <= 0 || base.Cmp(NewNumber(1)) == 0 {
			return Error{Kind: ErrNum, Err: &DomainError{X: base.String(), Func: "log", Arg: 2}}
		}
	}
	out, in := new(big.Float).SetPrec(ev.prec), ev.Float(x)
	bigfloat.Log(out, in)
	in = ev.Float(base)
	bigfloat.Log(in, in)
	return ev.FromFloat(out.Quo(out, in))
}

// round rounds half away from zero to an integer or to a number of decimal
// places.
func round(ev *Evaluator, k int, args []Value) Value {
	x := args[0].(Number)
	places := int64(0)
	if k == 1 {
		p, ok := args[1].(Number).Int()
		if !ok || p < -1000 || p > 1000 {
			return Error{Kind: ErrNum, Err: &DomainError{X: args[1].String(), Func: "round", Arg: 2}}
		}
		places = p
	}
	d := new(apd.Decimal)
	if _, err := ev.dec.Quantize(d, x.dec(), int32(-places)); err != nil {
		return Error{Kind: ErrNum, Err: &DomainError{X: x.String(), Func: "round", Arg: 1, Err: err}}
	}
	return Number{d}
}

// numbers flattens numbers and clauses of numbers.
func numbers(op string, args []Value) ([]Number, *Error) {
	var r []Number
	for i, a := range args {
		switch a := a.(type) {
		case Number:
			r = append(r, a)
		case Clause:
			for _, it := range a.Items {
				switch it := it.(type) {
				case Number:
					r = append(r, it)
				case Error:
					return nil, &it
				default:
					return nil, &Error{Kind: ErrType, Err: &TypeMismatchError{Op: op, Arg: i, Got: it.Type(), Want: TypeNumber}}
				}
			}
		}
	}
	return r, nil
}

// extreme returns the least (sign -1) or greatest (sign 1) number among args.
func extreme(op string, args []Value, sign int) Value {
	nums, err := numbers(op, args)
	if err != nil {
		return *err
	}
	if len(nums) == 0 {
		return Error{Kind: ErrNA, Err: &DomainError{X: "()", Func: op}}
	}
	r := nums[0]
	for _, n := range nums[1:] {
		if n.Cmp(r) == sign {
			r = n
		}
	}
	return r
}

// total sums args and returns the sum and the count of numbers.
func (ev *Evaluator) total(op string, args []Value) (Number, int, *Error) {
	nums, err := numbers(op, args)
	if err != nil {
		return Number{}, 0, err
	}
	s := new(apd.Decimal)
	for _, n := range nums {
		if _, err := ev.dec.Add(s, s, n.dec()); err != nil {
			return Number{}, 0, &Error{Kind: ErrNum, Err: &DomainError{X: n.String(), Func: op, Err: err}}
		}
	}
	return Number{s}, len(nums), nil
}

// DefaultFuncs returns a copy of the default function set.
func DefaultFuncs() map[string]Func {
	m := make(map[string]Func, len(globalfuncs))
	for k, v := range globalfuncs {
		m[k] = v
	}
	return m
}
