package formula

import "strings"

// TypeFlag is a set of value types.
type TypeFlag uint8

const (
	TypeNumber TypeFlag = 1 << iota
	TypeBoolean
	TypeText
	TypeClause
	TypeError

	// TypeAny is every non-error type.
	TypeAny = TypeNumber | TypeBoolean | TypeText | TypeClause
)

var typeNames = []struct {
	t    TypeFlag
	name string
}{
	{TypeNumber, "number"},
	{TypeBoolean, "boolean"},
	{TypeText, "text"},
	{TypeClause, "clause"},
	{TypeError, "error"},
}

func (t TypeFlag) String() string {
	if t == 0 {
		return "nothing"
	}
	var b strings.Builder
	for _, n := range typeNames {
		if t&n.t == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString(n.name)
	}
	return b.String()
}

// TypeConstraint is one accepted combination of argument types for an
// operator or function. Args[i] is the set of types allowed for argument i.
// If Variadic is set, the last entry of Args also applies to any number of
// further arguments, including none.
type TypeConstraint struct {
	Args     []TypeFlag
	Variadic bool
}

// Sig is a shortcut to create a fixed-arity TypeConstraint.
func Sig(args ...TypeFlag) TypeConstraint {
	return TypeConstraint{Args: args}
}

// VarSig is a shortcut to create a variadic TypeConstraint.
func VarSig(args ...TypeFlag) TypeConstraint {
	return TypeConstraint{Args: args, Variadic: true}
}

// at returns the allowed types for argument i, or 0 if the constraint has no
// argument i.
func (c TypeConstraint) at(i int) TypeFlag {
	switch {
	case i < len(c.Args):
		return c.Args[i]
	case c.Variadic && len(c.Args) > 0:
		return c.Args[len(c.Args)-1]
	}
	return 0
}

// arity reports whether the constraint accepts n arguments.
func (c TypeConstraint) arity(n int) bool {
	if c.Variadic {
		return n >= len(c.Args)-1
	}
	return n == len(c.Args)
}

// prefix returns the number of leading arguments that the constraint accepts.
func (c TypeConstraint) prefix(args []TypeFlag) int {
	for i, t := range args {
		a := c.at(i)
		if a == 0 || t&^a != 0 {
			return i
		}
	}
	return len(args)
}

// Match finds the first constraint that accepts the argument types. If one
// does, the result is its index and -1. Otherwise, best is the index of the
// constraint that accepted the longest prefix of the arguments, and mismatch
// is the index of the first argument it rejects. For an argument list that is
// too short, mismatch is len(args). If cs is empty, the result is -1, 0.
func Match(cs []TypeConstraint, args []TypeFlag) (best, mismatch int) {
	best, mismatch = -1, -1
	for i, c := range cs {
		p := c.prefix(args)
		if p == len(args) && c.arity(len(args)) {
			return i, -1
		}
		if p > mismatch {
			best, mismatch = i, p
		}
	}
	if best < 0 {
		return -1, 0
	}
	return best, mismatch
}
