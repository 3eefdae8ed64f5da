package formula

import (
	"strings"
)

// node is a node in the parse tree of an expression. Each node owns its
// children.
type node interface {
	// eval computes the node's value.
	eval(ev *Evaluator) Value
	// priority is the binding priority of the node's outermost operator.
	// Lower binds tighter; operands and bracketed nodes are 0.
	priority() int
	// fmt writes the node as formula text.
	fmt(b *strings.Builder)
	// clone deep-copies the node. References in the copy are detached.
	clone() node
	// visit calls f on the node and each of its descendants, in order.
	visit(f func(node))

	String() string
}

// format is the common implementation of String for nodes.
func format(n node) string {
	var b strings.Builder
	n.fmt(&b)
	return b.String()
}

// fmtOperand writes an operand of an operator with priority prio, wrapping it
// in parentheses if it binds looser, or if it binds the same and the operator
// is left-associative and the operand is on the right.
func fmtOperand(b *strings.Builder, n node, prio int, right bool) {
	p := n.priority()
	if p > prio || right && p == prio {
		b.WriteByte('(')
		n.fmt(b)
		b.WriteByte(')')
		return
	}
	n.fmt(b)
}

// literalNode is a number, boolean, or text literal.
type literalNode struct {
	v Value
}

func (n *literalNode) eval(*Evaluator) Value  { return n.v }
func (n *literalNode) priority() int          { return prioLeaf }
func (n *literalNode) fmt(b *strings.Builder) { b.WriteString(n.v.String()) }
func (n *literalNode) clone() node            { return n }
func (n *literalNode) visit(f func(node))     { f(n) }
func (n *literalNode) String() string         { return format(n) }

// constNode is a named constant like pi, computed at the evaluator's
// precision.
type constNode struct {
	name string
	c    Constant
}

func (n *constNode) eval(ev *Evaluator) Value { return n.c(ev) }
func (n *constNode) priority() int            { return prioLeaf }
func (n *constNode) fmt(b *strings.Builder)   { b.WriteString(n.name) }
func (n *constNode) clone() node              { return n }
func (n *constNode) visit(f func(node))       { f(n) }
func (n *constNode) String() string           { return format(n) }

// opNode is an application of a unary or binary operator.
type opNode struct {
	op   *operator
	args []node
}

func (n *opNode) eval(ev *Evaluator) Value {
	args := make([]Value, len(n.args))
	for i, a := range n.args {
		args[i] = a.eval(ev)
	}
	if e, ok := firstError(args); ok {
		return e
	}
	k, err := checkTypes(n.op.text, n.op.cons, args, n)
	if err != nil {
		return *err
	}
	v := n.op.apply(ev, k, args, n)
	if e, ok := v.(Error); ok && e.Source == "" {
		e.Source = n.String()
		return e
	}
	return v
}

func (n *opNode) priority() int { return n.op.prio }

func (n *opNode) fmt(b *strings.Builder) {
	if n.op.unary {
		b.WriteString(n.op.text)
		fmtOperand(b, n.args[0], n.op.prio, false)
		return
	}
	fmtOperand(b, n.args[0], n.op.prio, false)
	if n.op.prio == prioRange {
		b.WriteString(n.op.text)
	} else {
		b.WriteByte(' ')
		b.WriteString(n.op.text)
		b.WriteByte(' ')
	}
	fmtOperand(b, n.args[1], n.op.prio, true)
}

func (n *opNode) clone() node {
	m := &opNode{op: n.op, args: make([]node, len(n.args))}
	for i, a := range n.args {
		m.args[i] = a.clone()
	}
	return m
}

func (n *opNode) visit(f func(node)) {
	f(n)
	for _, a := range n.args {
		a.visit(f)
	}
}

func (n *opNode) String() string { return format(n) }

// condNode is a conditional c ? a : b. Only the chosen branch is evaluated.
type condNode struct {
	cond, then, els node
}

func (n *condNode) eval(ev *Evaluator) Value {
	c := n.cond.eval(ev)
	switch c := c.(type) {
	case Error:
		return c
	case Boolean:
		if c {
			return n.then.eval(ev)
		}
		return n.els.eval(ev)
	default:
		return errorValue(ErrType, &TypeMismatchError{Op: "?", Arg: 0, Got: c.Type(), Want: TypeBoolean}, n)
	}
}

func (n *condNode) priority() int { return prioCond }

func (n *condNode) fmt(b *strings.Builder) {
	fmtOperand(b, n.cond, prioCond, true)
	b.WriteString(" ? ")
	fmtOperand(b, n.then, prioRange, true)
	b.WriteString(" : ")
	fmtOperand(b, n.els, prioRange, true)
}

func (n *condNode) clone() node {
	return &condNode{cond: n.cond.clone(), then: n.then.clone(), els: n.els.clone()}
}

func (n *condNode) visit(f func(node)) {
	f(n)
	n.cond.visit(f)
	n.then.visit(f)
	n.els.visit(f)
}

func (n *condNode) String() string { return format(n) }

// callNode is a call of a named function.
type callNode struct {
	name string
	fn   Func
	args []node
}

func (n *callNode) eval(ev *Evaluator) Value {
	if _, ok := n.fn.(ifFunc); ok && len(n.args) == 3 {
		return n.choose(ev)
	}
	args := make([]Value, len(n.args))
	for i, a := range n.args {
		args[i] = a.eval(ev)
	}
	if e, ok := firstError(args); ok {
		return e
	}
	k, err := checkTypes(n.name, n.fn.Constraints(), args, n)
	if err != nil {
		return *err
	}
	v := n.fn.Call(ev, k, args)
	if e, ok := v.(Error); ok && e.Source == "" {
		e.Source = n.String()
		return e
	}
	return v
}

// choose evaluates a conditional call without evaluating the branch not
// taken.
func (n *callNode) choose(ev *Evaluator) Value {
	switch c := n.args[0].eval(ev).(type) {
	case Error:
		return c
	case Boolean:
		if c {
			return n.args[1].eval(ev)
		}
		return n.args[2].eval(ev)
	default:
		return errorValue(ErrType, &TypeMismatchError{Op: n.name, Arg: 0, Got: c.Type(), Want: TypeBoolean}, n)
	}
}

func (n *callNode) priority() int { return prioLeaf }

func (n *callNode) fmt(b *strings.Builder) {
	b.WriteString(n.name)
	b.WriteByte('(')
	for i, a := range n.args {
		if i > 0 {
			b.WriteString(", ")
		}
		fmtOperand(b, a, prioCond, false)
	}
	b.WriteByte(')')
}

func (n *callNode) clone() node {
	m := &callNode{name: n.name, fn: n.fn, args: make([]node, len(n.args))}
	for i, a := range n.args {
		m.args[i] = a.clone()
	}
	return m
}

func (n *callNode) visit(f func(node)) {
	f(n)
	for _, a := range n.args {
		a.visit(f)
	}
}

func (n *callNode) String() string { return format(n) }

// clauseNode is a bracketed or comma-separated list of expressions. A
// parenthesized single expression is grouping and evaluates to its element.
type clauseNode struct {
	items []node
	br    Bracket
	// trail records a trailing comma, which makes (a,) a clause rather than
	// grouping.
	trail bool
}

// grouping returns whether the clause is a parenthesized single expression.
func (n *clauseNode) grouping() bool {
	return n.br == BracketParen && len(n.items) == 1 && !n.trail
}

func (n *clauseNode) eval(ev *Evaluator) Value {
	if n.grouping() {
		return n.items[0].eval(ev)
	}
	vals := make([]Value, len(n.items))
	for i, it := range n.items {
		vals[i] = it.eval(ev)
	}
	return MakeClause(n.br, vals...)
}

func (n *clauseNode) priority() int {
	if n.br == BracketNone {
		return prioList
	}
	return prioLeaf
}

func (n *clauseNode) fmt(b *strings.Builder) {
	switch n.br {
	case BracketParen:
		b.WriteByte('(')
	case BracketBrace:
		b.WriteByte('{')
	}
	for i, it := range n.items {
		if i > 0 {
			b.WriteString(", ")
		}
		fmtOperand(b, it, prioCond, false)
	}
	if n.br == BracketParen && len(n.items) == 1 && n.trail {
		b.WriteByte(',')
	}
	switch n.br {
	case BracketParen:
		b.WriteByte(')')
	case BracketBrace:
		b.WriteByte('}')
	}
}

func (n *clauseNode) clone() node {
	m := &clauseNode{br: n.br, trail: n.trail, items: make([]node, len(n.items))}
	for i, it := range n.items {
		m.items[i] = it.clone()
	}
	return m
}

func (n *clauseNode) visit(f func(node)) {
	f(n)
	for _, it := range n.items {
		it.visit(f)
	}
}

func (n *clauseNode) String() string { return format(n) }

// indexNode is an index into a clause or text, x[i]. Indices start at 0.
type indexNode struct {
	target, index node
}

func (n *indexNode) eval(ev *Evaluator) Value {
	t := n.target.eval(ev)
	if e, ok := t.(Error); ok {
		return e
	}
	x := n.index.eval(ev)
	if e, ok := x.(Error); ok {
		return e
	}
	k, err := checkTypes("[]", indexConstraints, []Value{t, x}, n)
	if err != nil {
		return *err
	}
	i, ok := x.(Number).Int()
	switch k {
	case 0:
		c := t.(Clause)
		if !ok || i < 0 || i >= int64(len(c.Items)) {
			return errorValue(ErrNA, &DomainError{X: x.String(), Func: "[]", Arg: 2}, n)
		}
		return c.Items[i]
	default:
		s := []rune(string(t.(Text)))
		if !ok || i < 0 || i >= int64(len(s)) {
			return errorValue(ErrNA, &DomainError{X: x.String(), Func: "[]", Arg: 2}, n)
		}
		return Text(s[i])
	}
}

var indexConstraints = []TypeConstraint{
	Sig(TypeClause, TypeNumber),
	Sig(TypeText, TypeNumber),
}

func (n *indexNode) priority() int { return prioLeaf }

func (n *indexNode) fmt(b *strings.Builder) {
	fmtOperand(b, n.target, prioLeaf, false)
	b.WriteByte('[')
	n.index.fmt(b)
	b.WriteByte(']')
}

func (n *indexNode) clone() node {
	return &indexNode{target: n.target.clone(), index: n.index.clone()}
}

func (n *indexNode) visit(f func(node)) {
	f(n)
	n.target.visit(f)
	n.index.visit(f)
}

func (n *indexNode) String() string { return format(n) }

// refNode is a name or dotted path referring to a variable or context.
type refNode struct {
	ref *Reference
	// col is the column of the first name, for errors during binding.
	col int
}

func (n *refNode) eval(ev *Evaluator) Value {
	return n.ref.value(ev)
}

func (n *refNode) priority() int          { return prioLeaf }
func (n *refNode) fmt(b *strings.Builder) { b.WriteString(strings.Join(n.ref.path, ".")) }

func (n *refNode) clone() node {
	return &refNode{ref: n.ref.detachedCopy(), col: n.col}
}

func (n *refNode) visit(f func(node)) { f(n) }
func (n *refNode) String() string     { return format(n) }

// refs returns the reference nodes in the tree rooted at n, in order.
func refs(n node) []*refNode {
	var r []*refNode
	n.visit(func(m node) {
		if ref, ok := m.(*refNode); ok {
			r = append(r, ref)
		}
	})
	return r
}
