package formula

import (
	"container/list"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/zephyrtronium/formula/internal/pqueue"
)

// Expr is a parsed formula. An Expr parsed with a context holds references
// into that context's graph and evaluates against its current state.
type Expr struct {
	// n is the root node of the expression.
	n node
	// g is the graph that references resolve in. It is nil for expressions
	// parsed without a context.
	g *Graph
}

// Parse parses a formula. Names in the formula are resolved against ctx,
// which may be nil if the formula uses no names. The given options are
// applied in order.
//
// The returned error is a *LexError or a *SyntaxError, both of which
// implement InputError.
func Parse(text string, ctx *Context, opts ...ParseOption) (*Expr, error) {
	p := defaultParsectx()
	for _, opt := range opts {
		p = opt.parseOption(p)
	}
	if ctx == nil {
		return parse(text, nil, &p)
	}
	ctx.g.mu.Lock()
	defer ctx.g.mu.Unlock()
	return parse(text, ctx, &p)
}

// parse parses a formula. If ctx is not nil, its graph's lock must be held.
func parse(text string, ctx *Context, p *parsectx) (*Expr, error) {
	toks, err := Tokenize(text)
	if err != nil {
		return nil, err
	}
	ps := parser{
		p:    p,
		ctx:  ctx,
		toks: make([]Token, 0, len(toks)),
		eof:  Token{Col: utf8.RuneCountInString(text) + 1},
	}
	for _, tok := range toks {
		if tok.Kind != TokenSpace {
			ps.toks = append(ps.toks, tok)
		}
	}
	items, _, err := ps.sequence(Token{})
	if err != nil {
		return nil, err
	}
	var n node
	switch len(items) {
	case 0:
		return nil, &SyntaxError{Col: ps.eof.Col, Reason: ReasonIncomplete}
	case 1:
		n = items[0]
	default:
		n = &clauseNode{items: items, br: BracketNone}
	}
	if err := ps.bind(n); err != nil {
		return nil, err
	}
	ex := Expr{n: n}
	if ctx != nil {
		ex.g = ctx.g
	}
	return &ex, nil
}

type parser struct {
	p   *parsectx
	ctx *Context
	// toks is the input without whitespace.
	toks []Token
	i    int
	// eof is the token returned past the end of the input.
	eof Token
}

func (ps *parser) next() Token {
	if ps.i >= len(ps.toks) {
		return ps.eof
	}
	tok := ps.toks[ps.i]
	ps.i++
	return tok
}

// sequence parses comma-separated elements up to the bracket closing open, or
// to the end of the input if open is the zero token. The second result reports
// whether the list ended with a trailing comma, as in (a,).
func (ps *parser) sequence(open Token) ([]node, bool, error) {
	var items []node
	for {
		n, end, err := ps.element()
		if err != nil {
			return nil, false, err
		}
		switch end.Kind {
		case TokenSep:
			if n == nil {
				return nil, false, syntaxErr(end, ReasonIncomplete)
			}
			items = append(items, n)
		case TokenClose:
			if open.Kind == TokenNone || strings.IndexByte(OpenBrackets, open.Text[0]) != strings.IndexByte(CloseBrackets, end.Text[0]) {
				return nil, false, syntaxErr(end, ReasonNesting)
			}
			if n == nil {
				// () is empty, and (a,) has one item.
				return items, len(items) > 0, nil
			}
			return append(items, n), false, nil
		default:
			if open.Kind != TokenNone {
				return nil, false, syntaxErr(open, ReasonNesting)
			}
			if n == nil {
				if len(items) > 0 {
					return nil, false, syntaxErr(end, ReasonIncomplete)
				}
				return nil, false, nil
			}
			return append(items, n), false, nil
		}
	}
}

// pending is an entry in an element's list. It is either a value node or an
// operator placeholder waiting for reduction.
type pending struct {
	// n is the value, or nil for a placeholder.
	n   node
	op  *operator
	tok Token
}

// opKey orders placeholders for reduction.
type opKey struct {
	prio, seq int
	e         *list.Element
}

func lessKey(a, b opKey) bool {
	if a.prio != b.prio {
		return a.prio < b.prio
	}
	return a.seq < b.seq
}

// element holds the state of one comma-separated element.
type element struct {
	l   *list.List
	q   *pqueue.Queue[opKey]
	seq int
}

// value appends a value node, inserting an implicit multiplication if it
// directly follows a number or a bracketed clause.
func (el *element) value(n node, tok Token) error {
	if last := el.l.Back(); last != nil {
		if prev := last.Value.(*pending); prev.n != nil {
			if !implicit(prev.n) {
				return syntaxErr(tok, ReasonMissingOp)
			}
			el.operator(opMul, tok)
		}
	}
	el.l.PushBack(&pending{n: n, tok: tok})
	return nil
}

// operator appends an operator placeholder and enqueues it. Unary operators
// are keyed so that the rightmost reduces first.
func (el *element) operator(op *operator, tok Token) {
	e := el.l.PushBack(&pending{op: op, tok: tok})
	k := opKey{prio: op.prio, seq: el.seq, e: e}
	if op.unary {
		k.seq = -k.seq
	}
	el.q.Insert(k)
	el.seq++
}

// valued returns whether the element's last entry is a value.
func (el *element) valued() bool {
	last := el.l.Back()
	return last != nil && last.Value.(*pending).n != nil
}

// implicit returns whether a value followed directly by another value is
// multiplied by it.
func implicit(n node) bool {
	switch n := n.(type) {
	case *literalNode:
		_, ok := n.v.(Number)
		return ok
	case *clauseNode:
		return n.br != BracketNone
	}
	return false
}

// element scans one element up to a separator, close bracket, or the end of
// the input, and reduces it. The second result is the token that ended the
// element. If the element is empty, the node is nil with no error.
func (ps *parser) element() (node, Token, error) {
	el := element{l: list.New(), q: pqueue.New(lessKey)}
	for {
		tok := ps.next()
		switch tok.Kind {
		case TokenNone, TokenSep, TokenClose:
			n, err := ps.reduce(&el, tok)
			return n, tok, err
		case TokenOp:
			if el.valued() {
				op := binop(tok.Text)
				if op == nil {
					return nil, tok, syntaxErr(tok, ReasonOperator)
				}
				el.operator(op, tok)
				continue
			}
			op := unop(tok.Text)
			if op == nil {
				if binop(tok.Text) != nil {
					return nil, tok, syntaxErr(tok, ReasonOperand)
				}
				return nil, tok, syntaxErr(tok, ReasonOperator)
			}
			el.operator(op, tok)
		case TokenOpen:
			if tok.Text == "[" {
				if !el.valued() {
					return nil, tok, syntaxErr(tok, ReasonNesting)
				}
				items, _, err := ps.sequence(tok)
				if err != nil {
					return nil, tok, err
				}
				if len(items) != 1 {
					return nil, tok, syntaxErr(tok, ReasonIncomplete)
				}
				last := el.l.Back().Value.(*pending)
				last.n = &indexNode{target: last.n, index: items[0]}
				continue
			}
			items, trail, err := ps.sequence(tok)
			if err != nil {
				return nil, tok, err
			}
			br := BracketParen
			if tok.Text == "{" {
				br = BracketBrace
			}
			if err := el.value(&clauseNode{items: items, br: br, trail: trail}, tok); err != nil {
				return nil, tok, err
			}
		default:
			n, err := ps.operand(tok)
			if err != nil {
				return nil, tok, err
			}
			if err := el.value(n, tok); err != nil {
				return nil, tok, err
			}
		}
	}
}

// operand parses a literal, constant, function call, or name.
func (ps *parser) operand(tok Token) (node, error) {
	switch tok.Kind {
	case TokenNumber:
		x, err := ParseNumber(tok.Text)
		if err != nil {
			return nil, syntaxErr(tok, ReasonNumber)
		}
		return &literalNode{v: x}, nil
	case TokenBoolean:
		return &literalNode{v: Boolean(tok.Text == "true")}, nil
	case TokenString:
		return &literalNode{v: Text(tok.Text)}, nil
	case TokenIdent:
		if fn := ps.p.funcs[tok.Text]; fn != nil {
			open := ps.next()
			if open.Kind != TokenOpen || open.Text != "(" {
				return nil, syntaxErr(tok, ReasonCall)
			}
			args, _, err := ps.sequence(open)
			if err != nil {
				return nil, err
			}
			return &callNode{name: tok.Text, fn: fn, args: args}, nil
		}
		if c := ps.p.consts[tok.Text]; c != nil {
			return &constNode{name: tok.Text, c: c}, nil
		}
		return &refNode{ref: newReference(ps.ctx, strings.Split(tok.Text, ".")), col: tok.Col}, nil
	default:
		panic("formula: unknown token: " + tok.String())
	}
}

// reduce reduces the operators of an element in priority order. end is the
// token that ended the element, for errors.
func (ps *parser) reduce(el *element, end Token) (node, error) {
	for {
		k, ok := el.q.ExtractMin()
		if !ok {
			break
		}
		pd := k.e.Value.(*pending)
		next := k.e.Next()
		if next == nil || next.Value.(*pending).n == nil {
			return nil, syntaxErr(pd.tok, ReasonOperand)
		}
		rhs := next.Value.(*pending).n
		if pd.op.unary {
			pd.n = &opNode{op: pd.op, args: []node{rhs}}
			el.l.Remove(next)
			continue
		}
		prev := k.e.Prev()
		if prev == nil || prev.Value.(*pending).n == nil {
			return nil, syntaxErr(pd.tok, ReasonOperand)
		}
		n, err := ps.binary(pd, prev.Value.(*pending).n, rhs)
		if err != nil {
			return nil, err
		}
		pd.n = n
		el.l.Remove(prev)
		el.l.Remove(next)
	}
	switch el.l.Len() {
	case 0:
		return nil, nil
	case 1:
		return el.l.Front().Value.(*pending).n, nil
	default:
		return nil, syntaxErr(end, ReasonIncomplete)
	}
}

// binary builds the node for a binary operator. Member access joins names
// into one reference, and ? pairs with the range to its right.
func (ps *parser) binary(pd *pending, lhs, rhs node) (node, error) {
	switch pd.op {
	case opMember:
		l, ok := lhs.(*refNode)
		r, ok2 := rhs.(*refNode)
		if !ok || !ok2 {
			return nil, syntaxErr(pd.tok, ReasonMember)
		}
		path := make([]string, 0, len(l.ref.path)+len(r.ref.path))
		path = append(path, l.ref.path...)
		path = append(path, r.ref.path...)
		return &refNode{ref: newReference(ps.ctx, path), col: l.col}, nil
	case opCond:
		r, ok := rhs.(*opNode)
		if !ok || r.op != opRange {
			return nil, syntaxErr(pd.tok, ReasonCondition)
		}
		return &condNode{cond: lhs, then: r.args[0], els: r.args[1]}, nil
	}
	return &opNode{op: pd.op, args: []node{lhs, rhs}}, nil
}

// bind checks single names against the parsing context. Unknown names either
// become new variables or fail the parse. Dotted paths are resolved at
// evaluation.
func (ps *parser) bind(root node) error {
	var create []string
	for _, r := range refs(root) {
		name := strings.Join(r.ref.path, ".")
		if ps.ctx == nil {
			return &SyntaxError{Col: r.col, Reason: ReasonUnknown, Text: name}
		}
		if len(r.ref.path) > 1 || ps.ctx.has(name) {
			continue
		}
		if !ps.p.create {
			return &SyntaxError{Col: r.col, Reason: ReasonUnknown, Text: name, Suggestion: ps.suggest(name)}
		}
		create = append(create, name)
	}
	for _, name := range create {
		if ps.ctx.has(name) {
			continue
		}
		if _, err := ps.ctx.addVariable(name); err != nil {
			return err
		}
	}
	return nil
}

// suggest finds a known name close to an unknown one.
func (ps *parser) suggest(name string) string {
	cands := ps.ctx.names()
	for k, fn := range ps.p.funcs {
		if fn != nil {
			cands = append(cands, k)
		}
	}
	for k, c := range ps.p.consts {
		if c != nil {
			cands = append(cands, k)
		}
	}
	sort.Strings(cands)
	limit := len(name)/2 + 1
	ranks := fuzzy.RankFindFold(name, cands)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		if ranks[0].Distance <= limit {
			return ranks[0].Target
		}
	}
	best := ""
	low := strings.ToLower(name)
	for _, c := range cands {
		if d := fuzzy.LevenshteinDistance(low, strings.ToLower(c)); d < limit {
			best, limit = c, d
		}
	}
	return best
}

// Evaluate computes the value of the expression against the current state of
// its graph.
func (e *Expr) Evaluate() Value {
	if e.g == nil {
		return e.n.eval(defaultEvaluator)
	}
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	e.g.refresh()
	return e.n.eval(e.g.ev)
}

// String formats the expression as formula text with the minimal parentheses
// needed to parse the same tree.
func (e *Expr) String() string {
	return format(e.n)
}

// Refs returns the distinct names and paths the expression refers to, in order
// of first appearance.
func (e *Expr) Refs() []string {
	var r []string
	seen := make(map[string]bool)
	for _, n := range refs(e.n) {
		s := strings.Join(n.ref.path, ".")
		if !seen[s] {
			seen[s] = true
			r = append(r, s)
		}
	}
	return r
}
