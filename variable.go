package formula

import (
	"sort"
	"strconv"
)

// Variable is a named value in a context, defined by a formula. Its value is
// cached until the formula or anything it depends on changes.
type Variable struct {
	ctx  *Context
	name string
	h    handle

	// contents is the variable's own copy of its formula, or nil if the
	// variable is undefined.
	contents node
	// owned are the references in contents.
	owned []*Reference
	cache Value
	valid bool
	// evaluating is set while contents are being evaluated.
	evaluating bool

	// sources are the variables that owned references depend on, and
	// listeners are the variables that depend on this one.
	sources   map[handle]struct{}
	listeners map[handle]struct{}
	// refs are standalone references currently resolved to the variable.
	refs    map[*Reference]struct{}
	removed bool
}

// CircularDependencyError is an error from defining a variable in terms of
// itself.
type CircularDependencyError struct {
	// Variable is the path of the variable being defined.
	Variable string
	// Through is the path of the source through which the variable would
	// depend on itself.
	Through string
}

func (err *CircularDependencyError) Error() string {
	if err.Variable == err.Through {
		return "circular dependency: " + strconv.Quote(err.Variable) + " refers to itself"
	}
	return "circular dependency: " + strconv.Quote(err.Variable) + " would depend on itself through " + strconv.Quote(err.Through)
}

// Name returns the variable's name in its context.
func (v *Variable) Name() string {
	return v.name
}

// Context returns the context containing the variable.
func (v *Variable) Context() *Context {
	return v.ctx
}

// Path returns the dotted path of the variable from the graph root.
func (v *Variable) Path() string {
	return v.path()
}

func (v *Variable) path() string {
	return v.ctx.qualify(v.name)
}

// SetContents replaces the variable's formula with a copy of e. A nil e makes
// the variable undefined. If the new formula would make the variable depend on
// itself, the result is a *CircularDependencyError and nothing changes.
// Otherwise the variable and everything that depends on it is invalidated,
// to be recomputed on the next evaluation.
func (v *Variable) SetContents(e *Expr) error {
	g := v.ctx.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if v.removed {
		return ErrRemoved
	}
	if e != nil && e.g != nil && e.g != g {
		return ErrForeignGraph
	}
	g.refresh()
	var n node
	if e != nil {
		n = e.n.clone()
	}
	return v.setContents(n)
}

// SetFormula parses a formula in the variable's context and sets it as the
// variable's contents. Variables created by the CreateVariables option remain
// even if the formula is rejected as circular.
func (v *Variable) SetFormula(text string, opts ...ParseOption) error {
	g := v.ctx.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if v.removed {
		return ErrRemoved
	}
	p := defaultParsectx()
	for _, opt := range opts {
		p = opt.parseOption(p)
	}
	e, err := parse(text, v.ctx, &p)
	if err != nil {
		return err
	}
	g.refresh()
	return v.setContents(e.n)
}

// SetValue sets the variable's contents to a constant value.
func (v *Variable) SetValue(x Value) error {
	g := v.ctx.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if v.removed {
		return ErrRemoved
	}
	g.refresh()
	return v.setContents(&literalNode{v: x})
}

// setContents installs n as the variable's contents, which it must own.
func (v *Variable) setContents(n node) error {
	g := v.ctx.g
	var owned []*Reference
	if n != nil {
		for _, rn := range refs(n) {
			owned = append(owned, rn.ref)
		}
	}
	res := make([]resolution, len(owned))
	sources := make(map[handle]*Variable)
	for i, r := range owned {
		res[i] = r.walk()
		for _, s := range res[i].deps() {
			if _, ok := sources[s.h]; ok {
				continue
			}
			if s == v || g.reaches(v, s) {
				err := &CircularDependencyError{Variable: v.path(), Through: s.path()}
				g.log.Warn().Str("variable", err.Variable).Str("through", err.Through).Msg("rejected circular formula")
				return err
			}
			sources[s.h] = s
		}
	}
	for _, r := range v.owned {
		r.detach()
	}
	for i, r := range owned {
		r.attach(v, res[i])
	}
	v.owned = owned
	v.contents = n
	g.relink(v, sources)
	d := g.markDirty(v)
	g.log.Debug().Str("variable", v.path()).Int("sources", len(sources)).Int("dirty", d).Msg("contents replaced")
	return nil
}

// ownedSources computes the sources of v from its owned references.
func (v *Variable) ownedSources() map[handle]*Variable {
	m := make(map[handle]*Variable)
	for _, r := range v.owned {
		if r.blocked {
			continue
		}
		for _, s := range r.current().deps() {
			m[s.h] = s
		}
	}
	return m
}

// Evaluate returns the variable's value, computing it if it is not cached.
// An undefined variable evaluates to a #NAME? error.
func (v *Variable) Evaluate() Value {
	g := v.ctx.g
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refresh()
	return v.evaluate()
}

func (v *Variable) evaluate() Value {
	if v.valid {
		return v.cache
	}
	if v.evaluating {
		// Cycles are rejected when edges are added, so this means a broken
		// graph rather than bad input.
		panic("formula: re-entrant evaluation of " + v.path())
	}
	var r Value
	if v.contents == nil {
		r = Error{Kind: ErrName, Err: &NameError{Name: v.path()}, Source: v.path()}
	} else {
		v.evaluating = true
		r = v.contents.eval(v.ctx.g.ev)
		v.evaluating = false
	}
	v.cache, v.valid = r, true
	g := v.ctx.g
	g.log.Debug().Str("variable", v.path()).Stringer("value", r).Msg("evaluated")
	if g.onRefresh != nil {
		g.onRefresh(v)
	}
	return r
}

// Contents returns a copy of the variable's formula, or nil if it is
// undefined.
func (v *Variable) Contents() *Expr {
	g := v.ctx.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if v.contents == nil {
		return nil
	}
	return &Expr{n: v.contents.clone(), g: g}
}

// Formula returns the text of the variable's formula, or the empty string if
// it is undefined.
func (v *Variable) Formula() string {
	g := v.ctx.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if v.contents == nil {
		return ""
	}
	return format(v.contents)
}

// Dirty returns whether the variable's value must be recomputed on its next
// evaluation.
func (v *Variable) Dirty() bool {
	g := v.ctx.g
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refresh()
	return !v.valid
}

// Sources returns the variables that v's formula depends on, sorted by path.
func (v *Variable) Sources() []*Variable {
	g := v.ctx.g
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refresh()
	return g.resolveAll(v.sources)
}

// Listeners returns the variables whose formulas depend on v, sorted by path.
func (v *Variable) Listeners() []*Variable {
	g := v.ctx.g
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refresh()
	return g.resolveAll(v.listeners)
}

func (g *Graph) resolveAll(hs map[handle]struct{}) []*Variable {
	r := make([]*Variable, 0, len(hs))
	for h := range hs {
		if u := g.get(h); u != nil {
			r = append(r, u)
		}
	}
	sort.Slice(r, func(i, j int) bool { return r[i].path() < r[j].path() })
	return r
}

// Removed returns whether the variable has been removed from its graph.
func (v *Variable) Removed() bool {
	g := v.ctx.g
	g.mu.Lock()
	defer g.mu.Unlock()
	return v.removed
}

// discard detaches v from the graph ahead of removal from its context.
func (v *Variable) discard() {
	g := v.ctx.g
	for _, r := range v.owned {
		r.detach()
	}
	v.owned = nil
	g.relink(v, nil)
	g.release(v.h)
	v.removed = true
	v.contents, v.cache, v.valid = nil, nil, false
}

func (v *Variable) String() string {
	return "variable " + strconv.Quote(v.path())
}
