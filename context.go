package formula

import (
	"strconv"
	"strings"
)

// Context is a namespace in a graph. It holds variables and subcontexts, with
// names unique across both.
type Context struct {
	g      *Graph
	parent *Context
	name   string

	vars map[string]*Variable
	subs map[string]*Context
	// order lists the names of variables and subcontexts in the order they
	// were added.
	order []string
	// watchers are the references whose last resolution looked up a name
	// here. They go stale whenever the set of names changes.
	watchers map[*Reference]struct{}
	removed  bool
}

// ExposesContext is implemented by host objects that publish their own
// variables into a graph. See Context.Bind.
type ExposesContext interface {
	// ExposeContext populates ctx, which is empty and reserved for the host,
	// with the host's variables and subcontexts.
	ExposeContext(ctx *Context) error
}

// DuplicateNameError is an error from adding a name that already exists in a
// context.
type DuplicateNameError struct {
	// Context is the path of the context.
	Context string
	Name    string
}

func (err *DuplicateNameError) Error() string {
	return "duplicate name " + strconv.Quote(err.Name) + " in context " + strconv.Quote(err.Context)
}

// InvalidNameError is an error from adding a variable or context with a name
// that can't be written in formulas.
type InvalidNameError struct {
	Name string
}

func (err *InvalidNameError) Error() string {
	return "invalid name " + strconv.Quote(err.Name)
}

func newContext(g *Graph, parent *Context, name string) *Context {
	return &Context{
		g:        g,
		parent:   parent,
		name:     name,
		vars:     make(map[string]*Variable),
		subs:     make(map[string]*Context),
		watchers: make(map[*Reference]struct{}),
	}
}

// Graph returns the graph that owns the context.
func (c *Context) Graph() *Graph {
	return c.g
}

// Name returns the context's name within its parent. The root context's name
// is empty.
func (c *Context) Name() string {
	return c.name
}

// Parent returns the context's parent, or nil for the root.
func (c *Context) Parent() *Context {
	return c.parent
}

// Path returns the dotted path of the context from the root. The root's path
// is empty.
func (c *Context) Path() string {
	return c.path()
}

func (c *Context) path() string {
	if c.parent == nil {
		return c.name
	}
	if p := c.parent.path(); p != "" {
		return p + "." + c.name
	}
	return c.name
}

// qualify returns the dotted path of a name in c.
func (c *Context) qualify(name string) string {
	if p := c.path(); p != "" {
		return p + "." + name
	}
	return name
}

// AddVariable adds a new undefined variable.
func (c *Context) AddVariable(name string) (*Variable, error) {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	return c.addVariable(name)
}

func (c *Context) addVariable(name string) (*Variable, error) {
	if err := c.checkName(name); err != nil {
		return nil, err
	}
	v := &Variable{
		ctx:       c,
		name:      name,
		sources:   make(map[handle]struct{}),
		listeners: make(map[handle]struct{}),
		refs:      make(map[*Reference]struct{}),
	}
	v.h = c.g.alloc(v)
	c.vars[name] = v
	c.order = append(c.order, name)
	c.changed()
	c.g.log.Debug().Str("variable", v.path()).Msg("variable added")
	return v, nil
}

// AddSubcontext adds a new empty subcontext.
func (c *Context) AddSubcontext(name string) (*Context, error) {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	if err := c.checkName(name); err != nil {
		return nil, err
	}
	s := newContext(c.g, c, name)
	c.subs[name] = s
	c.order = append(c.order, name)
	c.changed()
	c.g.log.Debug().Str("context", s.path()).Msg("subcontext added")
	return s, nil
}

// Bind adds a subcontext and lets host populate it. If host fails, the
// subcontext is removed again and the host's error is returned. If the host
// made variables outside the subcontext depend on it before failing, the
// subcontext can't be removed; Bind then returns it along with the error.
func (c *Context) Bind(name string, host ExposesContext) (*Context, error) {
	s, err := c.AddSubcontext(name)
	if err != nil {
		return nil, err
	}
	if err := host.ExposeContext(s); err != nil {
		if !c.RemoveSubcontext(name) {
			c.g.log.Warn().Str("context", s.Path()).Err(err).Msg("failed bind left context in use")
			return s, err
		}
		return nil, err
	}
	return s, nil
}

func (c *Context) checkName(name string) error {
	if c.removed {
		return ErrRemoved
	}
	if !validName(name) {
		return &InvalidNameError{Name: name}
	}
	if c.has(name) {
		return &DuplicateNameError{Context: c.path(), Name: name}
	}
	return nil
}

// has returns whether c has a variable or subcontext with the given name.
func (c *Context) has(name string) bool {
	return c.vars[name] != nil || c.subs[name] != nil
}

// names returns the names in c in order.
func (c *Context) names() []string {
	return append([]string(nil), c.order...)
}

// changed notifies watchers that the set of names in c has changed.
func (c *Context) changed() {
	for r := range c.watchers {
		r.invalidate()
	}
}

// Variable returns the variable with the given name, or nil if there is none.
func (c *Context) Variable(name string) *Variable {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	return c.vars[name]
}

// Subcontext returns the subcontext with the given name, or nil if there is
// none.
func (c *Context) Subcontext(name string) *Context {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	return c.subs[name]
}

// Variables returns the context's variables in the order they were added.
func (c *Context) Variables() []*Variable {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	return c.variables()
}

func (c *Context) variables() []*Variable {
	r := make([]*Variable, 0, len(c.vars))
	for _, name := range c.order {
		if v := c.vars[name]; v != nil {
			r = append(r, v)
		}
	}
	return r
}

// Subcontexts returns the context's subcontexts in the order they were added.
func (c *Context) Subcontexts() []*Context {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	r := make([]*Context, 0, len(c.subs))
	for _, name := range c.order {
		if s := c.subs[name]; s != nil {
			r = append(r, s)
		}
	}
	return r
}

// Parse parses a formula with names resolved in c.
func (c *Context) Parse(text string, opts ...ParseOption) (*Expr, error) {
	return Parse(text, c, opts...)
}

// RemoveVariable removes a variable from the context. It fails and returns
// false if v is not in c, if other variables depend on v, or if standalone
// references are resolved to it.
func (c *Context) RemoveVariable(v *Variable) bool {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	c.g.refresh()
	if v == nil || v.removed || v.ctx != c {
		return false
	}
	if len(v.listeners) > 0 || len(v.refs) > 0 {
		c.g.log.Warn().Str("variable", v.path()).Int("listeners", len(v.listeners)).Int("refs", len(v.refs)).Msg("refusing to remove variable in use")
		return false
	}
	c.g.log.Debug().Str("variable", v.path()).Msg("variable removed")
	v.discard()
	delete(c.vars, v.name)
	c.forget(v.name)
	c.changed()
	return true
}

// RemoveSubcontext removes a subcontext and everything in it. It fails and
// returns false if there is no such subcontext, or if any variable inside it
// has a listener or standalone reference from outside it.
func (c *Context) RemoveSubcontext(name string) bool {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	c.g.refresh()
	s := c.subs[name]
	if s == nil {
		return false
	}
	var ctxs []*Context
	var vars []*Variable
	inside := make(map[handle]bool)
	s.walk(func(x *Context) {
		ctxs = append(ctxs, x)
		for _, v := range x.variables() {
			vars = append(vars, v)
			inside[v.h] = true
		}
	})
	for _, v := range vars {
		for h := range v.listeners {
			if !inside[h] {
				c.g.log.Warn().Str("context", s.path()).Str("variable", v.path()).Msg("refusing to remove context in use")
				return false
			}
		}
		if len(v.refs) > 0 {
			c.g.log.Warn().Str("context", s.path()).Str("variable", v.path()).Msg("refusing to remove context in use")
			return false
		}
	}
	c.g.log.Debug().Str("context", s.path()).Int("variables", len(vars)).Msg("subcontext removed")
	for _, v := range vars {
		v.discard()
	}
	for _, x := range ctxs {
		x.removed = true
		x.changed()
	}
	delete(c.subs, name)
	c.forget(name)
	c.changed()
	return true
}

// walk calls f on c and each context below it.
func (c *Context) walk(f func(*Context)) {
	f(c)
	for _, name := range c.order {
		if s := c.subs[name]; s != nil {
			s.walk(f)
		}
	}
}

// forget removes a name from the insertion order.
func (c *Context) forget(name string) {
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// String returns a description of the context for debugging.
func (c *Context) String() string {
	var b strings.Builder
	b.WriteString("context ")
	b.WriteString(strconv.Quote(c.path()))
	if c.removed {
		b.WriteString(" (removed)")
	}
	return b.String()
}
