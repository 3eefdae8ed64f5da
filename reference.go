package formula

import (
	"strconv"
	"strings"
)

// Reference is a dotted path of names resolved against a context. All but the
// last name must be subcontexts; the last may be a subcontext or a variable.
//
// References appear in formulas, where they are managed by the variable that
// holds the formula, and as standalone references created by NewReference.
// A standalone reference counts as a user of the variable it resolves to, so
// the variable can't be removed until the reference is closed or re-resolved
// elsewhere.
type Reference struct {
	origin *Context
	path   []string

	// owner is the variable whose contents hold the reference, or nil.
	owner *Variable
	// attached is set while the reference is registered with its graph,
	// either as part of a variable's contents or as a standalone reference.
	attached   bool
	standalone bool
	// res is the last resolution of an attached reference.
	res resolution
	// stale is set when a context that the last resolution looked in has
	// changed.
	stale bool
	// blocked is set when re-resolution found a target that would make the
	// owner depend on itself.
	blocked bool
	closed  bool
}

// ReferenceError is an error from a reference path that does not resolve.
type ReferenceError struct {
	Path []string
	// Index is the position in Path of the first name that failed to
	// resolve.
	Index int
}

func (err *ReferenceError) Error() string {
	p := strings.Join(err.Path, ".")
	if err.Index < 0 || err.Index >= len(err.Path) {
		return "unresolved reference " + strconv.Quote(p)
	}
	return "unresolved reference " + strconv.Quote(p) + ": no " + strconv.Quote(err.Path[err.Index]) + " at position " + strconv.Itoa(err.Index)
}

// resolution is the outcome of resolving a path.
type resolution struct {
	target *Variable
	sub    *Context
	// fail is the index of the first failing name, or -1 on success.
	fail int
	// watched are the contexts in which names were looked up, plus the
	// target context itself.
	watched []*Context
}

// deps returns the variables that the value of the resolution depends on.
func (res resolution) deps() []*Variable {
	switch {
	case res.target != nil:
		return []*Variable{res.target}
	case res.sub != nil:
		return res.sub.variables()
	default:
		return nil
	}
}

func newReference(ctx *Context, path []string) *Reference {
	return &Reference{origin: ctx, path: path, res: resolution{fail: -1}}
}

// detachedCopy returns an unregistered reference with the same path.
func (r *Reference) detachedCopy() *Reference {
	return newReference(r.origin, r.path)
}

// NewReference creates a standalone reference to a path relative to ctx. It
// must be closed when no longer needed.
func NewReference(ctx *Context, path ...string) (*Reference, error) {
	if len(path) == 0 {
		return nil, &InvalidNameError{}
	}
	for _, name := range path {
		if !validName(name) {
			return nil, &InvalidNameError{Name: name}
		}
	}
	ctx.g.mu.Lock()
	defer ctx.g.mu.Unlock()
	r := newReference(ctx, append([]string(nil), path...))
	r.standalone = true
	r.attach(nil, r.walk())
	return r, nil
}

// walk resolves the path against the current state of the graph.
func (r *Reference) walk() resolution {
	res := resolution{fail: -1}
	c := r.origin
	if c == nil || c.removed {
		res.fail = 0
		return res
	}
	for i, name := range r.path {
		res.watched = append(res.watched, c)
		last := i == len(r.path)-1
		if s := c.subs[name]; s != nil {
			if last {
				res.sub = s
				res.watched = append(res.watched, s)
				return res
			}
			c = s
			continue
		}
		if v := c.vars[name]; v != nil && last {
			res.target = v
			return res
		}
		res.fail = i
		return res
	}
	panic("formula: empty reference path")
}

// current returns the resolution of the reference as of now: the recorded
// one for attached references, or a fresh walk for detached ones.
func (r *Reference) current() resolution {
	if r.attached {
		return r.res
	}
	return r.walk()
}

// same returns whether res resolves to the same thing as the recorded
// resolution.
func (r *Reference) same(res resolution) bool {
	return r.res.target == res.target && r.res.sub == res.sub && r.res.fail == res.fail
}

// attach registers the reference with its graph, owned by v or standalone if v
// is nil.
func (r *Reference) attach(v *Variable, res resolution) {
	r.owner = v
	r.attached = true
	r.stale = false
	r.blocked = false
	r.res = resolution{fail: -1}
	r.apply(res)
}

// apply records a new resolution, moving watcher and standalone
// registrations to match.
func (r *Reference) apply(res resolution) {
	for _, c := range r.res.watched {
		delete(c.watchers, r)
	}
	for _, c := range res.watched {
		c.watchers[r] = struct{}{}
	}
	if r.standalone && r.res.target != res.target {
		if r.res.target != nil {
			delete(r.res.target.refs, r)
		}
		if res.target != nil {
			res.target.refs[r] = struct{}{}
		}
	}
	r.res = res
}

// detach removes all of the reference's registrations.
func (r *Reference) detach() {
	if !r.attached {
		return
	}
	r.apply(resolution{fail: -1})
	delete(r.origin.g.stale, r)
	r.attached = false
	r.owner = nil
	r.stale = false
	r.blocked = false
}

// invalidate marks the reference for re-resolution. The owner's value is
// invalidated immediately; the new resolution happens on the next graph
// operation that needs it.
func (r *Reference) invalidate() {
	r.stale = true
	if r.owner == nil {
		return
	}
	g := r.owner.ctx.g
	g.stale[r] = struct{}{}
	g.markDirty(r.owner)
}

// value evaluates the reference.
func (r *Reference) value(ev *Evaluator) Value {
	if r.blocked {
		return Error{
			Kind:   ErrCircular,
			Err:    &CircularDependencyError{Variable: r.owner.path(), Through: r.String()},
			Source: r.String(),
		}
	}
	res := r.current()
	switch {
	case res.target != nil:
		return res.target.evaluate()
	case res.sub != nil:
		vars := res.sub.variables()
		items := make([]Value, len(vars))
		for i, v := range vars {
			items[i] = v.evaluate()
		}
		return Clause{Items: items, Bracket: BracketBrace}
	default:
		return Error{
			Kind:   ErrRef,
			Err:    &ReferenceError{Path: append([]string(nil), r.path...), Index: res.fail},
			Source: r.String(),
		}
	}
}

// Resolve evaluates the reference, re-resolving it first if the contexts along
// its path have changed.
func (r *Reference) Resolve() Value {
	g := r.origin.g
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refresh()
	if r.closed {
		return Error{Kind: ErrRef, Err: ErrRemoved, Source: r.String()}
	}
	r.update()
	return r.value(g.ev)
}

// Update re-resolves the reference if the contexts along its path have
// changed. It returns true if the reference now resolves to a different
// variable or context, or fails at a different name, than before.
func (r *Reference) Update() bool {
	g := r.origin.g
	g.mu.Lock()
	defer g.mu.Unlock()
	return r.update()
}

func (r *Reference) update() bool {
	if !r.stale || r.closed {
		return false
	}
	res := r.walk()
	changed := !r.same(res)
	r.apply(res)
	r.stale = false
	if changed {
		r.origin.g.log.Debug().Str("ref", r.String()).Int("fail", res.fail).Msg("reference re-resolved")
	}
	return changed
}

// Variable returns the variable the reference resolved to when it was last
// updated, or nil if it resolved to a context or failed.
func (r *Reference) Variable() *Variable {
	g := r.origin.g
	g.mu.Lock()
	defer g.mu.Unlock()
	return r.res.target
}

// Close releases the reference's registrations. A closed reference no longer
// prevents removal of its target.
func (r *Reference) Close() {
	g := r.origin.g
	g.mu.Lock()
	defer g.mu.Unlock()
	r.detach()
	r.closed = true
}

// Path returns the names in the reference's path.
func (r *Reference) Path() []string {
	return append([]string(nil), r.path...)
}

// String returns the reference's path as written in formulas.
func (r *Reference) String() string {
	return strings.Join(r.path, ".")
}
