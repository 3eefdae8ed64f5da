package formula

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Graph is a dependency graph of variables organized into a tree of contexts.
// All methods of a graph and of its contexts, variables, references, and
// expressions are safe to call concurrently; they are serialized by a single
// lock per graph.
type Graph struct {
	mu sync.Mutex
	// slots is the arena of variables addressed by handles.
	slots []slot
	// free lists unused slots.
	free []int32
	root *Context
	// stale is the set of references in variable contents that need to be
	// re-resolved before the graph's edges can be trusted.
	stale map[*Reference]struct{}

	ev        *Evaluator
	log       zerolog.Logger
	onRefresh func(*Variable)
}

// slot holds a variable in the arena. gen increments whenever the slot is
// released, so handles to a removed variable never reach its successor.
type slot struct {
	v   *Variable
	gen uint32
}

// handle is a non-owning reference to a variable in a graph's arena.
type handle struct {
	idx int32
	gen uint32
}

// GraphOption is an option for creating a graph.
type GraphOption func(g *Graph)

// Precision sets the number of significant decimal digits kept by inexact
// operations. The default is DefaultPrecision.
func Precision(digits uint32) GraphOption {
	return func(g *Graph) {
		g.ev = NewEvaluator(digits)
	}
}

// WithLogger sets the logger for graph events. Contents changes, reference
// re-resolution, and structural changes are logged at debug level. Rejected
// cycles and refused removals are logged at warn level. The default logger
// discards everything.
func WithLogger(log zerolog.Logger) GraphOption {
	return func(g *Graph) {
		g.log = log
	}
}

// OnRefresh sets a function to call whenever a variable's value is
// recomputed. It is called with the graph's lock held, so it must not call
// methods of the graph or anything in it.
func OnRefresh(f func(v *Variable)) GraphOption {
	return func(g *Graph) {
		g.onRefresh = f
	}
}

// NewGraph creates an empty graph.
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		stale: make(map[*Reference]struct{}),
		ev:    defaultEvaluator,
		log:   zerolog.Nop(),
	}
	g.root = newContext(g, nil, "")
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Root returns the root context of the graph.
func (g *Graph) Root() *Context {
	return g.root
}

// Precision returns the number of significant decimal digits that the graph
// evaluates to.
func (g *Graph) Precision() uint32 {
	return g.ev.Precision()
}

var (
	// ErrRemoved is returned when modifying a variable or context that has
	// been removed from its graph.
	ErrRemoved = errors.New("formula: variable or context has been removed")
	// ErrForeignGraph is returned when using an expression with a variable
	// of a different graph.
	ErrForeignGraph = errors.New("formula: expression belongs to a different graph")
)

func (g *Graph) alloc(v *Variable) handle {
	if n := len(g.free); n > 0 {
		idx := g.free[n-1]
		g.free = g.free[:n-1]
		g.slots[idx].v = v
		return handle{idx: idx, gen: g.slots[idx].gen}
	}
	g.slots = append(g.slots, slot{v: v})
	return handle{idx: int32(len(g.slots) - 1)}
}

// get returns the variable for a handle, or nil if it has been released.
func (g *Graph) get(h handle) *Variable {
	if h.idx < 0 || int(h.idx) >= len(g.slots) {
		return nil
	}
	s := g.slots[h.idx]
	if s.gen != h.gen {
		return nil
	}
	return s.v
}

func (g *Graph) release(h handle) {
	s := &g.slots[h.idx]
	if s.gen != h.gen {
		panic("formula: double release of variable handle")
	}
	s.v = nil
	s.gen++
	g.free = append(g.free, h.idx)
}

// reaches returns whether to is a transitive listener of from.
func (g *Graph) reaches(from, to *Variable) bool {
	seen := map[handle]bool{from.h: true}
	queue := []*Variable{from}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for h := range u.listeners {
			if h == to.h {
				return true
			}
			if seen[h] {
				continue
			}
			seen[h] = true
			if l := g.get(h); l != nil {
				queue = append(queue, l)
			}
		}
	}
	return false
}

// markDirty invalidates the cached values of v and all of its transitive
// listeners. It returns the number of values invalidated.
func (g *Graph) markDirty(v *Variable) int {
	n := 0
	seen := map[handle]bool{v.h: true}
	stack := []*Variable{v}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if u.valid {
			u.valid = false
			u.cache = nil
			n++
		}
		// Listeners of a variable that is already dirty may still be clean
		// if a conditional skipped it, so the walk can't stop early.
		for h := range u.listeners {
			if seen[h] {
				continue
			}
			seen[h] = true
			if l := g.get(h); l != nil {
				stack = append(stack, l)
			}
		}
	}
	return n
}

// relink replaces the source set of v, updating listener sets to match.
func (g *Graph) relink(v *Variable, sources map[handle]*Variable) {
	for h := range v.sources {
		if _, ok := sources[h]; ok {
			continue
		}
		if s := g.get(h); s != nil {
			delete(s.listeners, v.h)
		}
	}
	set := make(map[handle]struct{}, len(sources))
	for h, s := range sources {
		s.listeners[v.h] = struct{}{}
		set[h] = struct{}{}
	}
	v.sources = set
}

// refresh re-resolves the stale references in variable contents. A reference
// whose new target would close a cycle is blocked: it evaluates to a #CIRC!
// error and stays stale so that it is retried on the next refresh.
func (g *Graph) refresh() {
	for r := range g.stale {
		v := r.owner
		if v == nil || v.removed {
			delete(g.stale, r)
			continue
		}
		res := r.walk()
		blocked, grew := false, false
		for _, s := range res.deps() {
			if _, ok := v.sources[s.h]; ok {
				continue
			}
			// A context reference gains sources when its context gains
			// variables, even though it still resolves to the same context.
			grew = true
			if s == v || g.reaches(v, s) {
				blocked = true
				break
			}
		}
		changed := !r.same(res) || blocked != r.blocked || grew && !blocked
		r.apply(res)
		r.blocked = blocked
		if !blocked {
			r.stale = false
			delete(g.stale, r)
		}
		if !changed {
			continue
		}
		g.relink(v, v.ownedSources())
		n := g.markDirty(v)
		ev := g.log.Debug().Str("variable", v.path()).Str("ref", r.String()).Int("dirty", n)
		if blocked {
			ev = ev.Bool("blocked", true)
		}
		ev.Msg("reference re-resolved")
	}
}
