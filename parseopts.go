package formula

// ParseOption is an option for parsing.
type ParseOption interface {
	parseOption(parsectx) parsectx
}

type (
	funcopt struct {
		name string
		fn   Func
	}
	constopt struct {
		name string
		c    Constant
	}
	funcsopt  map[string]Func
	createopt bool
)

// parsectx holds the configuration for a parse. It is also a ParseOption.
type parsectx struct {
	// funcs is the set of names parsed as function calls.
	funcs map[string]Func
	// consts is the set of names parsed as constants.
	consts map[string]Constant
	// own indicates that funcs and consts are copies that options may modify.
	own bool
	// create indicates that unknown names create variables.
	create bool
}

func defaultParsectx() parsectx {
	return parsectx{funcs: globalfuncs, consts: globalconsts}
}

// owned returns p with its own copies of the function and constant sets.
func (p parsectx) owned() parsectx {
	if p.own {
		return p
	}
	funcs := make(map[string]Func, len(p.funcs))
	for k, v := range p.funcs {
		funcs[k] = v
	}
	consts := make(map[string]Constant, len(p.consts))
	for k, v := range p.consts {
		consts[k] = v
	}
	p.funcs, p.consts, p.own = funcs, consts, true
	return p
}

// ParseFunc sets a function for parsing. To disable parsing a function or
// constant, pass nil for fn; the name is then parsed as a variable.
func ParseFunc(name string, fn Func) ParseOption {
	return &funcopt{name, fn}
}

func (o *funcopt) parseOption(p parsectx) parsectx {
	p = p.owned()
	if o.fn == nil {
		delete(p.funcs, o.name)
		delete(p.consts, o.name)
		return p
	}
	p.funcs[o.name] = o.fn
	return p
}

// ParseFuncs sets a group of functions for parsing. Functions set to nil are
// disabled, as with ParseFunc.
func ParseFuncs(fns map[string]Func) ParseOption {
	return funcsopt(fns)
}

func (o funcsopt) parseOption(p parsectx) parsectx {
	for k, v := range o {
		p = (&funcopt{k, v}).parseOption(p)
	}
	return p
}

// ParseConst sets a named constant for parsing, such as one created with
// Niladic. Passing nil disables the constant.
func ParseConst(name string, c Constant) ParseOption {
	return &constopt{name, c}
}

func (o *constopt) parseOption(p parsectx) parsectx {
	p = p.owned()
	if o.c == nil {
		delete(p.consts, o.name)
		return p
	}
	p.consts[o.name] = o.c
	return p
}

// DisableDefaultFuncs disables all default functions and constants during
// parsing. Their names will be parsed as variables instead. Functions set by
// options after this one are kept.
func DisableDefaultFuncs() ParseOption {
	return disablefns{}
}

type disablefns struct{}

func (disablefns) parseOption(p parsectx) parsectx {
	p.funcs = map[string]Func{}
	p.consts = map[string]Constant{}
	p.own = true
	return p
}

// CreateVariables tells the parser to add a variable to the parsing context for
// each unknown single name instead of failing. Variables are only created if
// the whole formula parses.
func CreateVariables() ParseOption {
	return createopt(true)
}

func (o createopt) parseOption(p parsectx) parsectx {
	p.create = bool(o)
	return p
}

// ParsingPreset creates a parsing preset that may be more efficient when using
// the same non-default parsing options for many calls to Parse. A preset
// replaces the effects of any options before it; options after it apply on
// top of it.
func ParsingPreset(opts ...ParseOption) ParseOption {
	p := defaultParsectx()
	for _, opt := range opts {
		p = opt.parseOption(p)
	}
	return &p
}

func (o *parsectx) parseOption(parsectx) parsectx {
	p := *o
	// Later options must copy before modifying the preset's sets.
	p.own = false
	return p
}
