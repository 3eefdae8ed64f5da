package formula

import (
	"errors"
	"math/big"
	"reflect"
	"regexp"
	"testing"
)

// testContext creates a graph whose root has variables x, y, z, b, price and
// total, and a subcontext pt with variables u and v.
func testContext(t testing.TB) *Context {
	t.Helper()
	g := NewGraph()
	root := g.Root()
	for _, name := range []string{"x", "y", "z", "b", "price", "total"} {
		if _, err := root.AddVariable(name); err != nil {
			t.Fatal(err)
		}
	}
	pt, err := root.AddSubcontext("pt")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"u", "v"} {
		if _, err := pt.AddVariable(name); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestOpsExist(t *testing.T) {
	for _, r := range Operators {
		if binop(string(r)) == nil && unop(string(r)) == nil {
			t.Errorf("no operator for %c", r)
		}
	}
}

func TestPriorities(t *testing.T) {
	// Each row binds tighter than the next.
	rows := [][]*operator{
		{opNeg, opPlus, opNot, opTilde},
		{opPow},
		{opMul, opDiv, opRem},
		{opAdd, opSub},
		{opMember},
		{opEq, opLess, opGreater},
		{opAnd},
		{opOr},
		{opRange},
		{opCond},
	}
	for i, row := range rows {
		for _, op := range row {
			if op.prio != row[0].prio {
				t.Errorf("%q has priority %d, but %q has %d", op.text, op.prio, row[0].text, row[0].prio)
			}
			if i > 0 && op.prio <= rows[i-1][0].prio {
				t.Errorf("%q (%d) doesn't bind looser than %q (%d)", op.text, op.prio, rows[i-1][0].text, rows[i-1][0].prio)
			}
		}
	}
	if prioList <= prioCond {
		t.Errorf("lists bind tighter than conditionals")
	}
}

func TestParseTrees(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"num", "1", "1"},
		{"negnum", "-1", "-1"},
		{"neg", "-x", "-x"},
		{"negspace", "- 1", "-1"},
		{"plus", "+x", "+x"},
		{"add", "x+y", "x + y"},
		{"precedence", "2+3*4", "2 + 3 * 4"},
		{"paren", "(2+3)*4", "(2 + 3) * 4"},
		{"left", "10-3-2", "10 - 3 - 2"},
		{"right", "10-(3-2)", "10 - (3 - 2)"},
		{"powleft", "2^3^2", "2 ^ 3 ^ 2"},
		{"powright", "2^(3^2)", "2 ^ (3 ^ 2)"},
		{"negpow", "-x^2", "-x ^ 2"},
		{"negpowparen", "-(x^2)", "-(x ^ 2)"},
		{"negneg", "- -x", "--x"},
		{"subneg", "x - -1", "x - -1"},
		{"powneg", "x^-y", "x ^ -y"},
		{"implicit", "2x", "2 * x"},
		{"implicitparen", "3(x+1)", "3 * (x + 1)"},
		{"implicitconst", "2 pi", "2 * pi"},
		{"implicitclauses", "(x)(y)", "(x) * (y)"},
		{"implicitprec", "2x^2", "2 * x ^ 2"},
		{"not", "!(true & false)", "!(true & false)"},
		{"tilde", "~b", "~b"},
		{"andor", "b & b | b", "b & b | b"},
		{"orand", "b | b & b", "b | b & b"},
		{"orparen", "(b | b) & b", "(b | b) & b"},
		{"cmp", "x+1 = y", "x + 1 = y"},
		{"less", "x < y & y > z", "x < y & y > z"},
		{"concat", `"a" & 1`, `"a" & 1`},
		{"range", "1:3", "1:3"},
		{"rangeexpr", "x+1:y*2", "x + 1:y * 2"},
		{"cond", "b ? 1 : 2", "b ? 1 : 2"},
		{"condexpr", "x > 1 ? x - 1 : y", "x > 1 ? x - 1 : y"},
		{"condnested", "b ? 1 : (b ? 2 : 3)", "b ? 1 : (b ? 2 : 3)"},
		{"list", "1, 2, 3", "1, 2, 3"},
		{"listcond", "b ? 1 : 2, 3", "b ? 1 : 2, 3"},
		{"brace", "{1, 2}", "{1, 2}"},
		{"tuple", "(1, 2)", "(1, 2)"},
		{"single", "(1,)", "(1,)"},
		{"emptyparen", "()", "()"},
		{"emptybrace", "{}", "{}"},
		{"bracesingle", "{1}", "{1}"},
		{"call", "sum(1, 2)", "sum(1, 2)"},
		{"callempty", "sum()", "sum()"},
		{"callnested", "max(abs(x), y+1)", "max(abs(x), y + 1)"},
		{"index", "x[0]", "x[0]"},
		{"indexclause", "{1, 2}[x+1]", "{1, 2}[x + 1]"},
		{"negindex", "-x[0]", "-x[0]"},
		{"member", "pt.u", "pt.u"},
		{"memberop", "pt . u", "pt.u"},
		{"memberadd", "pt.u + pt.v", "pt.u + pt.v"},
		{"dotted", "pt.w", "pt.w"},
		{"string", `"a""b"`, `"a""b"`},
		{"bool", "true", "true"},
		{"rem", "x % 3", "x % 3"},
		{"spaces", "  x\t*\ny ", "x * y"},
	}
	ctx := testContext(t)
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e, err := Parse(c.src, ctx)
			if err != nil {
				t.Fatalf("%q failed to parse: %v", c.src, err)
			}
			if got := e.String(); got != c.want {
				t.Errorf("%q formats as %q, want %q", c.src, got, c.want)
			}
			// The formatted text must parse to the same text again.
			f, err := Parse(e.String(), ctx)
			if err != nil {
				t.Fatalf("%q failed to reparse: %v", e.String(), err)
			}
			if f.String() != e.String() {
				t.Errorf("%q reformats as %q", e.String(), f.String())
			}
		})
	}
}

func TestParseNodes(t *testing.T) {
	ctx := testContext(t)
	cases := []struct {
		name string
		src  string
		want reflect.Type
	}{
		{"literal", "1", reflect.TypeOf(&literalNode{})},
		{"const", "pi", reflect.TypeOf(&constNode{})},
		{"op", "1+2", reflect.TypeOf(&opNode{})},
		{"cond", "b ? 1 : 2", reflect.TypeOf(&condNode{})},
		{"call", "abs(1)", reflect.TypeOf(&callNode{})},
		{"clause", "{1}", reflect.TypeOf(&clauseNode{})},
		{"list", "1, 2", reflect.TypeOf(&clauseNode{})},
		{"index", "x[1]", reflect.TypeOf(&indexNode{})},
		{"ref", "x", reflect.TypeOf(&refNode{})},
		{"member", "pt . u", reflect.TypeOf(&refNode{})},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e, err := Parse(c.src, ctx)
			if err != nil {
				t.Fatal(err)
			}
			if got := reflect.TypeOf(e.n); got != c.want {
				t.Errorf("%q parsed to %v, want %v", c.src, got, c.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name   string
		src    string
		reason string
		col    int
		res    []string
	}{
		{"empty", "", ReasonIncomplete, 1, []string{`(?i)\bincomplete\b`}},
		{"blank", "   ", ReasonIncomplete, 4, nil},
		{"trailingop", "1 +", ReasonOperand, 3, []string{`(?i)\boperand\b`, `"\+"`}},
		{"leadingop", "* 2", ReasonOperand, 1, []string{`"\*"`}},
		{"doubleop", "1 + * 2", ReasonOperand, 5, nil},
		{"unaryend", "x*-", ReasonOperand, 3, nil},
		{"haskell", "(+)", ReasonOperand, 2, nil},
		{"opparen", "(x*)", ReasonOperand, 3, nil},
		{"notbinary", "1 ! 2", ReasonOperator, 3, []string{`(?i)\boperator\b`, `"!"`}},
		{"open", "(1", ReasonNesting, 1, []string{`(?i)\bnesting\b`, `"\("`}},
		{"close", "1)", ReasonNesting, 2, []string{`"\)"`}},
		{"mismatch", "(1]", ReasonNesting, 3, []string{`"]"`}},
		{"mismatchnested", "{(1})", ReasonNesting, 4, []string{`"}"`}},
		{"indexstart", "[1]", ReasonNesting, 1, []string{`"\["`}},
		{"indexop", "1 + [1]", ReasonNesting, 5, nil},
		{"indexempty", "x[]", ReasonIncomplete, 2, nil},
		{"indexlist", "x[1, 2]", ReasonIncomplete, 2, nil},
		{"sep", "1,,2", ReasonIncomplete, 3, nil},
		{"leadingsep", ",1", ReasonIncomplete, 1, nil},
		{"trailingsep", "1,", ReasonIncomplete, 3, nil},
		{"adjacent", "x y", ReasonMissingOp, 3, []string{`(?i)\bmissing operator\b`, `"y"`}},
		{"adjacentparen", "x(1)", ReasonMissingOp, 2, nil},
		{"adjacentstring", `"a" "b"`, ReasonMissingOp, 5, nil},
		{"bareFunc", "sum 1", ReasonCall, 1, []string{`"sum"`}},
		{"funcEOF", "abs", ReasonCall, 1, nil},
		{"funcsquare", "abs[1]", ReasonCall, 1, nil},
		{"unknown", "nope + 1", ReasonUnknown, 1, []string{`(?i)\bunknown identifier\b`, `"nope"`}},
		{"member", "1 . x", ReasonMember, 3, nil},
		{"memberindex", "x[0] . y", ReasonMember, 6, nil},
		{"cond", "b ? 1", ReasonCondition, 3, nil},
		{"condparen", "b ? (1 : 2)", ReasonCondition, 3, nil},
	}
	ctx := testContext(t)
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e, err := Parse(c.src, ctx)
			if e != nil {
				t.Errorf("%q parsed to %v", c.src, e)
			}
			var serr *SyntaxError
			if !errors.As(err, &serr) {
				t.Fatalf("%q: want SyntaxError, got %#v", c.src, err)
			}
			if serr.Reason != c.reason {
				t.Errorf("%q: want reason %q, got %q", c.src, c.reason, serr.Reason)
			}
			if serr.Pos() != c.col {
				t.Errorf("%q: want error at column %d, got %d", c.src, c.col, serr.Pos())
			}
			msg := err.Error()
			for _, re := range c.res {
				if !regexp.MustCompile(re).MatchString(msg) {
					t.Errorf("error message %q does not match %s", msg, re)
				}
			}
		})
	}
}

func TestParseLexError(t *testing.T) {
	_, err := Parse("2^exp(-$)", nil)
	var lerr *LexError
	if !errors.As(err, &lerr) {
		t.Fatalf("want LexError, got %v", err)
	}
	var ierr InputError
	if !errors.As(err, &ierr) || ierr.Pos() != 8 {
		t.Errorf("wrong input error %v", err)
	}
}

func TestParseSuggestions(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"pirce * 2", "price"},
		{"tota", "total"},
		{"Price", "price"},
		{"sqr", "sqrt"},
		{"qqqqqqqq", ""},
	}
	ctx := testContext(t)
	for _, c := range cases {
		_, err := Parse(c.src, ctx)
		var serr *SyntaxError
		if !errors.As(err, &serr) || serr.Reason != ReasonUnknown {
			t.Errorf("%q: want unknown identifier, got %v", c.src, err)
			continue
		}
		if serr.Suggestion != c.want {
			t.Errorf("%q: want suggestion %q, got %q", c.src, c.want, serr.Suggestion)
		}
	}
}

func TestParseNoContext(t *testing.T) {
	e, err := Parse("1 + 2", nil)
	if err != nil {
		t.Fatal(err)
	}
	if e.g != nil {
		t.Errorf("expression without names has graph %p", e.g)
	}
	if _, err := Parse("x + 1", nil); err == nil {
		t.Error("name parsed without context")
	}
	if _, err := Parse("a.b", nil); err == nil {
		t.Error("path parsed without context")
	}
}

func TestCreateVariables(t *testing.T) {
	g := NewGraph()
	root := g.Root()
	if _, err := root.Parse("a + b"); err == nil {
		t.Fatal("unknown names parsed without CreateVariables")
	}
	if len(root.Variables()) != 0 {
		t.Fatal("failed parse created variables")
	}
	if _, err := root.Parse("a + b + (", CreateVariables()); err == nil {
		t.Fatal("bad formula parsed")
	}
	if len(root.Variables()) != 0 {
		t.Fatal("failed parse created variables")
	}
	e, err := root.Parse("a + b * a + s.x", CreateVariables())
	if err != nil {
		t.Fatal(err)
	}
	vars := root.Variables()
	if len(vars) != 2 || vars[0].Name() != "a" || vars[1].Name() != "b" {
		t.Errorf("wrong variables created: %v", vars)
	}
	if root.Subcontext("s") != nil || root.Variable("s") != nil {
		t.Error("dotted path created a name")
	}
	if got, want := e.Refs(), []string{"a", "b", "s.x"}; !reflect.DeepEqual(got, want) {
		t.Errorf("wrong refs: want %q, got %q", want, got)
	}
}

func TestDisableDefaultFuncs(t *testing.T) {
	cases := []string{"abs", "sqrt", "sum", "pi", "e", "if"}
	for _, name := range cases {
		t.Run(name, func(t *testing.T) {
			g := NewGraph()
			root := g.Root()
			if _, err := root.AddVariable(name); err != nil {
				t.Fatal(err)
			}
			e, err := root.Parse(name, DisableDefaultFuncs())
			if err != nil {
				t.Fatal(err)
			}
			if _, ok := e.n.(*refNode); !ok {
				t.Errorf("%s parsed as %T", name, e.n)
			}
		})
	}
}

func TestParseFuncOptions(t *testing.T) {
	twice := FuncOf(func(_ *Evaluator, _ int, args []Value) Value {
		return MakeClause(BracketParen, args[0], args[0])
	}, Sig(TypeAny))
	ctx := testContext(t)

	e, err := Parse("twice(1)", ctx, ParseFunc("twice", twice))
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Evaluate().String(); got != "(1, 1)" {
		t.Errorf("twice(1) = %s", got)
	}

	// Disabling a function makes its name a variable.
	if _, err := Parse("abs(1)", ctx, ParseFunc("abs", nil)); err == nil {
		t.Error("disabled function parsed as call")
	}
	// Options don't leak into later parses.
	if _, err := Parse("twice(1)", ctx); err == nil {
		t.Error("function option leaked")
	}
	if _, err := Parse("abs(1)", ctx); err != nil {
		t.Errorf("function disable leaked: %v", err)
	}

	preset := ParsingPreset(DisableDefaultFuncs(), ParseFuncs(map[string]Func{"twice": twice}))
	if _, err := Parse("twice(1)", ctx, preset); err != nil {
		t.Errorf("preset lost function: %v", err)
	}
	if _, err := Parse("abs(1)", ctx, preset); err == nil {
		t.Error("preset kept default function")
	}
	if _, err := Parse("abs(1)", ctx, preset, ParseFunc("abs", globalfuncs["abs"])); err != nil {
		t.Errorf("option after preset ignored: %v", err)
	}
	if _, err := Parse("abs(1)", ctx, preset); err == nil {
		t.Error("option after preset modified preset")
	}

	e, err = Parse("tau / 2", ctx, ParseConst("tau", Niladic(func(out *big.Float) *big.Float {
		return out.SetInt64(6)
	})))
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Evaluate(); !Equal(got, NewNumber(3)) {
		t.Errorf("tau / 2 = %v", got)
	}
}

func BenchmarkParse(b *testing.B) {
	ctx := testContext(b)
	srcs := []string{
		"2+3*4",
		"x^3/2 - x",
		"sum(1:100) / len({x, y, z})",
		`b ? "yes" & price : "no"`,
	}
	for _, src := range srcs {
		b.Run(src, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Parse(src, ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
