package formula_test

import (
	"testing"

	"github.com/zephyrtronium/formula"
)

func FuzzTokenize(f *testing.F) {
	f.Add("x")
	f.Add(`"a""b"`)
	f.Add("1.5e-3 - -2")
	f.Add("a.b.c[0]")
	f.Fuzz(func(t *testing.T, s string) {
		toks, err := formula.Tokenize(s)
		if err != nil {
			return
		}
		// Every rune belongs to exactly one token, in order.
		col := 1
		for _, tok := range toks {
			if tok.Col != col {
				t.Fatalf("%q: token %v at column %d, want %d", s, tok, tok.Col, col)
			}
			col += tokenWidth(tok)
		}
	})
}

// tokenWidth is the number of runes a token spans in its source.
func tokenWidth(tok formula.Token) int {
	n := len([]rune(tok.Text))
	if tok.Kind == formula.TokenString {
		n += 2
		for _, r := range tok.Text {
			if r == '"' {
				n++
			}
		}
	}
	return n
}

func FuzzParse(f *testing.F) {
	f.Add("x")
	f.Add("y")
	f.Add("2x^2 + 1")
	f.Add("b ? 1 : (2, 3)")
	f.Add("sum({x, y}[0], 1:3)")
	f.Fuzz(func(t *testing.T, s string) {
		g := formula.NewGraph()
		root := g.Root()
		root.AddVariable("x")
		root.AddVariable("y")
		root.AddVariable("b")
		e, err := root.Parse(s)
		if err != nil {
			return
		}
		// Formatting must be stable through a second parse.
		again, err := root.Parse(e.String())
		if err != nil {
			t.Fatalf("%q formats as %q, which fails to parse: %v", s, e.String(), err)
		}
		if again.String() != e.String() {
			t.Fatalf("%q formats as %q, which formats as %q", s, e.String(), again.String())
		}
	})
}
