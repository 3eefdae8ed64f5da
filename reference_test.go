package formula

import (
	"errors"
	"testing"
)

func TestReferenceLifecycle(t *testing.T) {
	g := NewGraph()
	root := g.Root()
	r, err := NewReference(root, "s", "v")
	if err != nil {
		t.Fatal(err)
	}
	if r.String() != "s.v" {
		t.Errorf("reference formats as %q", r.String())
	}
	res, ok := r.Resolve().(Error)
	if !ok || res.Kind != ErrRef {
		t.Fatalf("unresolved reference gives %v", r.Resolve())
	}
	var rerr *ReferenceError
	if !errors.As(res, &rerr) || rerr.Index != 0 {
		t.Errorf("wrong reference error %v", res.Err)
	}
	if r.Update() {
		t.Error("update without changes")
	}

	s, err := root.AddSubcontext("s")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Update() {
		t.Error("new subcontext didn't change resolution")
	}
	if r.Update() {
		t.Error("second update changed resolution")
	}
	res, _ = r.Resolve().(Error)
	if !errors.As(res, &rerr) || rerr.Index != 1 {
		t.Errorf("wrong reference error after adding context: %v", res.Err)
	}

	v := define(t, s, "v", "7")
	if !r.Update() {
		t.Error("new variable didn't change resolution")
	}
	if r.Variable() != v {
		t.Errorf("reference resolves to %v", r.Variable())
	}
	if got := r.Resolve(); !Equal(got, NewNumber(7)) {
		t.Errorf("reference gives %v", got)
	}
	if err := v.SetValue(NewNumber(8)); err != nil {
		t.Fatal(err)
	}
	if got := r.Resolve(); !Equal(got, NewNumber(8)) {
		t.Errorf("reference gives %v after change", got)
	}
	// Unrelated names don't change the resolution.
	define(t, s, "w", "")
	if r.Update() {
		t.Error("unrelated variable changed resolution")
	}

	if s.RemoveVariable(v) {
		t.Error("removed variable with standalone reference")
	}
	r.Close()
	if !s.RemoveVariable(v) {
		t.Error("closed reference still blocks removal")
	}
	res, ok = r.Resolve().(Error)
	if !ok || !errors.Is(res, ErrRemoved) {
		t.Errorf("closed reference gives %v", r.Resolve())
	}
	if r.Update() {
		t.Error("closed reference updated")
	}
}

func TestReferenceMoves(t *testing.T) {
	g := NewGraph()
	root := g.Root()
	r, err := NewReference(root, "x")
	if err != nil {
		t.Fatal(err)
	}
	x := define(t, root, "x", "1")
	if !r.Update() || r.Variable() != x {
		t.Fatal("reference didn't find new variable")
	}
	r.Close()
	if !root.RemoveVariable(x) {
		t.Fatal("couldn't remove variable")
	}
	r, err = NewReference(root, "x")
	if err != nil {
		t.Fatal(err)
	}
	x2 := define(t, root, "x", "2")
	if got := r.Resolve(); !Equal(got, NewNumber(2)) {
		t.Errorf("reference gives %v", got)
	}
	if r.Variable() != x2 {
		t.Error("reference doesn't resolve to new variable")
	}
	if root.RemoveVariable(x2) {
		t.Error("removed referenced variable")
	}
}

func TestReferenceContext(t *testing.T) {
	g := NewGraph()
	root := g.Root()
	pt, err := root.AddSubcontext("pt")
	if err != nil {
		t.Fatal(err)
	}
	define(t, pt, "u", "1")
	r, err := NewReference(root, "pt")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.Variable() != nil {
		t.Error("context reference resolves to variable")
	}
	want := MakeClause(BracketBrace, NewNumber(1))
	if got := r.Resolve(); !Equal(got, want) {
		t.Errorf("context reference gives %v", got)
	}
	define(t, pt, "v", "2")
	want = MakeClause(BracketBrace, NewNumber(1), NewNumber(2))
	if got := r.Resolve(); !Equal(got, want) {
		t.Errorf("context reference gives %v after adding variable", got)
	}
}

func TestReferenceNames(t *testing.T) {
	g := NewGraph()
	root := g.Root()
	var inv *InvalidNameError
	if _, err := NewReference(root); !errors.As(err, &inv) {
		t.Errorf("empty path: %v", err)
	}
	if _, err := NewReference(root, "a", "1b"); !errors.As(err, &inv) || inv.Name != "1b" {
		t.Errorf("invalid name: %v", err)
	}
	r, err := NewReference(root, "a", "b")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	p := r.Path()
	p[0] = "z"
	if r.String() != "a.b" {
		t.Error("modifying path changed reference")
	}
}

func TestReferenceErrorMessage(t *testing.T) {
	err := &ReferenceError{Path: []string{"a", "b"}, Index: 1}
	if got, want := err.Error(), `unresolved reference "a.b": no "b" at position 1`; got != want {
		t.Errorf("want %q, got %q", want, got)
	}
}

func TestExprRefs(t *testing.T) {
	g := NewGraph()
	root := g.Root()
	define(t, root, "x", "")
	if _, err := root.AddSubcontext("s"); err != nil {
		t.Fatal(err)
	}
	e, err := root.Parse("x + s.y * x + s")
	if err != nil {
		t.Fatal(err)
	}
	got := e.Refs()
	want := []string{"x", "s.y", "s"}
	if len(got) != len(want) {
		t.Fatalf("want refs %q, got %q", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("want refs %q, got %q", want, got)
		}
	}
}
