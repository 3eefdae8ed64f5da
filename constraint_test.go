package formula

import "testing"

func TestMatch(t *testing.T) {
	cases := []struct {
		name     string
		cs       []TypeConstraint
		args     []TypeFlag
		best, mm int
	}{
		{"none", nil, []TypeFlag{TypeNumber}, -1, 0},
		{"exact", []TypeConstraint{Sig(TypeNumber)}, []TypeFlag{TypeNumber}, 0, -1},
		{"second", []TypeConstraint{Sig(TypeNumber), Sig(TypeText)}, []TypeFlag{TypeText}, 1, -1},
		{"first wins", []TypeConstraint{Sig(TypeAny), Sig(TypeNumber)}, []TypeFlag{TypeNumber}, 0, -1},
		{"union", []TypeConstraint{Sig(TypeNumber | TypeText)}, []TypeFlag{TypeText}, 0, -1},
		{"wrong", []TypeConstraint{Sig(TypeNumber, TypeNumber)}, []TypeFlag{TypeNumber, TypeText}, 0, 1},
		{"longest prefix", []TypeConstraint{Sig(TypeText, TypeText, TypeText), Sig(TypeNumber, TypeNumber, TypeText)}, []TypeFlag{TypeNumber, TypeNumber, TypeNumber}, 1, 2},
		{"too few", []TypeConstraint{Sig(TypeNumber, TypeNumber)}, []TypeFlag{TypeNumber}, 0, 1},
		{"too many", []TypeConstraint{Sig(TypeNumber)}, []TypeFlag{TypeNumber, TypeNumber}, 0, 1},
		{"variadic empty", []TypeConstraint{VarSig(TypeNumber)}, nil, 0, -1},
		{"variadic many", []TypeConstraint{VarSig(TypeText, TypeNumber)}, []TypeFlag{TypeText, TypeNumber, TypeNumber, TypeNumber}, 0, -1},
		{"variadic bad tail", []TypeConstraint{VarSig(TypeNumber)}, []TypeFlag{TypeNumber, TypeNumber, TypeBoolean}, 0, 2},
		{"variadic required", []TypeConstraint{VarSig(TypeText, TypeNumber)}, nil, 0, 0},
		{"error arg", []TypeConstraint{Sig(TypeAny)}, []TypeFlag{TypeError}, 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			best, mm := Match(c.cs, c.args)
			if best != c.best || mm != c.mm {
				t.Errorf("want (%d, %d), got (%d, %d)", c.best, c.mm, best, mm)
			}
		})
	}
}

func TestTypeFlagString(t *testing.T) {
	cases := []struct {
		t    TypeFlag
		want string
	}{
		{0, "nothing"},
		{TypeNumber, "number"},
		{TypeText | TypeNumber, "number|text"},
		{TypeAny, "number|boolean|text|clause"},
	}
	for _, c := range cases {
		if got := c.t.String(); got != c.want {
			t.Errorf("want %q, got %q", c.want, got)
		}
	}
}
