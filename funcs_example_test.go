package formula_test

import (
	"fmt"

	"github.com/zephyrtronium/formula"
)

func ExampleFuncOf() {
	// nargs counts its arguments, whatever they are.
	nargs := formula.FuncOf(func(_ *formula.Evaluator, _ int, args []formula.Value) formula.Value {
		return formula.NewNumber(int64(len(args)))
	}, formula.VarSig(formula.TypeAny))

	for _, src := range []string{"nargs()", "nargs(100)", "nargs(3, {2}, \"1\")"} {
		e, err := formula.Parse(src, nil, formula.ParseFunc("nargs", nargs))
		if err != nil {
			panic(err)
		}
		fmt.Println(e.Evaluate(), e)
	}

	// Output:
	// 0 nargs()
	// 1 nargs(100)
	// 3 nargs(3, {2}, "1")
}

func ExampleMatch() {
	cs := []formula.TypeConstraint{
		formula.Sig(formula.TypeNumber, formula.TypeNumber),
		formula.Sig(formula.TypeText, formula.TypeText),
	}
	fmt.Println(formula.Match(cs, []formula.TypeFlag{formula.TypeText, formula.TypeText}))
	fmt.Println(formula.Match(cs, []formula.TypeFlag{formula.TypeNumber, formula.TypeText}))
	fmt.Println(formula.Match(cs, []formula.TypeFlag{formula.TypeNumber}))

	// Output:
	// 1 -1
	// 0 1
	// 0 1
}
