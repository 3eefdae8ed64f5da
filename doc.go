// Package formula implements a spreadsheet-like formula language with a
// reactive evaluation graph.
//
// Formulas look like math you'd write in your notes: "2 + 3*4", "3(x+1)",
// "{1, 2, 3}", "!(done & late)", "total > 100 ? \"big\" : \"small\"". Numbers
// are arbitrary-precision decimals, so "0.1 + 0.2 = 0.3" is true.
//
// Values are named by Variables, which live in a tree of Contexts owned by a
// Graph. A Variable's contents are a parsed formula that may refer to other
// variables by name or by dotted path, like "prices.apple * 3". The graph
// tracks which variables each formula depends on. Changing a definition marks
// everything downstream dirty, and values are recomputed lazily the next time
// they are read. Definitions that would make a variable depend on itself are
// rejected without changing the graph.
//
// Errors inside formulas are values: a broken path evaluates to a #REF! error,
// a division by zero to #DIV/0!, and so on, and they propagate through the
// operators that consume them.
package formula
