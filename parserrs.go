package formula

import "strconv"

// Reasons used in SyntaxError.
const (
	ReasonOperand    = "operator requires operand"
	ReasonIncomplete = "incomplete expression"
	ReasonNesting    = "nesting mismatch"
	ReasonUnknown    = "unknown identifier"
	ReasonMissingOp  = "missing operator"
	ReasonCall       = "function requires argument list"
	ReasonMember     = "member access requires names"
	ReasonCondition  = "conditional requires ':' alternatives"
	ReasonOperator   = "unknown operator"
	ReasonNumber     = "invalid number"
)

// SyntaxError is an error indicating input that tokenizes but does not form
// an expression. It implements InputError.
type SyntaxError struct {
	// Col is the position of the offending token.
	Col int
	// Reason is one of the Reason constants.
	Reason string
	// Text is the offending token, e.g. the mismatched bracket or the unknown
	// name. It may be empty at the end of the input.
	Text string
	// Suggestion is a known name close to an unknown identifier, if any.
	Suggestion string
}

func (err *SyntaxError) Error() string {
	msg := err.Reason
	if err.Text != "" {
		msg += " " + strconv.Quote(err.Text)
	}
	if err.Suggestion != "" {
		msg += " (did you mean " + strconv.Quote(err.Suggestion) + "?)"
	}
	return errpos(err.Col, msg)
}

func (err *SyntaxError) Pos() int {
	return err.Col
}

// errpos is a shortcut to create an error message with a position.
func errpos(pos int, msg string) string {
	return strconv.Itoa(pos) + ": " + msg
}

// InputError is an error with position information. Every error resulting from
// invalid input implements InputError.
type InputError interface {
	error
	// Pos returns the position of the error as the 1-based column of the
	// start of the token that caused the error.
	Pos() int
}

var (
	_ InputError = (*SyntaxError)(nil)
	_ InputError = (*LexError)(nil)
)

func syntaxErr(tok Token, reason string) *SyntaxError {
	return &SyntaxError{Col: tok.Col, Reason: reason, Text: tok.Text}
}
