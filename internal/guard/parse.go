// Package guard turns untrusted generated code into the code that runs.
//
// Sanitize parses the code, resolves its load statements against the library
// allow-list, drops statements that reach outside the sandbox and, in
// direct-SQL mode, rejects queries over tables that are not configured
// sources. Dropped statements become `pass` at the same position, so line
// numbers reported at runtime match the generated code.
package guard

import (
	"errors"

	"github.com/leapstack-labs/leapask/pkg/core"
	"go.starlark.net/syntax"
)

// Filename is the name generated code is parsed and executed under.
const Filename = "generated.star"

// FileOptions is the Starlark dialect generated code is parsed and run with.
// Loops and if statements are allowed at top level; while loops and recursion
// are not.
var FileOptions = &syntax.FileOptions{
	Set:             true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Parse parses src as generated code. Failures are returned as *core.SyntaxError.
func Parse(src string) (*syntax.File, error) {
	f, err := FileOptions.Parse(Filename, src, 0)
	if err != nil {
		return nil, syntaxError(err)
	}
	return f, nil
}

func syntaxError(err error) *core.SyntaxError {
	var se syntax.Error
	if errors.As(err, &se) {
		return &core.SyntaxError{Line: int(se.Pos.Line), Col: int(se.Pos.Col), Msg: se.Msg}
	}
	return &core.SyntaxError{Msg: err.Error()}
}
