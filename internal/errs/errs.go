// Package errs defines the unrecoverable error kind shared by the mesher
// packages.
package errs

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvariant is wrapped by every InvariantError.
var ErrInvariant = errors.New("invariant violation")

// InvariantError reports corrupted mesher state. It carries the function
// and line that detected it and the offending positions and indices.
type InvariantError struct {
	Where     string
	Msg       string
	Positions []r3.Vec
	Indices   []int
}

// Invariant returns an InvariantError located at its caller.
func Invariant(msg string, positions []r3.Vec, indices ...int) *InvariantError {
	where := "?"
	if pc, _, line, ok := runtime.Caller(1); ok {
		where = fmt.Sprintf("%s line %d", runtime.FuncForPC(pc).Name(), line)
	}
	return &InvariantError{Where: where, Msg: msg, Positions: positions, Indices: indices}
}

func (e *InvariantError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Where, e.Msg)
	if len(e.Indices) > 0 {
		fmt.Fprintf(&b, " indices=%v", e.Indices)
	}
	for _, p := range e.Positions {
		fmt.Fprintf(&b, " (%g,%g,%g)", p.X, p.Y, p.Z)
	}
	return b.String()
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }
