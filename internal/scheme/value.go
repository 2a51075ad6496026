// Package scheme is a small Scheme dialect embedded in the preview process.
//
// An Interpreter is not safe for concurrent use. The scripting loop owns it
// and serialises every evaluation through it.
package scheme

import (
	"errors"
	"fmt"
)

var (
	// ErrIncomplete means the source ended inside a list or string. An
	// interactive reader can keep collecting lines when it sees this.
	ErrIncomplete = errors.New("incomplete expression")
	ErrSyntax     = errors.New("syntax error")
	ErrUnbound    = errors.New("unbound variable")
	ErrArity      = errors.New("wrong number of arguments")
	ErrType       = errors.New("type error")
	ErrRecursion  = errors.New("maximum recursion depth exceeded")
	ErrTimeout    = errors.New("evaluation timed out")
)

// Value is any Scheme value. The interpreter produces the types below;
// hosts may inject their own types, which are printed with fmt.Stringer.
type Value any

type (
	Int    int64
	Real   float64
	String string
	Symbol string
	Bool   bool
	List   []Value
	Void   struct{}
)

// BuiltinFunc implements a procedure in Go.
type BuiltinFunc func(in *Interpreter, args []Value) (Value, error)

// Builtin is a Go procedure with an arity range. Max < 0 means variadic.
type Builtin struct {
	Name     string
	Min, Max int
	Fn       BuiltinFunc
}

// Lambda is a closure created by lambda or define.
type Lambda struct {
	Name   string
	Params []Symbol
	Rest   Symbol
	Body   []Value
	Env    *Env
}

// IsProcedure reports whether v can be applied.
func IsProcedure(v Value) bool {
	switch v.(type) {
	case *Builtin, *Lambda:
		return true
	}
	return false
}

// Arity returns the minimum argument count of a procedure and whether it
// accepts more than that.
func Arity(v Value) (min int, variadic bool, ok bool) {
	switch p := v.(type) {
	case *Builtin:
		return p.Min, p.Max < 0 || p.Max > p.Min, true
	case *Lambda:
		return len(p.Params), p.Rest != "", true
	}
	return 0, false, false
}

// ToFloat converts a numeric value.
func ToFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case Int:
		return float64(n), true
	case Real:
		return float64(n), true
	}
	return 0, false
}

// IsNumber reports whether v is an Int or a Real.
func IsNumber(v Value) bool {
	_, ok := ToFloat(v)
	return ok
}

func truthy(v Value) bool {
	b, ok := v.(Bool)
	return !ok || bool(b)
}

func typeError(who, want string, got Value) error {
	return fmt.Errorf("%w: %s expects %s, got %s", ErrType, who, want, Repr(got))
}

// Env is one lexical frame.
type Env struct {
	vars   map[Symbol]Value
	parent *Env
}

func NewEnv(parent *Env) *Env {
	return &Env{vars: map[Symbol]Value{}, parent: parent}
}

func (e *Env) Lookup(name Symbol) (Value, bool) {
	for f := e; f != nil; f = f.parent {
		if v, ok := f.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Define binds name in this frame.
func (e *Env) Define(name Symbol, v Value) { e.vars[name] = v }

// Set assigns to the frame that already binds name.
func (e *Env) Set(name Symbol, v Value) bool {
	for f := e; f != nil; f = f.parent {
		if _, ok := f.vars[name]; ok {
			f.vars[name] = v
			return true
		}
	}
	return false
}
