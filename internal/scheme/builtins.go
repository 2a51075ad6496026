package scheme

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

func installCore(in *Interpreter) {
	in.DefineFunc("+", 0, -1, func(_ *Interpreter, args []Value) (Value, error) {
		return fold("+", args, Int(0), func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
	})
	in.DefineFunc("*", 0, -1, func(_ *Interpreter, args []Value) (Value, error) {
		return fold("*", args, Int(1), func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
	})
	in.DefineFunc("-", 1, -1, func(_ *Interpreter, args []Value) (Value, error) {
		if len(args) == 1 {
			args = []Value{Int(0), args[0]}
		}
		return fold("-", args[1:], args[0], func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
	})
	in.DefineFunc("/", 1, -1, divide)

	in.DefineFunc("=", 1, -1, compare("=", func(a, b float64) bool { return a == b }))
	in.DefineFunc("<", 1, -1, compare("<", func(a, b float64) bool { return a < b }))
	in.DefineFunc(">", 1, -1, compare(">", func(a, b float64) bool { return a > b }))
	in.DefineFunc("<=", 1, -1, compare("<=", func(a, b float64) bool { return a <= b }))
	in.DefineFunc(">=", 1, -1, compare(">=", func(a, b float64) bool { return a >= b }))

	in.DefineFunc("min", 1, -1, extremum("min", func(a, b float64) bool { return a < b }))
	in.DefineFunc("max", 1, -1, extremum("max", func(a, b float64) bool { return a > b }))
	in.DefineFunc("abs", 1, 1, func(_ *Interpreter, args []Value) (Value, error) {
		switch n := args[0].(type) {
		case Int:
			if n < 0 {
				return -n, nil
			}
			return n, nil
		case Real:
			return Real(math.Abs(float64(n))), nil
		}
		return nil, typeError("abs", "a number", args[0])
	})
	for name, f := range map[string]func(float64) float64{
		"floor":    math.Floor,
		"ceiling":  math.Ceil,
		"round":    math.RoundToEven,
		"truncate": math.Trunc,
	} {
		in.DefineFunc(name, 1, 1, rounding(name, f))
	}
	for name, f := range map[string]func(float64) float64{
		"sqrt": math.Sqrt,
		"exp":  math.Exp,
		"log":  math.Log,
		"sin":  math.Sin,
		"cos":  math.Cos,
		"tan":  math.Tan,
	} {
		in.DefineFunc(name, 1, 1, real1(name, f))
	}
	in.DefineFunc("atan", 1, 2, func(_ *Interpreter, args []Value) (Value, error) {
		y, err := float("atan", args[0])
		if err != nil {
			return nil, err
		}
		if len(args) == 1 {
			return Real(math.Atan(y)), nil
		}
		x, err := float("atan", args[1])
		if err != nil {
			return nil, err
		}
		return Real(math.Atan2(y, x)), nil
	})
	in.DefineFunc("expt", 2, 2, expt)
	in.DefineFunc("exact->inexact", 1, 1, func(_ *Interpreter, args []Value) (Value, error) {
		f, err := float("exact->inexact", args[0])
		return Real(f), err
	})
	in.DefineFunc("quotient", 2, 2, integerOp("quotient", func(a, b int64) int64 { return a / b }))
	in.DefineFunc("remainder", 2, 2, integerOp("remainder", func(a, b int64) int64 { return a % b }))
	in.DefineFunc("modulo", 2, 2, integerOp("modulo", func(a, b int64) int64 {
		m := a % b
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return m
	}))

	in.DefineFunc("number?", 1, 1, predicate(IsNumber))
	in.DefineFunc("integer?", 1, 1, predicate(func(v Value) bool {
		switch n := v.(type) {
		case Int:
			return true
		case Real:
			return float64(n) == math.Trunc(float64(n)) && !math.IsInf(float64(n), 0)
		}
		return false
	}))
	in.DefineFunc("zero?", 1, 1, func(_ *Interpreter, args []Value) (Value, error) {
		f, err := float("zero?", args[0])
		return Bool(f == 0), err
	})
	in.DefineFunc("null?", 1, 1, predicate(func(v Value) bool { l, ok := v.(List); return ok && len(l) == 0 }))
	in.DefineFunc("pair?", 1, 1, predicate(func(v Value) bool { l, ok := v.(List); return ok && len(l) > 0 }))
	in.DefineFunc("list?", 1, 1, predicate(func(v Value) bool { _, ok := v.(List); return ok }))
	in.DefineFunc("procedure?", 1, 1, predicate(IsProcedure))
	in.DefineFunc("string?", 1, 1, predicate(func(v Value) bool { _, ok := v.(String); return ok }))
	in.DefineFunc("symbol?", 1, 1, predicate(func(v Value) bool { _, ok := v.(Symbol); return ok }))
	in.DefineFunc("boolean?", 1, 1, predicate(func(v Value) bool { _, ok := v.(Bool); return ok }))
	in.DefineFunc("not", 1, 1, predicate(func(v Value) bool { return !truthy(v) }))
	in.DefineFunc("eq?", 2, 2, func(_ *Interpreter, args []Value) (Value, error) {
		if _, ok := args[0].(List); ok {
			return Bool(Equal(args[0], List{}) && Equal(args[1], List{})), nil
		}
		return Bool(Equal(args[0], args[1])), nil
	})
	in.DefineFunc("equal?", 2, 2, func(_ *Interpreter, args []Value) (Value, error) {
		return Bool(Equal(args[0], args[1])), nil
	})

	in.DefineFunc("list", 0, -1, func(_ *Interpreter, args []Value) (Value, error) {
		return append(List{}, args...), nil
	})
	in.DefineFunc("cons", 2, 2, func(_ *Interpreter, args []Value) (Value, error) {
		tail, ok := args[1].(List)
		if !ok {
			return nil, typeError("cons", "a list as second argument (improper lists are not supported)", args[1])
		}
		return append(List{args[0]}, tail...), nil
	})
	in.DefineFunc("car", 1, 1, func(_ *Interpreter, args []Value) (Value, error) {
		l, err := nonEmpty("car", args[0])
		if err != nil {
			return nil, err
		}
		return l[0], nil
	})
	in.DefineFunc("cdr", 1, 1, func(_ *Interpreter, args []Value) (Value, error) {
		l, err := nonEmpty("cdr", args[0])
		if err != nil {
			return nil, err
		}
		return append(List{}, l[1:]...), nil
	})
	in.DefineFunc("cadr", 1, 1, func(_ *Interpreter, args []Value) (Value, error) {
		l, ok := args[0].(List)
		if !ok || len(l) < 2 {
			return nil, typeError("cadr", "a list of at least two elements", args[0])
		}
		return l[1], nil
	})
	in.DefineFunc("length", 1, 1, func(_ *Interpreter, args []Value) (Value, error) {
		l, ok := args[0].(List)
		if !ok {
			return nil, typeError("length", "a list", args[0])
		}
		return Int(len(l)), nil
	})
	in.DefineFunc("list-ref", 2, 2, func(_ *Interpreter, args []Value) (Value, error) {
		l, ok := args[0].(List)
		if !ok {
			return nil, typeError("list-ref", "a list", args[0])
		}
		i, ok := args[1].(Int)
		if !ok || i < 0 || int(i) >= len(l) {
			return nil, fmt.Errorf("%w: list-ref index %s out of range", ErrType, Repr(args[1]))
		}
		return l[i], nil
	})
	in.DefineFunc("append", 0, -1, func(_ *Interpreter, args []Value) (Value, error) {
		out := List{}
		for _, a := range args {
			l, ok := a.(List)
			if !ok {
				return nil, typeError("append", "lists", a)
			}
			out = append(out, l...)
		}
		return out, nil
	})
	in.DefineFunc("reverse", 1, 1, func(_ *Interpreter, args []Value) (Value, error) {
		l, ok := args[0].(List)
		if !ok {
			return nil, typeError("reverse", "a list", args[0])
		}
		out := make(List, len(l))
		for i, v := range l {
			out[len(l)-1-i] = v
		}
		return out, nil
	})
	in.DefineFunc("map", 2, -1, func(in *Interpreter, args []Value) (Value, error) {
		out := List{}
		err := each("map", in, args, func(v Value) { out = append(out, v) })
		return out, err
	})
	in.DefineFunc("for-each", 2, -1, func(in *Interpreter, args []Value) (Value, error) {
		return Void{}, each("for-each", in, args, func(Value) {})
	})
	in.DefineFunc("apply", 2, -1, func(in *Interpreter, args []Value) (Value, error) {
		last, ok := args[len(args)-1].(List)
		if !ok {
			return nil, typeError("apply", "a list as last argument", args[len(args)-1])
		}
		callArgs := append(append([]Value{}, args[1:len(args)-1]...), last...)
		return in.apply(args[0], callArgs)
	})

	in.DefineFunc("string-append", 0, -1, func(_ *Interpreter, args []Value) (Value, error) {
		var sb strings.Builder
		for _, a := range args {
			s, ok := a.(String)
			if !ok {
				return nil, typeError("string-append", "strings", a)
			}
			sb.WriteString(string(s))
		}
		return String(sb.String()), nil
	})
	in.DefineFunc("number->string", 1, 1, func(_ *Interpreter, args []Value) (Value, error) {
		if !IsNumber(args[0]) {
			return nil, typeError("number->string", "a number", args[0])
		}
		return String(Repr(args[0])), nil
	})
	in.DefineFunc("void", 0, -1, func(*Interpreter, []Value) (Value, error) { return Void{}, nil })
}

// Equal is structural equality. Numbers compare by value across Int and Real.
// Lists are walked with an explicit stack, so nesting depth is not bounded
// by the goroutine stack.
func Equal(a, b Value) bool {
	type pair struct{ a, b Value }
	stack := []pair{{a, b}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if fa, ok := ToFloat(p.a); ok {
			if fb, ok := ToFloat(p.b); !ok || fa != fb {
				return false
			}
			continue
		}
		la, aList := p.a.(List)
		lb, bList := p.b.(List)
		switch {
		case aList != bList:
			return false
		case !aList:
			if p.a != p.b {
				return false
			}
		case len(la) != len(lb):
			return false
		default:
			for i := len(la) - 1; i >= 0; i-- {
				stack = append(stack, pair{la[i], lb[i]})
			}
		}
	}
	return true
}

func float(who string, v Value) (float64, error) {
	f, ok := ToFloat(v)
	if !ok {
		return 0, typeError(who, "a number", v)
	}
	return f, nil
}

func fold(who string, args []Value, acc Value, iop func(a, b int64) int64, rop func(a, b float64) float64) (Value, error) {
	if !IsNumber(acc) {
		return nil, typeError(who, "numbers", acc)
	}
	for _, a := range args {
		switch n := a.(type) {
		case Int:
			if ai, ok := acc.(Int); ok {
				acc = Int(iop(int64(ai), int64(n)))
				continue
			}
			acc = Real(rop(float64(acc.(Real)), float64(n)))
		case Real:
			f, _ := ToFloat(acc)
			acc = Real(rop(f, float64(n)))
		default:
			return nil, typeError(who, "numbers", a)
		}
	}
	return acc, nil
}

func divide(_ *Interpreter, args []Value) (Value, error) {
	if len(args) == 1 {
		args = []Value{Int(1), args[0]}
	}
	acc := args[0]
	if !IsNumber(acc) {
		return nil, typeError("/", "numbers", acc)
	}
	for _, a := range args[1:] {
		ai, accInt := acc.(Int)
		bi, argInt := a.(Int)
		if accInt && argInt {
			if bi == 0 {
				return nil, errors.New("/: division by zero")
			}
			if ai%bi == 0 {
				acc = ai / bi
				continue
			}
		}
		x, _ := ToFloat(acc)
		y, err := float("/", a)
		if err != nil {
			return nil, err
		}
		acc = Real(x / y)
	}
	return acc, nil
}

func compare(who string, ok func(a, b float64) bool) BuiltinFunc {
	return func(_ *Interpreter, args []Value) (Value, error) {
		prev, err := float(who, args[0])
		if err != nil {
			return nil, err
		}
		result := true
		for _, a := range args[1:] {
			cur, err := float(who, a)
			if err != nil {
				return nil, err
			}
			if !ok(prev, cur) {
				result = false
			}
			prev = cur
		}
		return Bool(result), nil
	}
}

func extremum(who string, better func(a, b float64) bool) BuiltinFunc {
	return func(_ *Interpreter, args []Value) (Value, error) {
		best := args[0]
		bf, err := float(who, best)
		if err != nil {
			return nil, err
		}
		inexact := false
		for _, a := range args {
			f, err := float(who, a)
			if err != nil {
				return nil, err
			}
			if _, isReal := a.(Real); isReal {
				inexact = true
			}
			if better(f, bf) {
				best, bf = a, f
			}
		}
		if inexact {
			return Real(bf), nil
		}
		return best, nil
	}
}

func rounding(who string, f func(float64) float64) BuiltinFunc {
	return func(_ *Interpreter, args []Value) (Value, error) {
		switch n := args[0].(type) {
		case Int:
			return n, nil
		case Real:
			return Real(f(float64(n))), nil
		}
		return nil, typeError(who, "a number", args[0])
	}
}

func real1(who string, f func(float64) float64) BuiltinFunc {
	return func(_ *Interpreter, args []Value) (Value, error) {
		x, err := float(who, args[0])
		if err != nil {
			return nil, err
		}
		return Real(f(x)), nil
	}
}

func expt(_ *Interpreter, args []Value) (Value, error) {
	base, bInt := args[0].(Int)
	exp, eInt := args[1].(Int)
	if bInt && eInt && exp >= 0 {
		acc := Int(1)
		for i := Int(0); i < exp; i++ {
			acc *= base
		}
		return acc, nil
	}
	x, err := float("expt", args[0])
	if err != nil {
		return nil, err
	}
	y, err := float("expt", args[1])
	if err != nil {
		return nil, err
	}
	return Real(math.Pow(x, y)), nil
}

func integerOp(who string, op func(a, b int64) int64) BuiltinFunc {
	return func(_ *Interpreter, args []Value) (Value, error) {
		a, ok := args[0].(Int)
		if !ok {
			return nil, typeError(who, "integers", args[0])
		}
		b, ok := args[1].(Int)
		if !ok {
			return nil, typeError(who, "integers", args[1])
		}
		if b == 0 {
			return nil, fmt.Errorf("%s: division by zero", who)
		}
		return Int(op(int64(a), int64(b))), nil
	}
}

func predicate(p func(Value) bool) BuiltinFunc {
	return func(_ *Interpreter, args []Value) (Value, error) {
		return Bool(p(args[0])), nil
	}
}

func nonEmpty(who string, v Value) (List, error) {
	l, ok := v.(List)
	if !ok || len(l) == 0 {
		return nil, typeError(who, "a non-empty list", v)
	}
	return l, nil
}

// each applies args[0] across the lists in args[1:], stopping at the
// shortest one.
func each(who string, in *Interpreter, args []Value, collect func(Value)) error {
	lists := make([]List, len(args)-1)
	n := -1
	for i, a := range args[1:] {
		l, ok := a.(List)
		if !ok {
			return typeError(who, "lists", a)
		}
		lists[i] = l
		if n < 0 || len(l) < n {
			n = len(l)
		}
	}
	for i := 0; i < n; i++ {
		callArgs := make([]Value, len(lists))
		for j, l := range lists {
			callArgs[j] = l[i]
		}
		v, err := in.apply(args[0], callArgs)
		if err != nil {
			return err
		}
		collect(v)
	}
	return nil
}
