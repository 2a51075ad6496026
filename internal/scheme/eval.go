package scheme

import (
	"fmt"
	"time"
)

const (
	DefaultMaxDepth = 10000
	checkEvery      = 1024
)

// Interpreter holds the global environment of one session.
type Interpreter struct {
	// MaxDepth bounds nested (non-tail) evaluation.
	MaxDepth int
	// Timeout bounds one top-level evaluation; zero disables the check.
	Timeout time.Duration

	global   *Env
	depth    int
	steps    int
	deadline time.Time
}

// New returns an interpreter with the core library installed.
func New() *Interpreter {
	in := &Interpreter{MaxDepth: DefaultMaxDepth, global: NewEnv(nil)}
	installCore(in)
	return in
}

// Define binds a global.
func (in *Interpreter) Define(name string, v Value) { in.global.Define(Symbol(name), v) }

// DefineFunc binds a Go procedure. max < 0 means variadic.
func (in *Interpreter) DefineFunc(name string, min, max int, fn BuiltinFunc) {
	in.Define(name, &Builtin{Name: name, Min: min, Max: max, Fn: fn})
}

// Lookup returns a global binding.
func (in *Interpreter) Lookup(name string) (Value, bool) { return in.global.Lookup(Symbol(name)) }

// EvalString evaluates every expression in src and returns the last value.
// Empty source yields Void.
func (in *Interpreter) EvalString(src string) (Value, error) {
	exprs, err := Parse(src)
	if err != nil {
		return nil, err
	}
	in.arm()
	var last Value = Void{}
	for _, x := range exprs {
		if last, err = in.eval(x, in.global); err != nil {
			return nil, err
		}
	}
	return last, nil
}

// Apply calls a procedure from the host.
func (in *Interpreter) Apply(proc Value, args ...Value) (Value, error) {
	in.arm()
	return in.apply(proc, args)
}

func (in *Interpreter) arm() {
	if in.depth > 0 {
		return
	}
	in.steps = 0
	in.deadline = time.Time{}
	if in.Timeout > 0 {
		in.deadline = time.Now().Add(in.Timeout)
	}
}

func (in *Interpreter) tick() error {
	in.steps++
	if in.steps%checkEvery == 0 && !in.deadline.IsZero() && time.Now().After(in.deadline) {
		return fmt.Errorf("%w after %s", ErrTimeout, in.Timeout)
	}
	return nil
}

func (in *Interpreter) apply(proc Value, args []Value) (Value, error) {
	switch p := proc.(type) {
	case *Builtin:
		if err := checkArity(p.Name, p.Min, p.Max, len(args)); err != nil {
			return nil, err
		}
		return p.Fn(in, args)
	case *Lambda:
		env, err := bind(p, args)
		if err != nil {
			return nil, err
		}
		return in.sequence(p.Body, env)
	}
	return nil, fmt.Errorf("%w: not a procedure: %s", ErrType, Repr(proc))
}

func checkArity(name string, min, max, got int) error {
	if got < min || (max >= 0 && got > max) {
		want := fmt.Sprint(min)
		switch {
		case max < 0:
			want = fmt.Sprintf("at least %d", min)
		case max != min:
			want = fmt.Sprintf("%d to %d", min, max)
		}
		return fmt.Errorf("%w: %s expects %s, got %d", ErrArity, name, want, got)
	}
	return nil
}

func bind(p *Lambda, args []Value) (*Env, error) {
	max := len(p.Params)
	if p.Rest != "" {
		max = -1
	}
	name := p.Name
	if name == "" {
		name = "lambda"
	}
	if err := checkArity(name, len(p.Params), max, len(args)); err != nil {
		return nil, err
	}
	env := NewEnv(p.Env)
	for i, param := range p.Params {
		env.Define(param, args[i])
	}
	if p.Rest != "" {
		env.Define(p.Rest, append(List{}, args[len(p.Params):]...))
	}
	return env, nil
}

func (in *Interpreter) sequence(body []Value, env *Env) (Value, error) {
	var last Value = Void{}
	var err error
	for _, x := range body {
		if last, err = in.eval(x, env); err != nil {
			return nil, err
		}
	}
	return last, nil
}

// head evaluates all but the last expression and returns the last one for
// the caller to continue with in tail position.
func (in *Interpreter) head(body []Value, env *Env) (Value, error) {
	if len(body) == 0 {
		return Void{}, nil
	}
	for _, x := range body[:len(body)-1] {
		if _, err := in.eval(x, env); err != nil {
			return nil, err
		}
	}
	return body[len(body)-1], nil
}

func (in *Interpreter) eval(x Value, env *Env) (Value, error) {
	in.depth++
	defer func() { in.depth-- }()
	if in.MaxDepth > 0 && in.depth > in.MaxDepth {
		return nil, ErrRecursion
	}

	for {
		if err := in.tick(); err != nil {
			return nil, err
		}
		var err error
		switch v := x.(type) {
		case Symbol:
			val, ok := env.Lookup(v)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnbound, v)
			}
			return val, nil
		case List:
			if len(v) == 0 {
				return nil, fmt.Errorf("%w: missing procedure expression in ()", ErrSyntax)
			}
			if sym, ok := v[0].(Symbol); ok {
				switch sym {
				case "quote":
					if len(v) != 2 {
						return nil, syntaxError(v)
					}
					return v[1], nil

				case "if":
					if len(v) != 3 && len(v) != 4 {
						return nil, syntaxError(v)
					}
					test, err := in.eval(v[1], env)
					if err != nil {
						return nil, err
					}
					switch {
					case truthy(test):
						x = v[2]
					case len(v) == 4:
						x = v[3]
					default:
						return Void{}, nil
					}
					continue

				case "define":
					return in.define(v, env)

				case "set!":
					if len(v) != 3 {
						return nil, syntaxError(v)
					}
					name, ok := v[1].(Symbol)
					if !ok {
						return nil, syntaxError(v)
					}
					val, err := in.eval(v[2], env)
					if err != nil {
						return nil, err
					}
					if !env.Set(name, val) {
						return nil, fmt.Errorf("%w: %s", ErrUnbound, name)
					}
					return Void{}, nil

				case "lambda":
					if len(v) < 3 {
						return nil, syntaxError(v)
					}
					return makeLambda("", v[1], v[2:], env)

				case "let", "let*":
					if x, env, err = in.let(v, env); err != nil {
						return nil, err
					}
					continue

				case "begin":
					if x, err = in.head(v[1:], env); err != nil {
						return nil, err
					}
					continue

				case "cond":
					var done bool
					var val Value
					if x, val, done, err = in.cond(v, env); err != nil {
						return nil, err
					}
					if done {
						return val, nil
					}
					continue

				case "and", "or":
					if len(v) == 1 {
						return Bool(sym == "and"), nil
					}
					for _, e := range v[1 : len(v)-1] {
						val, err := in.eval(e, env)
						if err != nil {
							return nil, err
						}
						if truthy(val) == (sym == "or") {
							return val, nil
						}
					}
					x = v[len(v)-1]
					continue

				case "when", "unless":
					if len(v) < 2 {
						return nil, syntaxError(v)
					}
					test, err := in.eval(v[1], env)
					if err != nil {
						return nil, err
					}
					if truthy(test) != (sym == "when") {
						return Void{}, nil
					}
					if x, err = in.head(v[2:], env); err != nil {
						return nil, err
					}
					continue
				}
			}

			proc, err := in.eval(v[0], env)
			if err != nil {
				return nil, err
			}
			args := make([]Value, len(v)-1)
			for i, a := range v[1:] {
				if args[i], err = in.eval(a, env); err != nil {
					return nil, err
				}
			}
			lam, ok := proc.(*Lambda)
			if !ok {
				return in.apply(proc, args)
			}
			if env, err = bind(lam, args); err != nil {
				return nil, err
			}
			if x, err = in.head(lam.Body, env); err != nil {
				return nil, err
			}
		default:
			return x, nil
		}
	}
}

func syntaxError(form List) error {
	return fmt.Errorf("%w: bad form %s", ErrSyntax, Repr(form))
}

func makeLambda(name string, params Value, body []Value, env *Env) (*Lambda, error) {
	lam := &Lambda{Name: name, Body: body, Env: env}
	switch ps := params.(type) {
	case Symbol:
		lam.Rest = ps
	case List:
		for i := 0; i < len(ps); i++ {
			sym, ok := ps[i].(Symbol)
			if !ok {
				return nil, fmt.Errorf("%w: parameter must be a symbol, got %s", ErrSyntax, Repr(ps[i]))
			}
			if sym == "." {
				if i != len(ps)-2 {
					return nil, fmt.Errorf("%w: bad rest parameter", ErrSyntax)
				}
				rest, ok := ps[i+1].(Symbol)
				if !ok {
					return nil, fmt.Errorf("%w: bad rest parameter", ErrSyntax)
				}
				lam.Rest = rest
				break
			}
			lam.Params = append(lam.Params, sym)
		}
	default:
		return nil, fmt.Errorf("%w: bad parameter list %s", ErrSyntax, Repr(params))
	}
	return lam, nil
}

func (in *Interpreter) define(v List, env *Env) (Value, error) {
	if len(v) < 3 {
		return nil, syntaxError(v)
	}
	switch target := v[1].(type) {
	case Symbol:
		if len(v) != 3 {
			return nil, syntaxError(v)
		}
		val, err := in.eval(v[2], env)
		if err != nil {
			return nil, err
		}
		if lam, ok := val.(*Lambda); ok && lam.Name == "" {
			lam.Name = string(target)
		}
		env.Define(target, val)
	case List:
		if len(target) == 0 {
			return nil, syntaxError(v)
		}
		name, ok := target[0].(Symbol)
		if !ok {
			return nil, syntaxError(v)
		}
		lam, err := makeLambda(string(name), target[1:], v[2:], env)
		if err != nil {
			return nil, err
		}
		env.Define(name, lam)
	default:
		return nil, syntaxError(v)
	}
	return Void{}, nil
}

// let handles plain, named and sequential let. It returns the body
// expression to continue with and the environment to continue in.
func (in *Interpreter) let(v List, env *Env) (Value, *Env, error) {
	if len(v) < 3 {
		return nil, nil, syntaxError(v)
	}
	if name, ok := v[1].(Symbol); ok && v[0] == Symbol("let") {
		if len(v) < 4 {
			return nil, nil, syntaxError(v)
		}
		names, inits, err := letBindings(v, v[2])
		if err != nil {
			return nil, nil, err
		}
		args := make([]Value, len(inits))
		for i, init := range inits {
			if args[i], err = in.eval(init, env); err != nil {
				return nil, nil, err
			}
		}
		loopEnv := NewEnv(env)
		lam := &Lambda{Name: string(name), Params: names, Body: v[3:], Env: loopEnv}
		loopEnv.Define(name, lam)
		body, err := bind(lam, args)
		if err != nil {
			return nil, nil, err
		}
		next, err := in.head(lam.Body, body)
		return next, body, err
	}

	names, inits, err := letBindings(v, v[1])
	if err != nil {
		return nil, nil, err
	}
	sequential := v[0] == Symbol("let*")
	inner := NewEnv(env)
	for i, init := range inits {
		scope := env
		if sequential {
			scope = inner
		}
		val, err := in.eval(init, scope)
		if err != nil {
			return nil, nil, err
		}
		inner.Define(names[i], val)
	}
	next, err := in.head(v[2:], inner)
	return next, inner, err
}

func letBindings(form List, bindings Value) ([]Symbol, []Value, error) {
	list, ok := bindings.(List)
	if !ok {
		return nil, nil, syntaxError(form)
	}
	names := make([]Symbol, 0, len(list))
	inits := make([]Value, 0, len(list))
	for _, b := range list {
		pair, ok := b.(List)
		if !ok || len(pair) != 2 {
			return nil, nil, syntaxError(form)
		}
		name, ok := pair[0].(Symbol)
		if !ok {
			return nil, nil, syntaxError(form)
		}
		names = append(names, name)
		inits = append(inits, pair[1])
	}
	return names, inits, nil
}

// cond returns either a tail expression to continue with, or a final value
// with done set.
func (in *Interpreter) cond(v List, env *Env) (next Value, val Value, done bool, err error) {
	for _, c := range v[1:] {
		clause, ok := c.(List)
		if !ok || len(clause) == 0 {
			return nil, nil, false, syntaxError(v)
		}
		if clause[0] == Symbol("else") {
			next, err = in.head(clause[1:], env)
			return next, nil, false, err
		}
		test, err := in.eval(clause[0], env)
		if err != nil {
			return nil, nil, false, err
		}
		if !truthy(test) {
			continue
		}
		if len(clause) == 1 {
			return nil, test, true, nil
		}
		next, err = in.head(clause[1:], env)
		return next, nil, false, err
	}
	return nil, Void{}, true, nil
}
