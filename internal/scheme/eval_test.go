package scheme_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/themkat/shade-eval-print-loop/internal/scheme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var TestEvalPrintsExpected = []struct {
	Source string
	Expect string
}{
	{"1", "1"},
	{"-7", "-7"},
	{"3.14", "3.14"},
	{"3.0", "3.0"},
	{"(+ 1 2)", "3"},
	{"(+ 1 2.0)", "3.0"},
	{"(- 5)", "-5"},
	{"(* 2 3 4)", "24"},
	{"(/ 6 3)", "2"},
	{"(/ 1 2)", "0.5"},
	{"(< 1 2 3)", "#t"},
	{"(>= 1 2)", "#f"},
	{"(= 1 1.0)", "#t"},
	{"\"hi\"", "\"hi\""},
	{"'sym", "sym"},
	{"'(1 2 (3))", "(1 2 (3))"},
	{"(list 1 2.5 \"x\")", "(1 2.5 \"x\")"},
	{"(cons 0 '(1 2))", "(0 1 2)"},
	{"(car '(1 2))", "1"},
	{"(cdr '(1 2))", "(2)"},
	{"(length '(1 2 3))", "3"},
	{"(reverse '(1 2 3))", "(3 2 1)"},
	{"(append '(1) '(2 3))", "(1 2 3)"},
	{"(map (lambda (x) (* x x)) '(1 2 3))", "(1 4 9)"},
	{"(apply + 1 '(2 3))", "6"},
	{"(if #f 1 2)", "2"},
	{"(if '() 1 2)", "1"},
	{"(if 0 1 2)", "1"},
	{"(and 1 2)", "2"},
	{"(or #f 3)", "3"},
	{"(and)", "#t"},
	{"(not 1)", "#f"},
	{"(cond ((= 1 2) 'a) (else 'b))", "b"},
	{"(let ((x 2) (y 3)) (* x y))", "6"},
	{"(let* ((x 2) (y (* x 3))) y)", "6"},
	{"(let loop ((i 0)) (if (< i 10) (loop (+ i 1)) i))", "10"},
	{"(define x 5)", "#<void>"},
	{"(define x 5) (set! x (+ x 1)) x", "6"},
	{"(define (f) 1) f", "#<procedure:f>"},
	{"(lambda (x) x)", "#<procedure>"},
	{"car", "#<procedure:car>"},
	{"(define (sum . xs) (apply + xs)) (sum 1 2 3)", "6"},
	{"(begin 1 2 3)", "3"},
	{"(when #f 1)", "#<void>"},
	{"(modulo -7 3)", "2"},
	{"(remainder -7 3)", "-1"},
	{"(round 2.5)", "2.0"},
	{"(expt 2 10)", "1024"},
	{"(sqrt 4)", "2.0"},
	{"(max 1 2.0)", "2.0"},
	{"(string-append \"a\" \"b\")", "\"ab\""},
	{"(number->string 4.5)", "\"4.5\""},
	{"(equal? '(1 (2)) '(1 (2)))", "#t"},
	{"(null? '())", "#t"},
	{"; just a comment\n42", "42"},
	{"", "#<void>"},
}

func TestEval(t *testing.T) {
	for _, tc := range TestEvalPrintsExpected {
		in := New()
		v, err := in.EvalString(tc.Source)
		if assert.NoError(t, err, tc.Source) {
			assert.Equal(t, tc.Expect, Repr(v), tc.Source)
		}
	}
}

var TestEvalFailsWith = []struct {
	Source string
	Expect error
}{
	{"(+ 1", ErrIncomplete},
	{"\"abc", ErrIncomplete},
	{")", ErrSyntax},
	{"()", ErrSyntax},
	{"nope", ErrUnbound},
	{"(set! nope 1)", ErrUnbound},
	{"((lambda (x) x))", ErrArity},
	{"(car 1 2)", ErrArity},
	{"(+ 1 \"a\")", ErrType},
	{"(1 2)", ErrType},
	{"(cons 1 2)", ErrType},
}

func TestEvalErrors(t *testing.T) {
	for _, tc := range TestEvalFailsWith {
		_, err := New().EvalString(tc.Source)
		assert.True(t, errors.Is(err, tc.Expect), "%s: got %v", tc.Source, err)
	}
}

func TestIntegerDivisionByZero(t *testing.T) {
	_, err := New().EvalString("(/ 1 0)")
	assert.Error(t, err)

	v, err := New().EvalString("(/ 1.0 0)")
	require.NoError(t, err)
	assert.Equal(t, "+inf.0", Repr(v))
}

func TestTailCallsDoNotGrowDepth(t *testing.T) {
	in := New()
	in.MaxDepth = 200
	v, err := in.EvalString(`
(define (count n acc)
  (if (= n 0) acc (count (- n 1) (+ acc 1))))
(count 100000 0)`)
	require.NoError(t, err)
	assert.Equal(t, Int(100000), v)
}

func TestDeepRecursionIsAnError(t *testing.T) {
	in := New()
	in.MaxDepth = 500
	_, err := in.EvalString("(define (f n) (+ 1 (f n))) (f 0)")
	assert.ErrorIs(t, err, ErrRecursion)

	// the interpreter is still usable afterwards
	v, err := in.EvalString("(+ 1 1)")
	require.NoError(t, err)
	assert.Equal(t, Int(2), v)
}

func TestDeeplyNestedInputIsRejected(t *testing.T) {
	for _, src := range []string{
		strings.Repeat("(", 200_000) + strings.Repeat(")", 200_000),
		strings.Repeat("'", 200_000) + "x",
	} {
		_, err := New().EvalString(src)
		assert.ErrorIs(t, err, ErrRecursion)
	}

	v, err := New().EvalString(strings.Repeat("'", 50) + "x")
	require.NoError(t, err)
	assert.Equal(t, "(quote "+strings.Repeat("(quote ", 48)+"x"+strings.Repeat(")", 49), Repr(v))
}

func nest(depth int) Value {
	var v Value = Int(1)
	for i := 0; i < depth; i++ {
		v = List{v}
	}
	return v
}

func TestDeepValuesPrintAndCompare(t *testing.T) {
	deep := nest(1_000_000)
	s := Repr(deep)
	assert.True(t, strings.HasPrefix(s, strings.Repeat("(", DefaultMaxDepth)+"(...)"), s[:32])
	assert.True(t, Equal(deep, nest(1_000_000)))
	assert.False(t, Equal(deep, nest(999_999)))

	in := New()
	in.Timeout = 5 * time.Second
	v, err := in.EvalString("(let loop ((i 0) (acc 1)) (if (= i 100000) acc (loop (+ i 1) (list acc))))")
	require.NoError(t, err)
	assert.Contains(t, Repr(v), "(...)")
}

func TestTimeout(t *testing.T) {
	in := New()
	in.Timeout = 20 * time.Millisecond
	_, err := in.EvalString("(define (spin) (spin)) (spin)")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestStatePersistsBetweenEvaluations(t *testing.T) {
	in := New()
	_, err := in.EvalString("(define counter 0)")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = in.EvalString("(set! counter (+ counter 1))")
		require.NoError(t, err)
	}
	v, ok := in.Lookup("counter")
	require.True(t, ok)
	assert.Equal(t, Int(3), v)
}

func TestApplyFromHost(t *testing.T) {
	in := New()
	proc, err := in.EvalString("(lambda (a b) (* a b 1.5))")
	require.NoError(t, err)
	require.True(t, IsProcedure(proc))

	v, err := in.Apply(proc, Int(2), Int(2))
	require.NoError(t, err)
	assert.Equal(t, Real(6), v)

	min, variadic, ok := Arity(proc)
	assert.True(t, ok)
	assert.Equal(t, 2, min)
	assert.False(t, variadic)
}

func TestDefineFunc(t *testing.T) {
	in := New()
	in.DefineFunc("twice", 1, 1, func(_ *Interpreter, args []Value) (Value, error) {
		f, _ := ToFloat(args[0])
		return Real(2 * f), nil
	})
	v, err := in.EvalString("(twice 4)")
	require.NoError(t, err)
	assert.Equal(t, "8.0", Repr(v))
}

type host struct{}

func (host) String() string { return "#<host>" }

func TestReprUsesStringer(t *testing.T) {
	assert.Equal(t, "(#<host> 1)", Repr(List{host{}, Int(1)}))
}
