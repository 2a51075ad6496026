package scheme

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Repr formats v the way the REPL shows it.
func Repr(v Value) string {
	var sb strings.Builder
	write(&sb, v, 0)
	return sb.String()
}

// write elides lists nested deeper than DefaultMaxDepth as "(...)".
func write(sb *strings.Builder, v Value, depth int) {
	switch x := v.(type) {
	case nil:
		sb.WriteString("#<void>")
	case Int:
		sb.WriteString(strconv.FormatInt(int64(x), 10))
	case Real:
		sb.WriteString(formatReal(float64(x)))
	case String:
		sb.WriteString(strconv.Quote(string(x)))
	case Symbol:
		sb.WriteString(string(x))
	case Bool:
		if x {
			sb.WriteString("#t")
		} else {
			sb.WriteString("#f")
		}
	case Void:
		sb.WriteString("#<void>")
	case List:
		if depth >= DefaultMaxDepth {
			sb.WriteString("(...)")
			return
		}
		sb.WriteByte('(')
		for i, item := range x {
			if i > 0 {
				sb.WriteByte(' ')
			}
			write(sb, item, depth+1)
		}
		sb.WriteByte(')')
	case *Lambda:
		if x.Name == "" {
			sb.WriteString("#<procedure>")
		} else {
			sb.WriteString("#<procedure:" + x.Name + ">")
		}
	case *Builtin:
		sb.WriteString("#<procedure:" + x.Name + ">")
	case fmt.Stringer:
		sb.WriteString(x.String())
	default:
		fmt.Fprintf(sb, "#<%T>", x)
	}
}

// formatReal always keeps a fractional part so reals and integers read back
// as the same kind.
func formatReal(f float64) string {
	switch {
	case math.IsNaN(f):
		return "+nan.0"
	case math.IsInf(f, 1):
		return "+inf.0"
	case math.IsInf(f, -1):
		return "-inf.0"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
