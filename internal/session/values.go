package session

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/themkat/shade-eval-print-loop/internal/command"
	"github.com/themkat/shade-eval-print-loop/internal/scheme"
)

var (
	// ErrUnsupportedValue is returned when a script value has no uniform
	// representation.
	ErrUnsupportedValue  = errors.New("thats a paddlin")
	ErrInvalidDimensions = errors.New("Invalid dimensions")
	ErrNotALambda        = errors.New("second argument to set-dynamic-uniform! should be a lambda")
)

// Matrix is the script-side value produced by (matrix ...).
type Matrix struct {
	command.Matrix
}

func (m Matrix) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i := 0; i < 4; i++ {
		if i > 0 {
			sb.WriteString("\n ")
		}
		sb.WriteByte('(')
		for j, v := range m.Row(i) {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
		}
		sb.WriteByte(')')
	}
	sb.WriteByte(')')
	return sb.String()
}

// Texture is the script-side value produced by (load-texture ...).
type Texture struct {
	Path  string
	Image *image.RGBA
}

func (t Texture) String() string {
	b := t.Image.Bounds()
	return fmt.Sprintf("#<texture:%s %dx%d>", t.Path, b.Dx(), b.Dy())
}

// Coerce converts a script value into a uniform value. Numbers become
// Float, a list of three numbers becomes Vector3, and matrices and textures
// map to their command counterparts. Everything else is rejected.
func Coerce(v scheme.Value) (command.UniformValue, error) {
	switch x := v.(type) {
	case scheme.Int:
		return command.Float(float32(x)), nil
	case scheme.Real:
		return command.Float(float32(x)), nil
	case scheme.List:
		if len(x) != 3 {
			return nil, unsupported(v)
		}
		var vec command.Vector3
		for i, item := range x {
			f, ok := scheme.ToFloat(item)
			if !ok {
				return nil, unsupported(v)
			}
			vec[i] = float32(f)
		}
		return vec, nil
	case Matrix:
		return x.Matrix, nil
	case Texture:
		return command.Texture{Image: x.Image}, nil
	default:
		return nil, unsupported(v)
	}
}

func unsupported(v scheme.Value) error {
	return fmt.Errorf("%w (cannot use %s as a uniform)", ErrUnsupportedValue, scheme.Repr(v))
}

// buildMatrix reads four 4-element numeric rows.
func buildMatrix(rows []scheme.Value) (Matrix, error) {
	var r [4][4]float32
	for i, row := range rows {
		l, ok := row.(scheme.List)
		if !ok || len(l) != 4 {
			return Matrix{}, ErrInvalidDimensions
		}
		for j, item := range l {
			f, ok := scheme.ToFloat(item)
			if !ok {
				return Matrix{}, fmt.Errorf("%w: matrix element %s is not a number", scheme.ErrType, scheme.Repr(item))
			}
			r[i][j] = float32(f)
		}
	}
	return Matrix{command.MatrixFromRows(r[0], r[1], r[2], r[3])}, nil
}
