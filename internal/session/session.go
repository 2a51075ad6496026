// Package session binds the embedded interpreter to the renderer. A Session
// turns script calls into render commands, answers queries from the state
// mirror and owns the dynamic uniform table.
//
// A Session is owned by the scripting loop. None of its methods may be
// called concurrently.
package session

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/themkat/shade-eval-print-loop/internal/command"
	"github.com/themkat/shade-eval-print-loop/internal/dynamic"
	"github.com/themkat/shade-eval-print-loop/internal/scheme"
)

// ErrStopped is returned by bindings that need the render loop after it
// has gone away.
var ErrStopped = errors.New("render loop stopped")

// ScreenReader is the read side of the state mirror.
type ScreenReader interface {
	ScreenSize() (width, height uint32)
}

type Options struct {
	// EvalTimeout bounds one evaluation or one dynamic uniform closure.
	EvalTimeout time.Duration
	// Done aborts sends to the render loop once closed.
	Done <-chan struct{}
	Log  zerolog.Logger
}

type Session struct {
	in      *scheme.Interpreter
	out     chan<- command.RenderCommand
	screen  ScreenReader
	dynamic *dynamic.Table
	done    <-chan struct{}
	log     zerolog.Logger
	start   time.Time
	now     func() time.Time

	previousWasError bool
}

func New(out chan<- command.RenderCommand, screen ScreenReader, opts Options) *Session {
	s := &Session{
		in:      scheme.New(),
		out:     out,
		screen:  screen,
		dynamic: dynamic.NewTable(),
		done:    opts.Done,
		log:     opts.Log,
		start:   time.Now(),
		now:     time.Now,
	}
	s.in.Timeout = opts.EvalTimeout
	s.install()
	return s
}

// Dynamic exposes the dynamic uniform table.
func (s *Session) Dynamic() *dynamic.Table { return s.dynamic }

// PreviousWasError reports whether the last Eval failed.
func (s *Session) PreviousWasError() bool { return s.previousWasError }

// Eval runs src and returns the printed last value followed by a newline,
// or an ERROR line. Blank input returns an empty string.
func (s *Session) Eval(src string) string {
	if strings.TrimSpace(src) == "" {
		s.previousWasError = false
		return ""
	}
	v, err := s.in.EvalString(src)
	if err != nil {
		s.previousWasError = true
		s.log.Warn().Err(err).Str("expr", clip(src, 256)).Msg("evaluation failed")
		return "ERROR: Evaluation failed: " + err.Error() + "\n"
	}
	s.previousWasError = false
	return scheme.Repr(v) + "\n"
}

// RunDynamicPass calls every registered producer in name order and sends
// the result as a uniform. A registration that is not a procedure aborts
// the pass before anything is sent. Errors from individual producers are
// collected and do not stop the others.
func (s *Session) RunDynamicPass() error {
	names := s.dynamic.Names()
	procs := make([]scheme.Value, len(names))
	for i, name := range names {
		p, _ := s.dynamic.Get(name)
		if !scheme.IsProcedure(p) {
			return fmt.Errorf("dynamic uniform %q: %w", name, ErrNotALambda)
		}
		procs[i] = p
	}

	var errs []error
	for i, name := range names {
		v, err := s.in.Apply(procs[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("dynamic uniform %q: %w", name, err))
			continue
		}
		uv, err := Coerce(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("dynamic uniform %q: %w", name, err))
			continue
		}
		if err := s.send(command.SetUniform{Name: name, Value: uv}); err != nil {
			return errors.Join(append(errs, err)...)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) send(cmd command.RenderCommand) error {
	select {
	case s.out <- cmd:
		return nil
	case <-s.done:
		return ErrStopped
	}
}

func (s *Session) install() {
	s.in.DefineFunc("set-uniform!", 2, 2, func(_ *scheme.Interpreter, args []scheme.Value) (scheme.Value, error) {
		name, err := nameArg("set-uniform!", args[0])
		if err != nil {
			return nil, err
		}
		uv, err := Coerce(args[1])
		if err != nil {
			return nil, err
		}
		return scheme.Void{}, s.send(command.SetUniform{Name: name, Value: uv})
	})

	s.in.DefineFunc("set-dynamic-uniform!", 2, 2, func(_ *scheme.Interpreter, args []scheme.Value) (scheme.Value, error) {
		name, err := nameArg("set-dynamic-uniform!", args[0])
		if err != nil {
			return nil, err
		}
		if min, _, ok := scheme.Arity(args[1]); !ok || min != 0 {
			return nil, ErrNotALambda
		}
		s.dynamic.Set(name, args[1])
		return scheme.Void{}, nil
	})

	s.in.DefineFunc("delete-dynamic-uniform!", 1, 1, func(_ *scheme.Interpreter, args []scheme.Value) (scheme.Value, error) {
		name, err := nameArg("delete-dynamic-uniform!", args[0])
		if err != nil {
			return nil, err
		}
		s.dynamic.Delete(name)
		return scheme.Void{}, nil
	})

	s.in.DefineFunc("dynamic-uniforms", 0, 0, func(*scheme.Interpreter, []scheme.Value) (scheme.Value, error) {
		out := scheme.List{}
		for _, n := range s.dynamic.Names() {
			out = append(out, scheme.String(n))
		}
		return out, nil
	})

	s.in.DefineFunc("matrix", 4, 4, func(_ *scheme.Interpreter, args []scheme.Value) (scheme.Value, error) {
		return buildMatrix(args)
	})

	s.in.DefineFunc("get-elapsed-time", 0, 0, func(*scheme.Interpreter, []scheme.Value) (scheme.Value, error) {
		return scheme.Real(s.now().Sub(s.start).Seconds()), nil
	})

	s.in.DefineFunc("screen-size", 0, 0, func(*scheme.Interpreter, []scheme.Value) (scheme.Value, error) {
		w, h := s.screen.ScreenSize()
		return scheme.List{scheme.Int(w), scheme.Int(h)}, nil
	})

	s.in.DefineFunc("load-texture", 1, 1, func(_ *scheme.Interpreter, args []scheme.Value) (scheme.Value, error) {
		path, ok := args[0].(scheme.String)
		if !ok {
			return nil, fmt.Errorf("%w: load-texture expects a file name, got %s", scheme.ErrType, scheme.Repr(args[0]))
		}
		img, err := LoadTexture(string(path))
		if err != nil {
			return nil, err
		}
		return Texture{Path: string(path), Image: img}, nil
	})
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func nameArg(who string, v scheme.Value) (string, error) {
	switch n := v.(type) {
	case scheme.String:
		return string(n), nil
	case scheme.Symbol:
		return string(n), nil
	}
	return "", fmt.Errorf("%w: %s expects a uniform name, got %s", scheme.ErrType, who, scheme.Repr(v))
}

// LoadTexture decodes an image file into RGBA8.
func LoadTexture(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load-texture: %w", err)
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load-texture: decode %s: %w", path, err)
	}
	if rgba, ok := src.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba, nil
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst, nil
}
