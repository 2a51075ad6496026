package shader

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/themkat/shade-eval-print-loop/internal/diagnostics"
)

// Coordinator owns the current program. It belongs to the render loop.
type Coordinator struct {
	path    string
	comp    Compiler
	publish func(diagnostics.Diagnostic)
	log     zerolog.Logger

	nextID  uint64
	current *Program
	diag    *diagnostics.Diagnostic
}

// NewCoordinator compiles the shader at path. An unreadable file is an
// error. A file that does not compile leaves the placeholder program
// active with the compile diagnostic recorded.
func NewCoordinator(path string, comp Compiler, publish func(diagnostics.Diagnostic), log zerolog.Logger) (*Coordinator, error) {
	if publish == nil {
		publish = func(diagnostics.Diagnostic) {}
	}
	c := &Coordinator{path: path, comp: comp, publish: publish, log: log}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shader: %w", err)
	}
	prog, err := comp.Compile(VertexSource, string(src))
	if err == nil {
		c.install(prog)
		c.log.Info().Str("path", path).Uint64("program", prog.ID).Msg("shader compiled")
		return c, nil
	}

	d := diagnostics.CompileFailed(path, err, true)
	c.log.Warn().Err(err).Str("path", path).Msg("shader failed to compile, using placeholder")
	placeholder, perr := comp.Compile(VertexSource, PlaceholderSource)
	if perr != nil {
		return nil, errors.Join(fmt.Errorf("compile placeholder: %w", perr), err)
	}
	placeholder.Placeholder = true
	c.install(placeholder)
	c.diag = &d
	c.publish(d)
	return c, nil
}

func (c *Coordinator) install(p *Program) {
	c.nextID++
	p.ID = c.nextID
	c.current = p
}

// Program returns the active program.
func (c *Coordinator) Program() *Program { return c.current }

// Diagnostic returns the diagnostic of the last failed compile, if the
// failure has not been superseded by a successful one.
func (c *Coordinator) Diagnostic() (diagnostics.Diagnostic, bool) {
	if c.diag == nil {
		return diagnostics.Diagnostic{}, false
	}
	return *c.diag, true
}

// Path is the watched shader file.
func (c *Coordinator) Path() string { return c.path }

// Reload recompiles the shader file. It reports whether the active
// program changed. On failure the active program is kept.
func (c *Coordinator) Reload() bool {
	src, err := os.ReadFile(c.path)
	if err != nil {
		c.fail(diagnostics.ReadFailed(c.path, err), err)
		return false
	}
	prog, err := c.comp.Compile(VertexSource, string(src))
	if err != nil {
		c.fail(diagnostics.CompileFailed(c.path, err, c.current.Placeholder), err)
		return false
	}
	c.install(prog)
	c.diag = nil
	c.log.Info().Str("path", c.path).Uint64("program", prog.ID).Msg("shader reloaded")
	c.publish(diagnostics.Reloaded(c.path, prog.ID))
	return true
}

func (c *Coordinator) fail(d diagnostics.Diagnostic, err error) {
	c.log.Warn().Err(err).Str("code", d.Code).Msg("shader reload failed")
	c.diag = &d
	c.publish(d)
}
