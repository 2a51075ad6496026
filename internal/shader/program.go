// Package shader compiles the watched fragment module, keeps the last good
// program and reloads it when the file changes.
package shader

import (
	"fmt"

	"github.com/gogpu/naga"
)

// VertexSource draws one triangle that covers the whole viewport.
const VertexSource = `@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> @builtin(position) vec4<f32> {
    let x = f32(index & 1u) * 4.0 - 1.0;
    let y = f32(index >> 1u) * 4.0 - 1.0;
    return vec4<f32>(x, y, 0.0, 1.0);
}
`

// PlaceholderSource is drawn when the user's shader has never compiled.
const PlaceholderSource = `@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 1.0, 1.0);
}
`

// Program is a linked pair of compiled stages.
type Program struct {
	ID          uint64
	Vertex      []uint32
	Fragment    []uint32
	Placeholder bool
}

// Compiler turns WGSL sources into a Program. The error text is what the
// user sees as the diagnostic.
type Compiler interface {
	Compile(vertex, fragment string) (*Program, error)
}

// NagaCompiler compiles WGSL to SPIR-V with naga.
type NagaCompiler struct{}

func (NagaCompiler) Compile(vertex, fragment string) (*Program, error) {
	vs, err := compileStage(vertex)
	if err != nil {
		return nil, fmt.Errorf("vertex: %w", err)
	}
	fs, err := compileStage(fragment)
	if err != nil {
		return nil, fmt.Errorf("fragment: %w", err)
	}
	return &Program{Vertex: vs, Fragment: fs}, nil
}

func compileStage(src string) ([]uint32, error) {
	b, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("spir-v output is %d bytes, not a whole number of words", len(b))
	}
	// SPIR-V words are little-endian
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words, nil
}
