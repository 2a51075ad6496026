package render

import (
	"image"

	"github.com/themkat/shade-eval-print-loop/internal/command"
	"github.com/themkat/shade-eval-print-loop/internal/shader"
)

// TextureHandle identifies an uploaded texture.
type TextureHandle uint64

// Uploader moves texture pixels to wherever the drawer reads them from.
type Uploader interface {
	Upload(name string, img *image.RGBA) (TextureHandle, error)
	Release(h TextureHandle)
}

// Drawer issues the draw for one frame.
type Drawer interface {
	Draw(f Frame) error
}

// Uniform is one entry of a draw snapshot. Texture is set only for
// texture values that were uploaded.
type Uniform struct {
	Name    string
	Value   command.UniformValue
	Texture TextureHandle
}

// Frame is everything the drawer needs for one draw.
type Frame struct {
	ID            uint64
	Program       *shader.Program
	Uniforms      []Uniform
	Diagnostic    string
	Elapsed       float32
	Width, Height uint32
}
