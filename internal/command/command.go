// Package command holds the messages that cross the render/scripting boundary.
// Values are plain data and are moved over channels, never shared.
package command

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// UniformValue is one of Float, Vector3, Matrix or Texture.
type UniformValue interface {
	uniformValue()
}

type Float float32

type Vector3 mgl32.Vec3

// Matrix is a 4x4 matrix. Build it with MatrixFromRows so the row-major
// input ends up in mgl32's column-major storage correctly.
type Matrix mgl32.Mat4

// Texture is an RGBA8 image handed to the renderer for upload.
type Texture struct {
	Image *image.RGBA
}

func (Float) uniformValue()   {}
func (Vector3) uniformValue() {}
func (Matrix) uniformValue()  {}
func (Texture) uniformValue() {}

// MatrixFromRows builds a Matrix from four rows.
func MatrixFromRows(r0, r1, r2, r3 [4]float32) Matrix {
	return Matrix(mgl32.Mat4FromRows(mgl32.Vec4(r0), mgl32.Vec4(r1), mgl32.Vec4(r2), mgl32.Vec4(r3)))
}

// Row returns row i (0..3).
func (m Matrix) Row(i int) [4]float32 {
	return [4]float32(mgl32.Mat4(m).Row(i))
}

// RenderCommand is consumed by the render loop, in receipt order.
type RenderCommand interface {
	renderCommand()
}

// SetUniform inserts or overwrites the named uniform.
type SetUniform struct {
	Name  string
	Value UniformValue
}

func (SetUniform) renderCommand() {}

// StateUpdateCommand flows from the render loop to the scripting side.
type StateUpdateCommand interface {
	stateUpdateCommand()
}

type ScreenSizeChanged struct {
	Width, Height uint32
}

func (ScreenSizeChanged) stateUpdateCommand() {}
