package command

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatrixFromRowsKeepsRowOrder(t *testing.T) {
	m := MatrixFromRows(
		[4]float32{1, 2, 3, 4},
		[4]float32{5, 6, 7, 8},
		[4]float32{9, 10, 11, 12},
		[4]float32{13, 14, 15, 16},
	)
	assert.Equal(t, [4]float32{1, 2, 3, 4}, m.Row(0))
	assert.Equal(t, [4]float32{13, 14, 15, 16}, m.Row(3))
}

func TestSetUniformEquality(t *testing.T) {
	a := SetUniform{Name: "x", Value: Float(3.14)}
	assert.Equal(t, SetUniform{Name: "x", Value: Float(3.14)}, a)
	assert.NotEqual(t, SetUniform{Name: "x", Value: Float(3.15)}, a)
	assert.NotEqual(t, SetUniform{Name: "x", Value: Vector3{3.14, 0, 0}}, a)

	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Pix[0] = 255
	other := image.NewRGBA(image.Rect(0, 0, 1, 1))
	other.Pix[0] = 255
	assert.Equal(t, Texture{Image: img}, Texture{Image: other})
}
