package fake

import (
	"errors"
	"image"
	"sync"

	"github.com/rs/zerolog"

	"github.com/themkat/shade-eval-print-loop/internal/render"
)

// Driver counts frames and remembers the last one, useful for headless runs
// and tests. It also acts as the texture uploader.
type Driver struct {
	// FailDraw makes Draw return an error.
	FailDraw bool
	Log      zerolog.Logger

	mu       sync.Mutex
	count    int
	last     render.Frame
	next     render.TextureHandle
	textures map[render.TextureHandle]string
	released []render.TextureHandle
}

func (d *Driver) Draw(f render.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
	d.last = f
	if d.FailDraw {
		return errors.New("fake draw failure")
	}
	var prog uint64
	if f.Program != nil {
		prog = f.Program.ID
	}
	d.Log.Debug().
		Uint64("frame", f.ID).
		Uint64("program", prog).
		Int("uniforms", len(f.Uniforms)).
		Float32("t", f.Elapsed).
		Msg("draw")
	return nil
}

func (d *Driver) Upload(name string, img *image.RGBA) (render.TextureHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if img.Bounds().Empty() {
		return 0, errors.New("empty texture")
	}
	if d.textures == nil {
		d.textures = map[render.TextureHandle]string{}
	}
	d.next++
	d.textures[d.next] = name
	return d.next, nil
}

func (d *Driver) Release(h render.TextureHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, h)
	d.released = append(d.released, h)
}

// Count is the number of Draw calls so far.
func (d *Driver) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Last returns the most recent frame.
func (d *Driver) Last() render.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Live returns the number of uploaded textures not yet released.
func (d *Driver) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.textures)
}

func (d *Driver) Released() []render.TextureHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]render.TextureHandle(nil), d.released...)
}
